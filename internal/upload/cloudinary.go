package upload

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"vetgate/pkg/platform/sentinel"
)

// CloudinaryUploader stores verification documents in Cloudinary. The path
// convention from BuildPath becomes the public ID, so URLs stay stable and
// deletable.
type CloudinaryUploader struct {
	cld *cld.Cloudinary
}

// NewCloudinary builds an uploader from CLOUDINARY_URL (or an explicit URL).
func NewCloudinary(url string) (*CloudinaryUploader, error) {
	var client *cld.Cloudinary
	var err error
	if url != "" {
		client, err = cld.NewFromURL(url)
	} else {
		client, err = cld.New()
	}
	if err != nil {
		return nil, fmt.Errorf("cloudinary client: %w", err)
	}
	return &CloudinaryUploader{cld: client}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	publicID := strings.TrimSuffix(path, ext(path))
	res, err := u.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     publicID,
		ResourceType: resourceTypeFor(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, sentinel.ErrUnavailable)
	}
	return res.SecureURL, nil
}

func (u *CloudinaryUploader) Delete(ctx context.Context, url string) error {
	publicID := publicIDFromURL(url)
	if publicID == "" {
		return fmt.Errorf("no public id in url %q", url)
	}
	_, err := u.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("destroy %s: %w", publicID, sentinel.ErrUnavailable)
	}
	return nil
}

// resourceTypeFor keeps non-image documents (PDF, CAD, zip) in Cloudinary's
// raw storage class.
func resourceTypeFor(contentType string) string {
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "image"
	}
	return "raw"
}

func ext(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}

// publicIDFromURL recovers the public ID from a delivery URL: everything
// after the /upload/ segment, minus a version prefix and the extension.
func publicIDFromURL(url string) string {
	_, after, found := strings.Cut(url, "/upload/")
	if !found {
		return ""
	}
	if strings.HasPrefix(after, "v") {
		if _, rest, ok := strings.Cut(after, "/"); ok {
			after = rest
		}
	}
	return strings.TrimSuffix(after, ext(after))
}
