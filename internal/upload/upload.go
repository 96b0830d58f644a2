// Package upload is the blob-storage boundary for verification documents.
// The workflow core only depends on the Uploader contract; Cloudinary backs
// it in production.
package upload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vetgate/internal/verification/models"
	dErrors "vetgate/pkg/domain-errors"
)

// Uploader stores a blob and returns a retrievable URL. Delete is used by
// intake's compensating cleanup after partial failure.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

// Size caps per document class.
const (
	MaxIdentityDocumentSize = 10 << 20 // 10 MB
	MaxWorkSampleSize       = 50 << 20 // 50 MB
)

// BuildPath produces the storage key convention:
// verification/{userId}/{fileType}_{timestamp}_{random}.{ext}
func BuildPath(userID string, docType models.DocumentType, ext string, now time.Time) string {
	random := strings.Split(uuid.NewString(), "-")[0]
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("verification/%s/%s_%d_%s.%s", userID, docType, now.UnixMilli(), random, ext)
}

// ValidateDocument enforces size caps and accepted mime classes before any
// bytes leave the process.
func ValidateDocument(docType models.DocumentType, size int64, mimeType string) error {
	limit := int64(MaxWorkSampleSize)
	if docType == models.DocumentIdentity {
		limit = MaxIdentityDocumentSize
	}
	if size <= 0 {
		return dErrors.NewValidation("document is empty", "documents")
	}
	if size > limit {
		return dErrors.NewValidation(
			fmt.Sprintf("%s document exceeds %d MB limit", docType, limit>>20), "documents")
	}
	if !acceptedMime(docType, mimeType) {
		return dErrors.NewValidation(
			fmt.Sprintf("mime type %q not accepted for %s documents", mimeType, docType), "documents")
	}
	return nil
}

// acceptedMime allows images, PDFs, and CAD formats everywhere; zip archives
// only as work samples (sample project bundles).
func acceptedMime(docType models.DocumentType, mimeType string) bool {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return true
	case mt == "application/pdf":
		return true
	case mt == "application/dwg", mt == "image/vnd.dwg", mt == "application/dxf", mt == "image/vnd.dxf":
		return true
	case mt == "application/zip", mt == "application/x-zip-compressed":
		return docType == models.DocumentWorkSample
	}
	return false
}
