package upload

import (
	"context"
	"fmt"
	"sync"

	"vetgate/pkg/platform/sentinel"
)

var errUploadRefused = fmt.Errorf("upload refused: %w", sentinel.ErrUnavailable)

// InMemoryUploader backs tests and dev mode. URLs are the storage paths
// under a fake host.
type InMemoryUploader struct {
	mu    sync.Mutex
	blobs map[string][]byte

	// FailPaths makes Upload fail for matching path prefixes, so intake's
	// compensation path is testable.
	FailPaths []string
}

func NewInMemoryUploader() *InMemoryUploader {
	return &InMemoryUploader{blobs: make(map[string][]byte)}
}

func (u *InMemoryUploader) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, prefix := range u.FailPaths {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return "", errUploadRefused
		}
	}
	u.blobs["https://blobs.test/"+path] = append([]byte(nil), data...)
	return "https://blobs.test/" + path, nil
}

func (u *InMemoryUploader) Delete(_ context.Context, url string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.blobs, url)
	return nil
}

// Stored returns how many blobs are currently held.
func (u *InMemoryUploader) Stored() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.blobs)
}
