package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image too large")
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageFile is an uploaded image awaiting storage
type ImageFile struct {
	Name string
	Data []byte
}

// StoredImage is an image that reached the blob store
type StoredImage struct {
	Key string
	URL string
}

// ImageUploader pushes product images to a BlobStore with bounded parallelism
// and removes already stored objects when a batch fails.
type ImageUploader struct {
	store    BlobStore
	limit    int
	maxBytes int64
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewImageUploader creates an uploader; limit bounds concurrent uploads
func NewImageUploader(store BlobStore, limit int, maxBytes int64, logger *zap.Logger) *ImageUploader {
	if limit < 1 {
		limit = 1
	}
	return &ImageUploader{store: store, limit: limit, maxBytes: maxBytes, logger: logger}
}

// DetectType sniffs the content type of image data
func DetectType(data []byte) (string, string, error) {
	contentType := http.DetectContentType(data)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return contentType, "", fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}
	return contentType, ext, nil
}

// Upload stores every file or none. Results keep the input order.
func (u *ImageUploader) Upload(ctx context.Context, productID string, files []ImageFile) ([]StoredImage, error) {
	for _, f := range files {
		if u.maxBytes > 0 && int64(len(f.Data)) > u.maxBytes {
			return nil, fmt.Errorf("%w: %s", ErrImageTooLarge, f.Name)
		}
		if _, _, err := DetectType(f.Data); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
	}

	results := make([]StoredImage, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.limit)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			contentType, ext, _ := DetectType(f.Data)
			key := ImageKey(productID, "image"+ext)
			stored, err := u.store.Upload(gctx, key, bytes.NewReader(f.Data), int64(len(f.Data)), contentType)
			if err != nil {
				return fmt.Errorf("upload %s failed: %w", f.Name, err)
			}
			results[i] = StoredImage{Key: stored, URL: u.store.PublicURL(stored)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var keys []string
		for _, r := range results {
			if r.Key != "" {
				keys = append(keys, r.Key)
			}
		}
		u.Cleanup(keys)
		return nil, err
	}

	return results, nil
}

// Cleanup removes keys in the background, retrying each up to three times
func (u *ImageUploader) Cleanup(keys []string) {
	if len(keys) == 0 {
		return
	}
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.removeKeys(keys)
	}()
}

func (u *ImageUploader) removeKeys(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, key := range keys {
		backoff := 100 * time.Millisecond
		for attempt := 0; attempt < 3; attempt++ {
			err := u.store.Remove(ctx, key)
			if err == nil {
				break
			}
			u.logger.Warn("Failed to remove orphaned image",
				zap.String("key", key),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return
			}
		}
	}
}

// Wait blocks until background cleanups finish or ctx is done
func (u *ImageUploader) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("image cleanup interrupted: %w", ctx.Err())
	}
}
