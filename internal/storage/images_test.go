package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"catalog-admin/internal/config"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

type memoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: make(map[string][]byte)}
}

func (m *memoryBlobStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if m.failOn != "" && bytes.Contains(data, []byte(m.failOn)) {
		return "", errors.New("bucket unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return key, nil
}

func (m *memoryBlobStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryBlobStore) PublicURL(key string) string {
	return JoinURL("http://cdn.test/images", key)
}

func (m *memoryBlobStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func TestUploadStoresAllImagesInOrder(t *testing.T) {
	store := newMemoryBlobStore()
	uploader := NewImageUploader(store, 2, 0, zap.NewNop())

	files := []ImageFile{
		{Name: "a.png", Data: append(append([]byte{}, pngHeader...), 'a')},
		{Name: "b.png", Data: append(append([]byte{}, pngHeader...), 'b')},
		{Name: "c.png", Data: append(append([]byte{}, pngHeader...), 'c')},
	}

	stored, err := uploader.Upload(context.Background(), "p-1", files)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, 3, store.count())

	for i, s := range stored {
		assert.True(t, strings.HasPrefix(s.Key, "products/p-1/"))
		assert.True(t, strings.HasSuffix(s.Key, ".png"))
		assert.Equal(t, files[i].Data, store.objects[s.Key])
		assert.Equal(t, "http://cdn.test/images/"+s.Key, s.URL)
	}
}

func TestUploadRemovesStoredObjectsOnFailure(t *testing.T) {
	store := newMemoryBlobStore()
	store.failOn = "boom"
	uploader := NewImageUploader(store, 1, 0, zap.NewNop())

	files := []ImageFile{
		{Name: "ok.png", Data: append(append([]byte{}, pngHeader...), 'x')},
		{Name: "bad.png", Data: append(append([]byte{}, pngHeader...), []byte("boom")...)},
	}

	_, err := uploader.Upload(context.Background(), "p-2", files)
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, uploader.Wait(ctx))
	assert.Equal(t, 0, store.count())
}

func TestUploadRejectsNonImages(t *testing.T) {
	uploader := NewImageUploader(newMemoryBlobStore(), 2, 0, zap.NewNop())

	_, err := uploader.Upload(context.Background(), "p", []ImageFile{{Name: "notes.txt", Data: []byte("plain text")}})
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestUploadRejectsOversizedImages(t *testing.T) {
	uploader := NewImageUploader(newMemoryBlobStore(), 2, 8, zap.NewNop())

	_, err := uploader.Upload(context.Background(), "p", []ImageFile{{Name: "big.png", Data: pngHeader}})
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

// Keys produced by PublicURL round-trip through KeyFromURL
func TestProperty_PublicURLRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)
	base := "https://cdn.example.com/product-images"

	properties.Property("object keys survive URL escaping", prop.ForAll(
		func(dir string, name string) bool {
			key := "products/" + dir + "/" + name + ".png"
			got, ok := KeyFromURL(base, JoinURL(base, key))
			return ok && got == key
		},
		gen.AlphaString(),
		gen.RegexMatch(`[a-z0-9 &]{1,12}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestKeyFromURLRejectsForeignURLs(t *testing.T) {
	_, ok := KeyFromURL("https://cdn.example.com/bucket", "https://images.unsplash.com/photo-1")
	assert.False(t, ok)
}

func TestPublicBase(t *testing.T) {
	assert.Equal(t, "http://localhost:9000/product-images", PublicBase(config.StorageConfig{
		Endpoint: "localhost:9000",
		Bucket:   "product-images",
	}))
	assert.Equal(t, "https://cdn.example.com", PublicBase(config.StorageConfig{
		PublicBaseURL: "https://cdn.example.com/",
		UseSSL:        true,
	}))
}

func TestImageKeyKeepsExtension(t *testing.T) {
	key := ImageKey("", "Photo.JPG")
	assert.True(t, strings.HasPrefix(key, "products/unassigned/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
}
