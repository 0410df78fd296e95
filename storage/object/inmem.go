package object

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/trezcool/walimu/core/document"
)

type inmemObject struct {
	data        []byte
	contentType string
}

// inmemBlobs is a map-backed Blobs implementation for tests.
type inmemBlobs struct {
	mu      sync.RWMutex
	objects map[string]inmemObject
}

var _ document.Blobs = (*inmemBlobs)(nil)

func NewInmemBlobs() *inmemBlobs {
	return &inmemBlobs{objects: make(map[string]inmemObject)}
}

func (b *inmemBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = inmemObject{data: data, contentType: contentType}
	return nil
}

func (b *inmemBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	if !ok {
		return nil, document.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (b *inmemBlobs) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *inmemBlobs) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.objects[key]; !ok {
		return "", document.ErrNotFound
	}
	return fmt.Sprintf("inmem://%s?expires_in=%s", key, expiry), nil
}
