package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"bm-go/internal/bm"
)

type memoryObject struct {
	data    []byte
	modTime time.Time
}

// MemoryObjectClient is an in-memory implementation of bm.ObjectClient.
// It is useful for testing and for running the object-store provider
// without a bucket. This implementation is safe for concurrent use.
type MemoryObjectClient struct {
	clock   bm.Clock
	objects map[string]memoryObject
	last    time.Time
	mu      sync.RWMutex
}

// NewMemoryObjectClient creates an empty in-memory object store.
func NewMemoryObjectClient(clock bm.Clock) *MemoryObjectClient {
	if clock == nil {
		clock = bm.RealClock{}
	}
	return &MemoryObjectClient{
		clock:   clock,
		objects: make(map[string]memoryObject),
	}
}

// stamp returns a modification time strictly after every earlier one so that
// upload order is always recoverable. Must be called with mu held.
func (m *MemoryObjectClient) stamp() time.Time {
	now := m.clock.Now()
	if !now.After(m.last) {
		now = m.last.Add(time.Nanosecond)
	}
	m.last = now
	return now
}

// UploadObject stores everything read from r under key.
func (m *MemoryObjectClient) UploadObject(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, modTime: m.stamp()}
	return nil
}

// DownloadObject returns a reader over a snapshot of the object.
func (m *MemoryObjectClient) DownloadObject(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, bm.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// RemoveObject deletes key. Missing keys are ignored.
func (m *MemoryObjectClient) RemoveObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// ListObjects returns objects under prefix sorted by key.
func (m *MemoryObjectClient) ListObjects(_ context.Context, prefix string, limit int) ([]bm.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []bm.ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, bm.ObjectInfo{Key: key, Size: int64(len(obj.data)), LastModified: obj.modTime})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

// ObjectSize returns the size of key.
func (m *MemoryObjectClient) ObjectSize(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return 0, fmt.Errorf("object %s: %w", key, bm.ErrNotFound)
	}
	return int64(len(obj.data)), nil
}

// ObjectExists reports whether key exists.
func (m *MemoryObjectClient) ObjectExists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// CopyObject duplicates src at dst.
func (m *MemoryObjectClient) CopyObject(_ context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[src]
	if !ok {
		return fmt.Errorf("object %s: %w", src, bm.ErrNotFound)
	}
	m.objects[dst] = memoryObject{data: bytes.Clone(obj.data), modTime: m.stamp()}
	return nil
}

// Compile-time check that MemoryObjectClient implements bm.ObjectClient
var _ bm.ObjectClient = (*MemoryObjectClient)(nil)
