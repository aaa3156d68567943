package bm

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one object in a flat keyspace.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectClient is the capability set the object-store provider drives.
// Keys are plain strings; the client knows nothing about directories.
type ObjectClient interface {
	// UploadObject stores everything read from r under key, replacing any existing object.
	UploadObject(ctx context.Context, key string, r io.Reader) error

	// DownloadObject opens the object for reading. Missing keys fail with ErrNotFound.
	DownloadObject(ctx context.Context, key string) (io.ReadCloser, error)

	// RemoveObject deletes the object. Removing a missing key is not an error.
	RemoveObject(ctx context.Context, key string) error

	// ListObjects returns objects whose key starts with prefix, sorted by key.
	// A limit <= 0 returns every match.
	ListObjects(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)

	// ObjectSize returns the object's size. Missing keys fail with ErrNotFound.
	ObjectSize(ctx context.Context, key string) (int64, error)

	// ObjectExists reports whether an object with exactly this key exists.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// CopyObject duplicates src at dst server-side.
	CopyObject(ctx context.Context, src, dst string) error
}
