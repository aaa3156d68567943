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

// MaxCopySize is the largest object a single server-side copy can duplicate.
const MaxCopySize int64 = 5 << 30

// ObjectStoreProvider implements bm.StorageProvider over a flat object
// keyspace. Directories are never stored; a location is a directory when at
// least one key lies strictly below it and no key names it exactly.
type ObjectStoreProvider struct {
	client bm.ObjectClient
	logger bm.Logger
}

// NewObjectStoreProvider creates a provider driving client.
func NewObjectStoreProvider(client bm.ObjectClient, logger bm.Logger) *ObjectStoreProvider {
	if logger == nil {
		logger = bm.NewNopLogger()
	}
	return &ObjectStoreProvider{client: client, logger: logger}
}

// dirPrefix returns the key prefix shared by everything below loc.
func dirPrefix(loc bm.Location) string {
	key := loc.Key()
	if key == "" {
		return ""
	}
	return key + "/"
}

// Write uploads content as the object for file. Folders need no creation.
func (p *ObjectStoreProvider) Write(ctx context.Context, _, file bm.Location, content []byte) error {
	err := p.client.UploadObject(ctx, file.Key(), bytes.NewReader(content))
	return bm.NewStorageError("write", file, err)
}

// Read downloads an object as text.
func (p *ObjectStoreProvider) Read(ctx context.Context, loc bm.Location) (string, error) {
	rc, err := p.client.DownloadObject(ctx, loc.Key())
	if err != nil {
		return "", bm.NewStorageError("read", loc, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", bm.NewStorageError("read", loc, err)
	}
	return string(data), nil
}

// Delete removes the object at loc. An emergent directory can only be
// deleted once everything below it is gone, at which point it no longer exists.
func (p *ObjectStoreProvider) Delete(ctx context.Context, loc bm.Location) error {
	isFile, err := p.IsFile(ctx, loc)
	if err != nil {
		return err
	}
	if isFile {
		return bm.NewStorageError("delete", loc, p.client.RemoveObject(ctx, loc.Key()))
	}

	isDir, err := p.IsDir(ctx, loc)
	if err != nil {
		return err
	}
	if isDir {
		return bm.NewStorageError("delete", loc, bm.ErrNotEmpty)
	}
	return nil
}

// Exists reports whether loc is an object or has objects below it.
func (p *ObjectStoreProvider) Exists(ctx context.Context, loc bm.Location) (bool, error) {
	isFile, err := p.IsFile(ctx, loc)
	if err != nil || isFile {
		return isFile, err
	}
	return p.hasChildren(ctx, loc)
}

func (p *ObjectStoreProvider) hasChildren(ctx context.Context, loc bm.Location) (bool, error) {
	objs, err := p.client.ListObjects(ctx, dirPrefix(loc), 1)
	if err != nil {
		return false, bm.NewStorageError("list", loc, err)
	}
	return len(objs) > 0, nil
}

// List returns the distinct immediate children of loc, sorted.
func (p *ObjectStoreProvider) List(ctx context.Context, loc bm.Location) ([]bm.Location, error) {
	prefix := dirPrefix(loc)
	objs, err := p.client.ListObjects(ctx, prefix, 0)
	if err != nil {
		return nil, bm.NewStorageError("list", loc, err)
	}
	if len(objs) == 0 {
		isFile, err := p.IsFile(ctx, loc)
		if err != nil {
			return nil, err
		}
		if isFile {
			return nil, bm.NewStorageError("list", loc, fmt.Errorf("not a directory"))
		}
		return nil, bm.NewStorageError("list", loc, bm.ErrNotFound)
	}

	seen := make(map[string]bool)
	var children []bm.Location
	for _, obj := range objs {
		rest := strings.TrimPrefix(obj.Key, prefix)
		name, _, _ := strings.Cut(rest, "/")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		children = append(children, loc.Join(name))
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Compare(children[j]) < 0 })
	return children, nil
}

// Walk lists every key below root once and derives the intermediate
// directories from the key segments, bounded by maxDepth.
func (p *ObjectStoreProvider) Walk(ctx context.Context, root bm.Location, maxDepth int, ordered bool) ([]bm.Location, error) {
	isFile, err := p.IsFile(ctx, root)
	if err != nil {
		return nil, err
	}

	if isFile {
		return []bm.Location{root}, nil
	}

	prefix := dirPrefix(root)
	objs, err := p.client.ListObjects(ctx, prefix, 0)
	if err != nil {
		return nil, bm.NewStorageError("walk", root, err)
	}
	if len(objs) == 0 {
		return nil, bm.NewStorageError("walk", root, bm.ErrNotFound)
	}

	// earliest holds, per location, the oldest modification time of any object at or below it.
	earliest := make(map[string]time.Time)
	locs := map[string]bm.Location{root.String(): root}
	note := func(loc bm.Location, t time.Time) {
		if cur, ok := earliest[loc.String()]; !ok || t.Before(cur) {
			earliest[loc.String()] = t
		}
	}

	for _, obj := range objs {
		note(root, obj.LastModified)
		segs := bm.NewLocation(strings.TrimPrefix(obj.Key, prefix)).Segments()
		for i := 1; i <= len(segs) && i <= maxDepth; i++ {
			loc := root.Join(segs[:i]...)
			locs[loc.String()] = loc
			note(loc, obj.LastModified)
		}
	}

	result := make([]bm.Location, 0, len(locs))
	for _, loc := range locs {
		result = append(result, loc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Compare(result[j]) < 0 })

	if ordered {
		sort.SliceStable(result, func(i, j int) bool {
			ti, ok := earliest[result[i].String()]
			if !ok {
				ti = maxTime
			}
			tj, ok := earliest[result[j].String()]
			if !ok {
				tj = maxTime
			}
			return ti.Before(tj)
		})
	}
	return result, nil
}

// IsDir reports whether loc has objects below it and is not itself an object.
func (p *ObjectStoreProvider) IsDir(ctx context.Context, loc bm.Location) (bool, error) {
	isFile, err := p.IsFile(ctx, loc)
	if err != nil || isFile {
		return false, err
	}
	return p.hasChildren(ctx, loc)
}

// IsFile reports whether an object exists with exactly loc's key.
func (p *ObjectStoreProvider) IsFile(ctx context.Context, loc bm.Location) (bool, error) {
	key := loc.Key()
	if key == "" {
		return false, nil
	}
	ok, err := p.client.ObjectExists(ctx, key)
	if err != nil {
		return false, bm.NewStorageError("stat", loc, err)
	}
	return ok, nil
}

// Length returns the object size.
func (p *ObjectStoreProvider) Length(ctx context.Context, loc bm.Location) (int64, error) {
	size, err := p.client.ObjectSize(ctx, loc.Key())
	if err != nil {
		return 0, bm.NewStorageError("length", loc, err)
	}
	return size, nil
}

// NewReader opens the object for streaming reads.
func (p *ObjectStoreProvider) NewReader(ctx context.Context, loc bm.Location) (io.ReadCloser, error) {
	rc, err := p.client.DownloadObject(ctx, loc.Key())
	if err != nil {
		return nil, bm.NewStorageError("open", loc, err)
	}
	return rc, nil
}

// NewWriter returns a writer whose bytes are streamed into an upload running
// in a background goroutine. The object is replaced only when Close succeeds.
func (p *ObjectStoreProvider) NewWriter(ctx context.Context, loc bm.Location, mode bm.WriteMode) (io.WriteCloser, error) {
	var existing io.ReadCloser
	switch mode {
	case bm.WriteTruncate:
	case bm.WriteCreateNew:
		exists, err := p.Exists(ctx, loc)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, bm.NewStorageError("create", loc, bm.ErrExists)
		}
	case bm.WriteAppend:
		isFile, err := p.IsFile(ctx, loc)
		if err != nil {
			return nil, err
		}
		if isFile {
			existing, err = p.client.DownloadObject(ctx, loc.Key())
			if err != nil {
				return nil, bm.NewStorageError("create", loc, err)
			}
		}
	default:
		return nil, bm.NewStorageError("create", loc, fmt.Errorf("unknown write mode %d", mode))
	}

	pr, pw := io.Pipe()
	var body io.Reader = pr
	if existing != nil {
		body = io.MultiReader(existing, pr)
	}

	w := &objectWriter{ctx: ctx, loc: loc, pw: pw, done: make(chan error, 1)}
	go func() {
		err := p.client.UploadObject(ctx, loc.Key(), body)
		if existing != nil {
			existing.Close()
		}
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// objectWriter feeds an in-flight upload through a pipe.
type objectWriter struct {
	ctx  context.Context
	loc  bm.Location
	pw   *io.PipeWriter
	done chan error

	once sync.Once
	err  error
}

func (w *objectWriter) Write(b []byte) (int, error) {
	n, err := w.pw.Write(b)
	if err != nil {
		return n, bm.NewStorageError("write", w.loc, err)
	}
	return n, nil
}

// Close signals end of content and waits for the upload to finish. A
// cancelled context stops the wait; the upload is not retried.
func (w *objectWriter) Close() error {
	w.once.Do(func() {
		w.pw.Close()
		select {
		case err := <-w.done:
			w.err = bm.NewStorageError("upload", w.loc, err)
		case <-w.ctx.Done():
			w.err = bm.NewStorageError("upload", w.loc, w.ctx.Err())
		}
	})
	return w.err
}

// Mkdir is a no-op: directories exist implicitly.
func (p *ObjectStoreProvider) Mkdir(context.Context, bm.Location) error { return nil }

// MkdirAll is a no-op: directories exist implicitly.
func (p *ObjectStoreProvider) MkdirAll(context.Context, bm.Location) error { return nil }

// Copy duplicates an object server-side. Copying an emergent directory is a
// no-op since its destination needs no creation.
func (p *ObjectStoreProvider) Copy(ctx context.Context, src, dst bm.Location, replace bool) (bool, error) {
	isFile, err := p.IsFile(ctx, src)
	if err != nil {
		return false, err
	}

	existed, err := p.Exists(ctx, dst)
	if err != nil {
		return false, err
	}
	if existed && !replace {
		return false, bm.NewStorageError("copy", dst, bm.ErrExists)
	}

	if !isFile {
		isDir, err := p.IsDir(ctx, src)
		if err != nil {
			return false, err
		}
		if !isDir {
			return false, bm.NewStorageError("copy", src, bm.ErrNotFound)
		}
		return existed, nil
	}

	size, err := p.client.ObjectSize(ctx, src.Key())
	if err != nil {
		return false, bm.NewStorageError("copy", src, err)
	}
	if size > MaxCopySize {
		return false, bm.NewStorageError("copy", src, fmt.Errorf("%w: %d bytes", bm.ErrCopyTooLarge, size))
	}

	if err := p.client.CopyObject(ctx, src.Key(), dst.Key()); err != nil {
		return false, bm.NewStorageError("copy", dst, err)
	}
	return existed, nil
}

// SetReservedSpace is ignored; the object store has no local disk to protect.
func (p *ObjectStoreProvider) SetReservedSpace(bm.Location) {}

// CreateDummyFile is a no-op for the object store.
func (p *ObjectStoreProvider) CreateDummyFile(context.Context, int64) error { return nil }

// DeleteDummyFile is a no-op for the object store.
func (p *ObjectStoreProvider) DeleteDummyFile(context.Context) error { return nil }

// Compile-time check that ObjectStoreProvider implements bm.StorageProvider
var _ bm.StorageProvider = (*ObjectStoreProvider)(nil)
