package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"bm-go/internal/bm"
)

// DummyFileName is the reserved-space placeholder created inside the reserved directory.
const DummyFileName = ".bm-reserved-space"

// FileSystemProvider implements bm.StorageProvider directly against the local
// filesystem. Locations map 1:1 onto native paths.
type FileSystemProvider struct {
	logger bm.Logger

	mu          sync.Mutex
	reservedDir bm.Location
}

// NewFileSystemProvider creates a provider over the local filesystem.
func NewFileSystemProvider(logger bm.Logger) *FileSystemProvider {
	if logger == nil {
		logger = bm.NewNopLogger()
	}
	return &FileSystemProvider{logger: logger}
}

// native converts a location into an OS path.
func native(loc bm.Location) string {
	if loc.IsZero() {
		return "."
	}
	return filepath.FromSlash(loc.String())
}

// fromNative converts an OS path back into a location.
func fromNative(p string) bm.Location {
	return bm.NewLocation(filepath.ToSlash(p))
}

// Write ensures folder exists, then atomically replaces file with content.
func (p *FileSystemProvider) Write(ctx context.Context, folder, file bm.Location, content []byte) error {
	if err := p.MkdirAll(ctx, folder); err != nil {
		return err
	}
	return bm.NewStorageError("write", file, writeFileAtomic(native(file), bytes.NewReader(content)))
}

// Read returns the content of a file as text.
func (p *FileSystemProvider) Read(_ context.Context, loc bm.Location) (string, error) {
	data, err := os.ReadFile(native(loc))
	if err != nil {
		return "", bm.NewStorageError("read", loc, notFound(err))
	}
	return string(data), nil
}

// Delete removes a file or empty directory. Missing locations are ignored.
func (p *FileSystemProvider) Delete(_ context.Context, loc bm.Location) error {
	path := native(loc)
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if entries, rerr := os.ReadDir(path); rerr == nil && len(entries) > 0 {
		return bm.NewStorageError("delete", loc, bm.ErrNotEmpty)
	}
	return bm.NewStorageError("delete", loc, err)
}

// Exists reports whether loc names a file or directory. Dangling symlinks count as present.
func (p *FileSystemProvider) Exists(_ context.Context, loc bm.Location) (bool, error) {
	_, err := os.Lstat(native(loc))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, bm.NewStorageError("exists", loc, err)
}

// List returns the immediate children of a directory, sorted by name.
func (p *FileSystemProvider) List(_ context.Context, loc bm.Location) ([]bm.Location, error) {
	entries, err := os.ReadDir(native(loc))
	if err != nil {
		return nil, bm.NewStorageError("list", loc, notFound(err))
	}
	children := make([]bm.Location, 0, len(entries))
	for _, e := range entries {
		children = append(children, loc.Join(e.Name()))
	}
	return children, nil
}

// Walk returns root and everything below it up to maxDepth segments deep, in
// depth-first order. Symbolic links are reported but never followed.
func (p *FileSystemProvider) Walk(ctx context.Context, root bm.Location, maxDepth int, ordered bool) ([]bm.Location, error) {
	rootPath := native(root)
	if _, err := os.Lstat(rootPath); err != nil {
		return nil, bm.NewStorageError("walk", root, notFound(err))
	}

	var result []bm.Location
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		loc := fromNative(path)
		depth := loc.Depth() - fromNative(rootPath).Depth()
		if depth > maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		result = append(result, loc)
		if d.IsDir() && depth == maxDepth {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, bm.NewStorageError("walk", root, err)
	}

	// Walk results carry the native form of root; report the caller's root verbatim.
	if len(result) > 0 {
		result[0] = root
	}

	if ordered {
		p.sortByCreation(result)
	}
	return result, nil
}

// creationTimeOf reads the creation time used by ordered walks.
var creationTimeOf = creationTime

// sortByCreation stably orders locations oldest first. A location whose
// creation time cannot be read sorts last rather than aborting the walk.
func (p *FileSystemProvider) sortByCreation(locs []bm.Location) {
	times := make(map[string]time.Time, len(locs))
	for _, loc := range locs {
		t, err := creationTimeOf(native(loc))
		if err != nil {
			p.logger.Debug("creation time unavailable, ordering last", "path", loc.String(), "error", err)
			t = maxTime
		}
		times[loc.String()] = t
	}
	sort.SliceStable(locs, func(i, j int) bool {
		return times[locs[i].String()].Before(times[locs[j].String()])
	})
}

// IsDir reports whether loc is a directory. A symlink is never a directory,
// whatever it points to.
func (p *FileSystemProvider) IsDir(_ context.Context, loc bm.Location) (bool, error) {
	info, err := os.Lstat(native(loc))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, bm.NewStorageError("isdir", loc, err)
	}
	return info.IsDir(), nil
}

// IsFile reports whether loc is a regular file. Symlinks are not followed.
func (p *FileSystemProvider) IsFile(_ context.Context, loc bm.Location) (bool, error) {
	info, err := os.Lstat(native(loc))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, bm.NewStorageError("isfile", loc, err)
	}
	return info.Mode().IsRegular(), nil
}

// Length returns the size of a file in bytes.
func (p *FileSystemProvider) Length(_ context.Context, loc bm.Location) (int64, error) {
	info, err := os.Stat(native(loc))
	if err != nil {
		return 0, bm.NewStorageError("length", loc, notFound(err))
	}
	return info.Size(), nil
}

// NewReader opens a file for reading.
func (p *FileSystemProvider) NewReader(_ context.Context, loc bm.Location) (io.ReadCloser, error) {
	f, err := os.Open(native(loc))
	if err != nil {
		return nil, bm.NewStorageError("open", loc, notFound(err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, bm.NewStorageError("open", loc, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, bm.NewStorageError("open", loc, fmt.Errorf("cannot open directory as file"))
	}
	return f, nil
}

// NewWriter opens a file for writing according to mode.
func (p *FileSystemProvider) NewWriter(_ context.Context, loc bm.Location, mode bm.WriteMode) (io.WriteCloser, error) {
	flags := os.O_WRONLY | os.O_CREATE
	switch mode {
	case bm.WriteTruncate:
		flags |= os.O_TRUNC
	case bm.WriteAppend:
		flags |= os.O_APPEND
	case bm.WriteCreateNew:
		flags |= os.O_EXCL
	default:
		return nil, bm.NewStorageError("create", loc, fmt.Errorf("unknown write mode %d", mode))
	}

	f, err := os.OpenFile(native(loc), flags, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			err = bm.ErrExists
		}
		return nil, bm.NewStorageError("create", loc, notFound(err))
	}
	return f, nil
}

// Mkdir creates a single directory. An existing directory is left alone.
func (p *FileSystemProvider) Mkdir(_ context.Context, loc bm.Location) error {
	err := os.Mkdir(native(loc), 0755)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		if info, serr := os.Stat(native(loc)); serr == nil && info.IsDir() {
			return nil
		}
		return bm.NewStorageError("mkdir", loc, bm.ErrExists)
	}
	return bm.NewStorageError("mkdir", loc, notFound(err))
}

// MkdirAll creates loc and every missing ancestor.
func (p *FileSystemProvider) MkdirAll(_ context.Context, loc bm.Location) error {
	if loc.IsZero() {
		return nil
	}
	return bm.NewStorageError("mkdirs", loc, os.MkdirAll(native(loc), 0755))
}

// Copy duplicates a file (or creates an empty directory for a directory source).
func (p *FileSystemProvider) Copy(ctx context.Context, src, dst bm.Location, replace bool) (bool, error) {
	srcInfo, err := os.Stat(native(src))
	if err != nil {
		return false, bm.NewStorageError("copy", src, notFound(err))
	}

	existed, err := p.Exists(ctx, dst)
	if err != nil {
		return false, err
	}
	if existed && !replace {
		return false, bm.NewStorageError("copy", dst, bm.ErrExists)
	}

	if srcInfo.IsDir() {
		if existed {
			if err := p.Delete(ctx, dst); err != nil {
				return false, err
			}
		}
		return existed, p.Mkdir(ctx, dst)
	}

	in, err := os.Open(native(src))
	if err != nil {
		return false, bm.NewStorageError("copy", src, err)
	}
	defer in.Close()

	if err := writeFileAtomic(native(dst), in); err != nil {
		return false, bm.NewStorageError("copy", dst, err)
	}
	return existed, nil
}

// SetReservedSpace sets the directory that holds the placeholder file.
func (p *FileSystemProvider) SetReservedSpace(dir bm.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reservedDir = dir
}

func (p *FileSystemProvider) dummyFile() (bm.Location, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reservedDir.IsZero() {
		return bm.Location{}, fmt.Errorf("%w: reserved space directory not set", bm.ErrInvalidConfig)
	}
	return p.reservedDir.Join(DummyFileName), nil
}

// CreateDummyFile reserves size bytes of disk by preallocating a placeholder file.
func (p *FileSystemProvider) CreateDummyFile(ctx context.Context, size int64) error {
	loc, err := p.dummyFile()
	if err != nil {
		return err
	}
	if err := p.MkdirAll(ctx, loc.Parent()); err != nil {
		return err
	}

	f, err := os.OpenFile(native(loc), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return bm.NewStorageError("reserve", loc, err)
	}
	if err := preallocate(f, size); err != nil {
		f.Close()
		os.Remove(native(loc))
		return bm.NewStorageError("reserve", loc, err)
	}
	if err := f.Close(); err != nil {
		return bm.NewStorageError("reserve", loc, err)
	}
	p.logger.Debug("reserved space", "path", loc.String(), "size", size)
	return nil
}

// DeleteDummyFile releases the reserved space. A missing placeholder is ignored.
func (p *FileSystemProvider) DeleteDummyFile(ctx context.Context) error {
	loc, err := p.dummyFile()
	if err != nil {
		return err
	}
	return p.Delete(ctx, loc)
}

// writeFileAtomic writes data from r to destPath using a temp file + rename,
// so readers never observe a partially written file.
func writeFileAtomic(destPath string, r io.Reader) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Chmod(0644); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// notFound maps fs.ErrNotExist onto bm.ErrNotFound, keeping the original error text.
func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", bm.ErrNotFound, err)
	}
	return err
}

// Compile-time check that FileSystemProvider implements bm.StorageProvider
var _ bm.StorageProvider = (*FileSystemProvider)(nil)
