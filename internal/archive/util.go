// Package archive packs a backup's metadata document and payload tree into a
// gzip-compressed tar stream and unpacks such streams back onto a
// bm.StorageProvider.
package archive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"bm-go/internal/bm"
)

// Entry-name marker segments. Every entry of an archive lives below exactly
// one of them.
const (
	MetadataMarker = "backupfiles"
	DataMarker     = "backupdata"
)

// ErrInvalidName is returned for a manager ID or backup name that cannot be
// used as an archive path segment.
var ErrInvalidName = errors.New("invalid archive name")

// CheckName rejects names that are empty, span several segments or collide
// with a marker segment. A marker-named manager or backup would reroute
// every entry on unpack.
func CheckName(name string) error {
	switch {
	case name == "", name == ".", name == "..", strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case name == MetadataMarker, name == DataMarker:
		return fmt.Errorf("%w: %q is a reserved segment", ErrInvalidName, name)
	}
	return nil
}

// TarballName returns the archive file name for a backup. Scheduled backups
// overwrite their previous export; manual ones are timestamped.
func TarballName(b bm.Backup) string {
	if b.CreationType == bm.CreationScheduled {
		return b.Name + ".tar.gz"
	}
	return b.Name + "-" + b.CreationTime.Format(time.RFC3339) + ".tar.gz"
}

// EntryName returns the archive entry name for source, expressed relative to
// base and placed under prefix. Directory names end with "/".
func EntryName(base, source bm.Location, prefix string, isDir bool) (string, error) {
	rel, ok := base.Rel(source)
	if !ok {
		return "", fmt.Errorf("%s is not below %s", source, base)
	}
	parts := make([]string, 0, 2)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if rel != "" {
		parts = append(parts, rel)
	}
	name := strings.Join(parts, "/")
	if isDir {
		name += "/"
	}
	return name, nil
}

// Prefix accumulates entry-name segments.
type Prefix struct {
	parts []string
}

// NewPrefix creates a prefix from the given segments.
func NewPrefix(parts ...string) *Prefix {
	p := &Prefix{}
	for _, part := range parts {
		p.Add(part)
	}
	return p
}

// Add appends part and returns the same prefix.
func (p *Prefix) Add(part string) *Prefix {
	for _, seg := range strings.Split(part, "/") {
		if seg != "" {
			p.parts = append(p.parts, seg)
		}
	}
	return p
}

// Fork returns a copy of p with part appended. p itself is left unchanged.
func (p *Prefix) Fork(part string) *Prefix {
	clone := &Prefix{parts: append([]string(nil), p.parts...)}
	return clone.Add(part)
}

// String renders the prefix with a trailing "/", or "" when empty.
func (p *Prefix) String() string {
	if len(p.parts) == 0 {
		return ""
	}
	return strings.Join(p.parts, "/") + "/"
}

// DeleteError lists every location a recursive delete could not remove.
type DeleteError struct {
	Failed []bm.Location
	Errs   []error
}

func (e *DeleteError) Error() string {
	paths := make([]string, len(e.Failed))
	for i, loc := range e.Failed {
		paths[i] = loc.String()
	}
	return fmt.Sprintf("failed to delete %d location(s): %s", len(e.Failed), strings.Join(paths, ", "))
}

func (e *DeleteError) Unwrap() []error { return e.Errs }

// DeleteRecursive removes target and everything below it, deepest first.
// Every location is attempted; failures are reported together.
func DeleteRecursive(ctx context.Context, provider bm.StorageProvider, target bm.Location) error {
	locs, err := provider.Walk(ctx, target, math.MaxInt, false)
	if err != nil {
		if errors.Is(err, bm.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("walking %s: %w", target, err)
	}

	sort.SliceStable(locs, func(i, j int) bool { return locs[i].Depth() > locs[j].Depth() })

	var derr DeleteError
	for _, loc := range locs {
		if err := provider.Delete(ctx, loc); err != nil {
			derr.Failed = append(derr.Failed, loc)
			derr.Errs = append(derr.Errs, err)
		}
	}
	if len(derr.Failed) > 0 {
		return &derr
	}
	return nil
}

// WalkFiles returns every file below root in depth-first order.
func WalkFiles(ctx context.Context, provider bm.StorageProvider, root bm.Location) ([]bm.Location, error) {
	locs, err := provider.Walk(ctx, root, math.MaxInt, false)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	var files []bm.Location
	for _, loc := range locs {
		isFile, err := provider.IsFile(ctx, loc)
		if err != nil {
			return nil, err
		}
		if isFile {
			files = append(files, loc)
		}
	}
	return files, nil
}
