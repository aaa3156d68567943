// Package objectfile persists small typed documents whose on-disk schema has
// changed over time. Each schema is a Version; writes always use the latest
// one, reads accept any registered version.
package objectfile

import (
	"context"
	"errors"
	"fmt"

	"bm-go/internal/bm"
)

// Version describes one on-disk schema of a document type.
type Version[T any] struct {
	Name string

	// Depth is the number of segments between the service root and a
	// document file of this version.
	Depth int

	// Filter reports whether a file (given relative to the root) may be a
	// document of this version.
	Filter func(rel string) bool

	Parse   func(data string) (T, error)
	Marshal func(value T) ([]byte, error)

	// ToBase maps a document's logical location to its file, relative to the root.
	ToBase func(loc bm.Location) bm.Location
}

// Document pairs a value with the schema version it was read with or will be written as.
type Document[T any] struct {
	Value   T
	Version *Version[T]
}

// Service reads and writes documents of type T below a fixed root.
type Service[T any] struct {
	provider bm.StorageProvider
	root     bm.Location
	locate   func(T) bm.Location
	versions []*Version[T]
	logger   bm.Logger
}

// NewService creates a service. versions must be ordered oldest to newest;
// the last one is used for writes. locate returns a value's logical
// location relative to root.
func NewService[T any](provider bm.StorageProvider, root bm.Location, locate func(T) bm.Location, logger bm.Logger, versions ...*Version[T]) (*Service[T], error) {
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: at least one document version is required", bm.ErrInvalidConfig)
	}
	if logger == nil {
		logger = bm.NewNopLogger()
	}
	return &Service[T]{
		provider: provider,
		root:     root,
		locate:   locate,
		versions: versions,
		logger:   logger,
	}, nil
}

// Latest returns the version used for writes.
func (s *Service[T]) Latest() *Version[T] {
	return s.versions[len(s.versions)-1]
}

// FileFor returns the file a document is stored at under its version.
func (s *Service[T]) FileFor(doc *Document[T]) bm.Location {
	v := doc.Version
	if v == nil {
		v = s.Latest()
	}
	return s.root.Join(v.ToBase(s.locate(doc.Value)).String())
}

// Write stores doc, stamping it with the latest version if it has none.
func (s *Service[T]) Write(ctx context.Context, doc *Document[T]) error {
	if doc.Version == nil {
		doc.Version = s.Latest()
	}
	data, err := doc.Version.Marshal(doc.Value)
	if err != nil {
		return fmt.Errorf("marshaling %s document: %w", doc.Version.Name, err)
	}
	file := s.FileFor(doc)
	if err := s.provider.Write(ctx, file.Parent(), file, data); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}

// Delete removes the file backing doc. A missing file is not an error.
func (s *Service[T]) Delete(ctx context.Context, doc *Document[T]) error {
	if err := s.provider.Delete(ctx, s.FileFor(doc)); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// ReadAll returns every document found below the root. Files that no version
// recognizes are skipped. Files that some version recognizes but none can
// parse are passed to defaultFn; a returned value is kept and stamped with
// the latest version so the next Write upgrades it, otherwise it is dropped.
// Only storage failures are returned as errors.
func (s *Service[T]) ReadAll(ctx context.Context, defaultFn func(bm.Location) (T, bool)) ([]*Document[T], error) {
	exists, err := s.provider.Exists(ctx, s.root)
	if err != nil {
		return nil, fmt.Errorf("checking document root: %w", err)
	}
	if !exists {
		return nil, nil
	}

	maxDepth := 0
	for _, v := range s.versions {
		maxDepth = max(maxDepth, v.Depth)
	}

	locs, err := s.provider.Walk(ctx, s.root, maxDepth, false)
	if err != nil {
		if errors.Is(err, bm.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("walking document root: %w", err)
	}

	var docs []*Document[T]
	for _, loc := range locs {
		rel, ok := s.root.Rel(loc)
		if !ok || rel == "" {
			continue
		}
		doc, err := s.readOne(ctx, loc, rel, defaultFn)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// readOne tries every version newest first. It returns nil when the file is
// not a document or is unrecoverable.
func (s *Service[T]) readOne(ctx context.Context, loc bm.Location, rel string, defaultFn func(bm.Location) (T, bool)) (*Document[T], error) {
	depth := bm.NewLocation(rel).Depth()
	matched := false
	var content *string

	for i := len(s.versions) - 1; i >= 0; i-- {
		v := s.versions[i]
		if v.Depth != depth || !v.Filter(rel) {
			continue
		}

		if content == nil {
			isFile, err := s.provider.IsFile(ctx, loc)
			if err != nil {
				return nil, fmt.Errorf("checking %s: %w", loc, err)
			}
			if !isFile {
				return nil, nil
			}
			data, err := s.provider.Read(ctx, loc)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", loc, err)
			}
			content = &data
		}
		matched = true

		value, err := v.Parse(*content)
		if err != nil {
			s.logger.Debug("document does not parse as version", "path", loc.String(), "version", v.Name, "error", err)
			continue
		}
		return &Document[T]{Value: value, Version: v}, nil
	}

	if !matched {
		return nil, nil
	}

	if defaultFn != nil {
		if value, ok := defaultFn(loc); ok {
			s.logger.Warn("corrupted document replaced with defaults", "path", loc.String())
			return &Document[T]{Value: value, Version: s.Latest()}, nil
		}
	}
	s.logger.Warn("corrupted document dropped", "path", loc.String())
	return nil, nil
}
