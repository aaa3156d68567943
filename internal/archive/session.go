package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"strings"

	"bm-go/internal/bm"
)

// Session routes the entries of one archive to their destinations and
// remembers every location it materialized. A Session is not safe for
// concurrent use; each unpack owns its own.
type Session struct {
	provider     bm.StorageProvider
	metadataRoot bm.Location
	dataRoot     bm.Location
	logger       bm.Logger

	created []bm.Location
	seen    map[string]bool
}

// NewSession creates a session writing metadata entries below metadataRoot
// and payload entries below dataRoot.
func NewSession(provider bm.StorageProvider, metadataRoot, dataRoot bm.Location, logger bm.Logger) *Session {
	if logger == nil {
		logger = bm.NewNopLogger()
	}
	return &Session{
		provider:     provider,
		metadataRoot: metadataRoot,
		dataRoot:     dataRoot,
		logger:       logger,
		seen:         make(map[string]bool),
	}
}

// Route maps an entry name to its destination. The shallower of the two
// marker segments decides the branch; everything up to and including the
// marker is stripped. ok is false when neither marker is present.
func (s *Session) Route(name string) (dest bm.Location, ok bool) {
	segs := splitName(name)
	metaIdx, dataIdx := -1, -1
	for i, seg := range segs {
		if seg == MetadataMarker && metaIdx < 0 {
			metaIdx = i
		}
		if seg == DataMarker && dataIdx < 0 {
			dataIdx = i
		}
	}

	switch {
	case metaIdx >= 0 && (dataIdx < 0 || metaIdx < dataIdx):
		return s.metadataRoot.Join(segs[metaIdx+1:]...), true
	case dataIdx >= 0:
		return s.dataRoot.Join(segs[dataIdx+1:]...), true
	default:
		return bm.Location{}, false
	}
}

// Add materializes one entry. Entries that cannot be placed are logged and
// skipped; only storage failures are returned.
func (s *Session) Add(ctx context.Context, hdr *tar.Header, r io.Reader) error {
	for _, seg := range splitName(hdr.Name) {
		if seg == ".." {
			s.logger.Warn("skipping entry escaping its destination", "entry", hdr.Name)
			return nil
		}
	}

	dest, ok := s.Route(hdr.Name)
	if !ok {
		s.logger.Warn("skipping entry without a destination marker", "entry", hdr.Name)
		return nil
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return s.ensureDir(ctx, dest)
	case tar.TypeReg:
		if dest.Equal(s.metadataRoot) || dest.Equal(s.dataRoot) {
			s.logger.Warn("skipping file entry naming a destination root", "entry", hdr.Name)
			return nil
		}
		return s.writeFile(ctx, dest, r)
	default:
		s.logger.Warn("skipping unsupported entry type", "entry", hdr.Name, "type", string(hdr.Typeflag))
		return nil
	}
}

// Created returns the locations materialized so far, in creation order.
func (s *Session) Created() []bm.Location {
	return append([]bm.Location(nil), s.created...)
}

func (s *Session) record(loc bm.Location) {
	if s.seen[loc.String()] {
		return
	}
	s.seen[loc.String()] = true
	s.created = append(s.created, loc)
}

// ensureDir creates dir if missing and records it when that made it exist.
// Backends without real directories never report one as created.
func (s *Session) ensureDir(ctx context.Context, dir bm.Location) error {
	exists, err := s.provider.Exists(ctx, dir)
	if err != nil || exists {
		return err
	}
	if err := s.provider.MkdirAll(ctx, dir); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if exists, err = s.provider.Exists(ctx, dir); err != nil {
		return err
	}
	if exists {
		s.record(dir)
	}
	return nil
}

func (s *Session) writeFile(ctx context.Context, dest bm.Location, r io.Reader) error {
	if err := s.ensureDir(ctx, dest.Parent()); err != nil {
		return err
	}

	w, err := s.provider.NewWriter(ctx, dest, bm.WriteTruncate)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dest, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dest, err)
	}
	s.record(dest)
	return nil
}

func splitName(name string) []string {
	var segs []string
	for _, seg := range strings.Split(name, "/") {
		if seg != "" && seg != "." {
			segs = append(segs, seg)
		}
	}
	return segs
}
