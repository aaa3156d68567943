package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"

	"bm-go/internal/bm"
	"bm-go/internal/checksum"
)

// PackResult summarizes a written archive.
type PackResult struct {
	// Checksum is the xxhash64 of the compressed bytes handed to the sink.
	Checksum uint64
	Size     int64
	Entries  int
}

// Service packs and unpacks backup archives through a storage provider.
// It holds no per-archive state, so one Service may serve concurrent calls.
type Service struct {
	provider bm.StorageProvider
	level    CompressionLevel
	logger   bm.Logger
	clock    bm.Clock
}

// NewService creates an archive service.
func NewService(provider bm.StorageProvider, level CompressionLevel, logger bm.Logger, clock bm.Clock) *Service {
	if logger == nil {
		logger = bm.NewNopLogger()
	}
	if clock == nil {
		clock = bm.RealClock{}
	}
	return &Service{provider: provider, level: level, logger: logger, clock: clock}
}

// Pack writes a gzip-compressed tar archive to w containing metadataFile
// below <managerID>/<backupName>/backupfiles/ and the tree rooted at dataDir
// below <managerID>/<backupName>/backupdata/.
func (s *Service) Pack(ctx context.Context, w io.Writer, metadataFile, dataDir bm.Location, managerID, backupName string) (*PackResult, error) {
	for _, name := range []string{managerID, backupName} {
		if err := CheckName(name); err != nil {
			return nil, err
		}
	}

	cw := checksum.NewWriter(w)
	gz, err := gzip.NewWriterLevel(cw, int(s.level))
	if err != nil {
		return nil, fmt.Errorf("%w: compression level %d: %v", bm.ErrInvalidConfig, s.level, err)
	}
	tw := tar.NewWriter(gz)

	root := NewPrefix(managerID, backupName)
	files := root.Fork(MetadataMarker)
	data := root.Fork(DataMarker)
	p := &packer{svc: s, tw: tw}

	if err := p.dir(files.String()); err != nil {
		return nil, err
	}
	if err := p.metadata(ctx, files.String()+metadataFile.Base(), metadataFile); err != nil {
		return nil, err
	}
	if err := p.dir(data.String()); err != nil {
		return nil, err
	}

	locs, err := s.provider.Walk(ctx, dataDir, math.MaxInt, false)
	if err != nil {
		return nil, fmt.Errorf("walking data directory: %w", err)
	}
	for _, loc := range locs {
		if loc.Equal(dataDir) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.payload(ctx, dataDir, loc, data.String()); err != nil {
			return nil, err
		}
	}

	// The gzip writer must be closed before the checksum is read, so the
	// trailer is hashed along with everything else.
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip stream: %w", err)
	}
	if err := cw.Flush(); err != nil {
		return nil, fmt.Errorf("flushing archive: %w", err)
	}

	result := &PackResult{Checksum: cw.Sum64(), Size: cw.Count(), Entries: p.entries}
	s.logger.Debug("packed archive",
		"manager", managerID, "backup", backupName,
		"entries", result.Entries, "bytes", result.Size, "checksum", checksum.Hex(result.Checksum))
	return result, nil
}

// packer writes entries into one tar stream.
type packer struct {
	svc     *Service
	tw      *tar.Writer
	entries int
}

func (p *packer) header(name string, typeflag byte, mode, size int64) *tar.Header {
	return &tar.Header{
		Name:     name,
		Typeflag: typeflag,
		Mode:     mode,
		Size:     size,
		ModTime:  p.svc.clock.Now(),
		Format:   tar.FormatPAX,
	}
}

func (p *packer) dir(name string) error {
	if err := p.tw.WriteHeader(p.header(name, tar.TypeDir, 0755, 0)); err != nil {
		return fmt.Errorf("writing entry %s: %w", name, err)
	}
	p.entries++
	return nil
}

// metadata reads the whole document first so the header carries the size
// actually read.
func (p *packer) metadata(ctx context.Context, name string, file bm.Location) error {
	rc, err := p.svc.provider.NewReader(ctx, file)
	if err != nil {
		return fmt.Errorf("opening metadata file: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("reading metadata file: %w", err)
	}

	if err := p.tw.WriteHeader(p.header(name, tar.TypeReg, 0644, int64(len(content)))); err != nil {
		return fmt.Errorf("writing entry %s: %w", name, err)
	}
	if _, err := p.tw.Write(content); err != nil {
		return fmt.Errorf("writing entry %s: %w", name, err)
	}
	p.entries++
	return nil
}

func (p *packer) payload(ctx context.Context, base, loc bm.Location, prefix string) error {
	provider := p.svc.provider

	isDir, err := provider.IsDir(ctx, loc)
	if err != nil {
		return err
	}
	if isDir {
		name, err := EntryName(base, loc, prefix, true)
		if err != nil {
			return err
		}
		return p.dir(name)
	}

	isFile, err := provider.IsFile(ctx, loc)
	if err != nil {
		return err
	}
	if !isFile {
		p.svc.logger.Warn("skipping payload entry that is neither file nor directory", "path", loc.String())
		return nil
	}

	name, err := EntryName(base, loc, prefix, false)
	if err != nil {
		return err
	}
	size, err := provider.Length(ctx, loc)
	if err != nil {
		return err
	}
	rc, err := provider.NewReader(ctx, loc)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := p.tw.WriteHeader(p.header(name, tar.TypeReg, 0644, size)); err != nil {
		return fmt.Errorf("writing entry %s: %w", name, err)
	}
	if _, err := io.Copy(p.tw, rc); err != nil {
		return fmt.Errorf("writing entry %s: %w", name, err)
	}
	p.entries++
	return nil
}

// Unpack extracts the archive read from r, sending metadata entries below
// metadataDest and payload entries below dataDest. After the last entry the
// rest of the gzip member is consumed so the trailer is verified and r is
// left positioned right after the archive. onComplete, if set, receives true
// only when all of that succeeded.
func (s *Service) Unpack(ctx context.Context, r io.Reader, dataDest, metadataDest bm.Location, onComplete func(ok bool)) (created []bm.Location, err error) {
	session := NewSession(s.provider, metadataDest, dataDest, s.logger)
	defer func() {
		created = session.Created()
		if onComplete != nil {
			onComplete(err == nil)
		}
	}()

	cr := checksum.NewReader(r)
	gz, err := gzip.NewReader(cr)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	gz.Multistream(false)

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive entry: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := session.Add(ctx, hdr, tr); err != nil {
			return nil, fmt.Errorf("extracting %s: %w", hdr.Name, err)
		}
	}

	// The tar reader stops at the end-of-archive marker; padding and the
	// gzip trailer are still unread.
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return nil, fmt.Errorf("draining archive trailer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip stream: %w", err)
	}

	s.logger.Debug("unpacked archive", "created", len(session.Created()),
		"bytes", cr.Count(), "checksum", checksum.Hex(cr.Sum64()))
	return nil, nil
}
