package app

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"bm-go/internal/archive"
	"bm-go/internal/bm"
	"bm-go/internal/ignore"
)

// StageBackup copies a local metadata document and payload directory into
// storage as the backup managerID/backupName, replacing any previous
// content. Symlinks, other non-regular files and paths matched by the
// configured ignore patterns or the payload's .bmignore are skipped.
// Returns the number of payload files copied.
func (a *BMApp) StageBackup(ctx context.Context, managerID, backupName, metadataPath, dataPath string) (int, error) {
	if err := archive.CheckName(backupName); err != nil {
		return 0, fmt.Errorf("backup name: %w", err)
	}
	if err := a.persistOperation(ctx); err != nil {
		return 0, err
	}
	if _, err := a.managers.Get(ctx, managerID); err != nil {
		return 0, a.op.Fail(err)
	}
	n, err := a.stageBackup(ctx, managerID, backupName, metadataPath, dataPath)
	return n, a.op.Fail(err)
}

func (a *BMApp) stageBackup(ctx context.Context, managerID, backupName, metadataPath, dataPath string) (int, error) {
	info, err := os.Stat(dataPath)
	if err != nil {
		return 0, fmt.Errorf("reading payload directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("payload %s is not a directory", dataPath)
	}

	matcher, err := ignore.ForPayload(dataPath, a.cfg.Stage.Ignore)
	if err != nil {
		return 0, err
	}

	if err := archive.DeleteRecursive(ctx, a.provider, a.layout.backup(managerID, backupName)); err != nil {
		return 0, fmt.Errorf("clearing previous content: %w", err)
	}

	metaDir := a.layout.metadataDir(managerID, backupName)
	if err := a.provider.MkdirAll(ctx, metaDir); err != nil {
		return 0, fmt.Errorf("creating metadata directory: %w", err)
	}
	if err := a.copyLocal(ctx, metadataPath, a.layout.metadataFile(managerID, backupName)); err != nil {
		return 0, err
	}

	dataDir := a.layout.dataDir(managerID, backupName)
	if err := a.provider.MkdirAll(ctx, dataDir); err != nil {
		return 0, fmt.Errorf("creating payload directory: %w", err)
	}

	count := 0
	err = filepath.WalkDir(dataPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dataPath, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if matcher.Match(rel) {
			a.logger.Debug("ignoring", "path", p)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		dest := dataDir.Join(filepath.ToSlash(rel))

		switch {
		case d.IsDir():
			return a.provider.MkdirAll(ctx, dest)
		case d.Type().IsRegular():
			if err := a.copyLocal(ctx, p, dest); err != nil {
				return err
			}
			count++
			return nil
		default:
			a.logger.Warn("skipping non-regular file", "path", p)
			return nil
		}
	})
	if err != nil {
		return count, fmt.Errorf("staging payload: %w", err)
	}

	a.logger.Info("staged backup", "manager", managerID, "backup", backupName, "files", count)
	return count, nil
}

func (a *BMApp) copyLocal(ctx context.Context, src string, dest bm.Location) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()

	w, err := a.provider.NewWriter(ctx, dest, bm.WriteTruncate)
	if err != nil {
		return fmt.Errorf("staging %s: %w", src, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("staging %s: %w", src, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("staging %s: %w", src, err)
	}
	return nil
}
