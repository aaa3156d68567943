package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"bm-go/internal/archive"
	"bm-go/internal/bm"
	"bm-go/internal/checksum"
	"bm-go/internal/config"
	"bm-go/internal/database"
	"bm-go/internal/encryption"
	"bm-go/internal/manager"
	"bm-go/internal/storage"
)

// BMApp is the application layer between the CLI and the archive, storage
// and catalog packages. It constructs all dependencies from config, exposes
// high-level operations, and manages the catalog lifecycle on Close.
type BMApp struct {
	cfg       *config.Config
	db        bm.Catalog
	provider  bm.StorageProvider
	layout    layout
	archives  *archive.Service
	managers  *manager.Store
	encryptor bm.Encryptor
	logger    bm.Logger
	clock     bm.Clock
	ids       bm.IDGenerator
	op        *Operation
	logFile   *os.File
}

// NewBMApp creates a fully wired BMApp from the given config.
// operation identifies the CLI command being run (e.g. "ExportBackup", "AddManager").
// The caller must call Close when done.
func NewBMApp(ctx context.Context, cfg *config.Config, operation, parameters string) (*BMApp, error) {
	return newBMApp(ctx, cfg, operation, parameters, bm.RealClock{}, bm.UUIDGenerator{})
}

func newBMApp(ctx context.Context, cfg *config.Config, operation, parameters string, clock bm.Clock, ids bm.IDGenerator) (*BMApp, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	compression, err := archive.ParseCompressionLevel(cfg.Export.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("export compression level: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := clock.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, opID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	provider, err := storage.NewProviderFromConfig(ctx, cfg.Storage, cfg.TempDir, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating storage provider: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	lay := layout{root: storage.RootLocation(cfg.Storage), exportDir: cfg.Export.Dir}
	managers, err := manager.NewStore(provider, lay.managers(), logger)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating manager store: %w", err)
	}

	return &BMApp{
		cfg:       cfg,
		db:        db,
		provider:  provider,
		layout:    lay,
		archives:  archive.NewService(provider, compression, logger, clock),
		managers:  managers,
		encryptor: enc,
		logger:    logger,
		clock:     clock,
		ids:       ids,
		op:        NewOperation(operation, parameters),
		logFile:   logFile,
	}, nil
}

// persistOperation saves the operation to the catalog, giving it an auto-increment ID.
// This should only be called for mutating commands.
func (a *BMApp) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(ctx, a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// AddManager stores a new backup-manager descriptor. Empty type and domain
// fall back to the defaults.
func (a *BMApp) AddManager(ctx context.Context, m manager.BackupManager) error {
	if err := archive.CheckName(m.ID); err != nil {
		return fmt.Errorf("backup manager ID: %w", err)
	}
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	if m.BackupType == "" {
		m.BackupType = manager.DefaultBackupType
	}
	if m.BackupDomain == "" {
		m.BackupDomain = manager.DefaultBackupDomain
	}

	_, err := a.managers.Get(ctx, m.ID)
	switch {
	case err == nil:
		return a.op.Fail(fmt.Errorf("backup manager %q: %w", m.ID, bm.ErrExists))
	case !errors.Is(err, bm.ErrNotFound):
		return a.op.Fail(err)
	}

	if err := a.managers.Save(ctx, m); err != nil {
		return a.op.Fail(err)
	}
	a.logger.Info("added backup manager", "id", m.ID, "type", m.BackupType, "domain", m.BackupDomain)
	return nil
}

// ListManagers returns every stored backup-manager descriptor.
func (a *BMApp) ListManagers(ctx context.Context) ([]manager.BackupManager, error) {
	docs, err := a.managers.List(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]manager.BackupManager, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.Value)
	}
	return result, nil
}

// ExportBackup packs the stored backup managerID/backupName into a tarball
// below the export directory and records it in the catalog. When encrypt is
// true the tarball is age-encrypted as it is written.
func (a *BMApp) ExportBackup(ctx context.Context, managerID, backupName string, encrypt bool) (*bm.ArchiveRecord, error) {
	if !a.cfg.Export.Enabled {
		return nil, fmt.Errorf("export is disabled: %w", bm.ErrInvalidConfig)
	}
	if encrypt && !a.encryptor.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not configured: run 'bm config keys'")
	}
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	if _, err := a.managers.Get(ctx, managerID); err != nil {
		return nil, a.op.Fail(err)
	}

	rec, err := a.exportBackup(ctx, managerID, backupName, encrypt)
	return rec, a.op.Fail(err)
}

func (a *BMApp) exportBackup(ctx context.Context, managerID, backupName string, encrypt bool) (*bm.ArchiveRecord, error) {
	backup := bm.Backup{Name: backupName, CreationType: bm.CreationManual, CreationTime: a.clock.Now().UTC()}
	name := archive.TarballName(backup)
	if encrypt {
		name += encryptedSuffix
	}
	dir := a.layout.exports(managerID)
	dest := dir.Join(name)

	if err := a.releaseSpace(ctx); err != nil {
		return nil, err
	}
	defer a.reserveSpace(ctx)

	if err := a.provider.MkdirAll(ctx, dir); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	w, err := a.provider.NewWriter(ctx, dest, bm.WriteTruncate)
	if err != nil {
		return nil, fmt.Errorf("opening export destination: %w", err)
	}

	result, err := a.pack(ctx, w, managerID, backupName, encrypt)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("finishing export: %w", cerr)
	}
	if err != nil {
		if derr := a.provider.Delete(ctx, dest); derr != nil {
			a.logger.Warn("could not remove partial export", "location", dest.String(), "error", derr)
		}
		return nil, err
	}

	rec := &bm.ArchiveRecord{
		ID:          a.ids.New(),
		OperationID: a.op.ID,
		ManagerID:   managerID,
		BackupName:  backupName,
		Location:    dest.String(),
		Checksum:    checksum.Hex(result.Checksum),
		Size:        result.Size,
		Entries:     result.Entries,
		Encrypted:   encrypt,
		CreatedAt:   backup.CreationTime,
	}
	if err := a.db.RecordArchive(ctx, rec); err != nil {
		return nil, err
	}

	a.logger.Info("exported backup", "manager", managerID, "backup", backupName,
		"location", rec.Location, "entries", rec.Entries, "bytes", rec.Size, "checksum", rec.Checksum)
	return rec, nil
}

func (a *BMApp) pack(ctx context.Context, w io.Writer, managerID, backupName string, encrypt bool) (*archive.PackResult, error) {
	out := w
	var ew io.WriteCloser
	if encrypt {
		var err error
		ew, err = a.encryptor.Encrypt(w)
		if err != nil {
			return nil, fmt.Errorf("starting encryption: %w", err)
		}
		out = ew
	}

	result, err := a.archives.Pack(ctx, out,
		a.layout.metadataFile(managerID, backupName), a.layout.dataDir(managerID, backupName),
		managerID, backupName)
	if ew != nil {
		if cerr := ew.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("finishing encryption: %w", cerr)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("packing %s/%s: %w", managerID, backupName, err)
	}
	return result, nil
}

// releaseSpace frees the reserved-space placeholder so the export can use it.
func (a *BMApp) releaseSpace(ctx context.Context) error {
	if a.cfg.Storage.ReservedSpace <= 0 {
		return nil
	}
	if err := a.provider.DeleteDummyFile(ctx); err != nil {
		return fmt.Errorf("releasing reserved space: %w", err)
	}
	return nil
}

// reserveSpace puts the placeholder back. Failure only costs the reservation.
func (a *BMApp) reserveSpace(ctx context.Context) {
	if a.cfg.Storage.ReservedSpace <= 0 {
		return
	}
	if err := a.provider.CreateDummyFile(ctx, a.cfg.Storage.ReservedSpace); err != nil {
		a.logger.Warn("could not reserve space", "size", a.cfg.Storage.ReservedSpace, "error", err)
	}
}

// IsEncryptedArchive reports whether an archive name carries the encrypted suffix.
func IsEncryptedArchive(name string) bool {
	return strings.HasSuffix(name, encryptedSuffix)
}

// ImportBackup unpacks the archive stored at rawLocation (relative to the
// storage root unless absolute) into the stored backup managerID/backupName,
// replacing whatever was stored under that name before.
// passphrase unlocks the private key for encrypted archives.
// Returns the locations that were created.
func (a *BMApp) ImportBackup(ctx context.Context, rawLocation, managerID, backupName, passphrase string) ([]bm.Location, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}

	src := bm.ParseLocation(rawLocation)
	if !src.IsAbs() {
		src = a.layout.root.Join(src.String())
	}
	r, err := a.provider.NewReader(ctx, src)
	if err != nil {
		return nil, a.op.Fail(fmt.Errorf("opening archive: %w", err))
	}
	defer r.Close()

	created, err := a.importFrom(ctx, r, IsEncryptedArchive(src.Base()), managerID, backupName, passphrase)
	return created, a.op.Fail(err)
}

// ImportBackupFrom unpacks an archive read from r, e.g. a local file. Like
// ImportBackup it replaces the stored backup.
func (a *BMApp) ImportBackupFrom(ctx context.Context, r io.Reader, encrypted bool, managerID, backupName, passphrase string) ([]bm.Location, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	created, err := a.importFrom(ctx, r, encrypted, managerID, backupName, passphrase)
	return created, a.op.Fail(err)
}

func (a *BMApp) importFrom(ctx context.Context, r io.Reader, encrypted bool, managerID, backupName, passphrase string) ([]bm.Location, error) {
	if encrypted {
		dc, err := a.encryptor.Unlock(passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlocking private key: %w", err)
		}
		r, err = dc.Decrypt(r)
		if err != nil {
			return nil, fmt.Errorf("starting decryption: %w", err)
		}
	}

	if err := archive.DeleteRecursive(ctx, a.provider, a.layout.backup(managerID, backupName)); err != nil {
		return nil, fmt.Errorf("clearing previous content: %w", err)
	}

	created, err := a.archives.Unpack(ctx, r,
		a.layout.dataDir(managerID, backupName), a.layout.metadataDir(managerID, backupName),
		func(ok bool) {
			if !ok {
				a.logger.Warn("import incomplete", "manager", managerID, "backup", backupName)
			}
		})
	if err != nil {
		return created, fmt.Errorf("unpacking into %s/%s: %w", managerID, backupName, err)
	}

	a.logger.Info("imported backup", "manager", managerID, "backup", backupName, "created", len(created))
	return created, nil
}

// ListArchives returns recorded exports, newest first. An empty managerID lists all.
func (a *BMApp) ListArchives(ctx context.Context, managerID string) ([]*bm.ArchiveRecord, error) {
	return a.db.ListArchives(ctx, managerID)
}

// GetHistory returns the most recent operations.
func (a *BMApp) GetHistory(ctx context.Context, limit int) ([]*bm.Operation, error) {
	return a.db.ListOperations(ctx, limit)
}

// SetupKeys generates the encryption key pair, protecting the private key with passphrase.
func (a *BMApp) SetupKeys(passphrase string) error {
	if a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys already exist")
	}
	return a.encryptor.Setup(passphrase)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record and uploads a
// catalog snapshot to storage. For non-persisted operations: just closes the database.
func (a *BMApp) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if a.op.Persisted() {
		if err := a.db.FinishOperation(ctx, a.op.ID, a.op.Status); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}
		if err := a.snapshotCatalog(ctx); err != nil {
			keep(err)
		}
	}

	if err := a.db.Close(); err != nil {
		keep(fmt.Errorf("closing database: %w", err))
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// snapshotCatalog copies the catalog into storage so it survives the loss of the local disk.
func (a *BMApp) snapshotCatalog(ctx context.Context) error {
	tmpFile, err := os.CreateTemp("", "bm-db-backup-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for db backup: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(tmpPath); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	dest := a.layout.catalog()
	if err := a.provider.MkdirAll(ctx, dest.Parent()); err != nil {
		return fmt.Errorf("uploading catalog snapshot: %w", err)
	}
	w, err := a.provider.NewWriter(ctx, dest, bm.WriteTruncate)
	if err != nil {
		return fmt.Errorf("uploading catalog snapshot: %w", err)
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("uploading catalog snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("uploading catalog snapshot: %w", err)
	}
	a.logger.Debug("uploaded catalog snapshot", "location", dest.String(), "operation", a.op.ID)
	return nil
}
