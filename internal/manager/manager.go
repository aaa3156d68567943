// Package manager persists backup-manager descriptors. Older installations
// wrote one YAML file per manager; current ones write a JSON file inside a
// per-manager folder. Both layouts are read; only the current one is written.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"bm-go/internal/bm"
	"bm-go/internal/objectfile"
)

const (
	// DefaultBackupType is assumed for descriptors that cannot be parsed.
	DefaultBackupType = "FULL"
	// DefaultBackupDomain is assumed for descriptors that cannot be parsed.
	DefaultBackupDomain = "DEFAULT"

	descriptorFile = "backupmanager.json"
)

// BackupManager describes one configured backup manager. Archives it
// produces are laid out under its ID.
type BackupManager struct {
	ID           string `json:"id" yaml:"id"`
	BackupType   string `json:"backupType" yaml:"backup_type"`
	BackupDomain string `json:"backupDomain" yaml:"backup_domain"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate checks that the descriptor can be stored.
func (m BackupManager) Validate() error {
	if m.ID == "" || m.ID == "." || m.ID == ".." || strings.ContainsAny(m.ID, `/\`) {
		return fmt.Errorf("invalid backup manager id %q", m.ID)
	}
	return nil
}

// VersionYAML is the legacy layout: <root>/<id>.yaml.
var VersionYAML = &objectfile.Version[BackupManager]{
	Name:   "v0",
	Depth:  1,
	Filter: func(rel string) bool { return strings.HasSuffix(rel, ".yaml") },
	Parse: func(data string) (BackupManager, error) {
		var m BackupManager
		if err := yaml.Unmarshal([]byte(data), &m); err != nil {
			return m, err
		}
		if err := m.Validate(); err != nil {
			return m, err
		}
		return m, nil
	},
	Marshal: func(m BackupManager) ([]byte, error) { return yaml.Marshal(m) },
	ToBase:  func(loc bm.Location) bm.Location { return bm.NewLocation(loc.String() + ".yaml") },
}

// VersionJSON is the current layout: <root>/<id>/backupmanager.json.
var VersionJSON = &objectfile.Version[BackupManager]{
	Name:   "v1",
	Depth:  2,
	Filter: func(rel string) bool { return strings.HasSuffix(rel, "/"+descriptorFile) },
	Parse: func(data string) (BackupManager, error) {
		var m BackupManager
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return m, err
		}
		if err := m.Validate(); err != nil {
			return m, err
		}
		return m, nil
	},
	Marshal: func(m BackupManager) ([]byte, error) { return json.MarshalIndent(m, "", "  ") },
	ToBase:  func(loc bm.Location) bm.Location { return loc.Join(descriptorFile) },
}

// IDFromPath recovers a manager ID from the location of its descriptor file.
func IDFromPath(loc bm.Location) string {
	if loc.Base() == descriptorFile {
		return loc.Parent().Base()
	}
	return strings.TrimSuffix(loc.Base(), ".yaml")
}

// Defaults rebuilds a descriptor for a file whose content could not be parsed.
func Defaults(loc bm.Location) (BackupManager, bool) {
	m := BackupManager{
		ID:           IDFromPath(loc),
		BackupType:   DefaultBackupType,
		BackupDomain: DefaultBackupDomain,
	}
	if m.Validate() != nil {
		return BackupManager{}, false
	}
	return m, true
}

// Store reads and writes descriptors below a root location.
type Store struct {
	files *objectfile.Service[BackupManager]
}

// NewStore creates a store rooted at root.
func NewStore(provider bm.StorageProvider, root bm.Location, logger bm.Logger) (*Store, error) {
	files, err := objectfile.NewService(provider, root,
		func(m BackupManager) bm.Location { return bm.NewLocation(m.ID) },
		logger, VersionYAML, VersionJSON)
	if err != nil {
		return nil, err
	}
	return &Store{files: files}, nil
}

// List returns every stored descriptor with the layout it was read from.
func (s *Store) List(ctx context.Context) ([]*objectfile.Document[BackupManager], error) {
	docs, err := s.files.ReadAll(ctx, Defaults)
	if err != nil {
		return nil, fmt.Errorf("listing backup managers: %w", err)
	}
	return docs, nil
}

// Get returns the descriptor with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*BackupManager, error) {
	docs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.Value.ID == id {
			m := doc.Value
			return &m, nil
		}
	}
	return nil, fmt.Errorf("backup manager %q: %w", id, bm.ErrNotFound)
}

// Save writes m in the current layout. A legacy file for the same ID is
// removed afterwards so the manager is not listed twice.
func (s *Store) Save(ctx context.Context, m BackupManager) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.files.Write(ctx, &objectfile.Document[BackupManager]{Value: m}); err != nil {
		return fmt.Errorf("saving backup manager %s: %w", m.ID, err)
	}

	legacy := &objectfile.Document[BackupManager]{Value: m, Version: VersionYAML}
	if err := s.files.Delete(ctx, legacy); err != nil && !errors.Is(err, bm.ErrNotFound) {
		return fmt.Errorf("removing legacy descriptor for %s: %w", m.ID, err)
	}
	return nil
}
