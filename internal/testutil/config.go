package testutil

import (
	"path/filepath"
	"testing"

	"bm-go/internal/config"
)

// NewTestConfig returns a config backed by in-memory storage, an in-memory
// catalog and the test encryptor. Log and temp directories live under t.TempDir.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.NewConfig(base)
	cfg.Storage = config.StorageConfig{Type: "memory"}
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	cfg.LogDir = filepath.Join(base, "log")
	return cfg
}
