package testutil

import (
	"bm-go/internal/bm"
	"bm-go/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() bm.Encryptor {
	return encryption.NewTestEncryptor()
}
