package bm

import "io"

// Encryptor encrypts exported archives as they are streamed out.
// Encryption uses the public key only. Decryption requires a passphrase to
// unlock the private key, producing a DecryptionContext for the session.
type Encryptor interface {
	// Setup performs one-time key generation. It stores the public key in
	// plaintext and encrypts the private key with the passphrase.
	Setup(passphrase string) error

	// Encrypt returns a writer that encrypts everything written to it into w.
	// The returned writer must be closed to flush the final ciphertext block.
	Encrypt(w io.Writer) (io.WriteCloser, error)

	// Unlock decrypts the private key using the passphrase.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for the duration
// of an import. The unlocked key is never written to disk.
type DecryptionContext interface {
	// Decrypt returns a reader yielding the plaintext of ciphertext read from r.
	Decrypt(r io.Reader) (io.Reader, error)
}
