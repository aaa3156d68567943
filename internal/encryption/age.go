package encryption

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"filippo.io/age/armor"

	"bm-go/internal/bm"
	"bm-go/internal/config"
)

// AgeEncryptor implements bm.Encryptor with an X25519 key pair. Exports are
// encrypted to the public key, which is kept in plaintext. The private key
// file is itself an armored age file sealed with the user's passphrase, so
// importing an encrypted archive always needs the passphrase.
type AgeEncryptor struct {
	publicKeyPath  string
	privateKeyPath string
}

var _ bm.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor creates a new AgeEncryptor from configuration.
func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
	}
}

// Setup generates a key pair and seals the private half with passphrase.
// Existing key files are never overwritten: losing the private key makes
// every encrypted export unreadable.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("empty passphrase")
	}
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := writeKeyFile(e.privateKeyPath, 0600, func(w io.Writer) error {
		return sealIdentity(w, identity, passphrase)
	}); err != nil {
		return fmt.Errorf("private key: %w", err)
	}

	if err := writeKeyFile(e.publicKeyPath, 0644, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, identity.Recipient().String())
		return err
	}); err != nil {
		os.Remove(e.privateKeyPath)
		return fmt.Errorf("public key: %w", err)
	}
	return nil
}

// writeKeyFile creates name exclusively and fills it with fill. A partially
// written file is removed.
func writeKeyFile(name string, perm os.FileMode, fill func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(name), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", name, bm.ErrExists)
		}
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(name)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// sealIdentity writes identity as an armored age file encrypted to passphrase.
func sealIdentity(w io.Writer, identity *age.X25519Identity, passphrase string) error {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	aw := armor.NewWriter(w)
	sealed, err := age.Encrypt(aw, recipient)
	if err != nil {
		return fmt.Errorf("sealing: %w", err)
	}
	if _, err := io.WriteString(sealed, identity.String()+"\n"); err != nil {
		return fmt.Errorf("sealing: %w", err)
	}
	if err := sealed.Close(); err != nil {
		return fmt.Errorf("sealing: %w", err)
	}
	return aw.Close()
}

// Encrypt returns a writer that age-encrypts everything written to it into w
// using the stored public key. Closing it writes the final chunk but does
// not close w.
func (e *AgeEncryptor) Encrypt(w io.Writer) (io.WriteCloser, error) {
	recipients, err := readRecipients(e.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading public key: %w", err)
	}

	encWriter, err := age.Encrypt(w, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	return encWriter, nil
}

// Unlock opens the sealed private key with passphrase.
func (e *AgeEncryptor) Unlock(passphrase string) (bm.DecryptionContext, error) {
	f, err := os.Open(e.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("opening private key: %w", err)
	}
	defer f.Close()

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	plain, err := age.Decrypt(armor.NewReader(f), scrypt)
	if err != nil {
		return nil, fmt.Errorf("unsealing private key: %w", err)
	}

	identities, err := age.ParseIdentities(plain)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &AgeDecryptionContext{identities: identities}, nil
}

// IsConfigured returns true if both key files exist.
func (e *AgeEncryptor) IsConfigured() bool {
	for _, name := range []string{e.publicKeyPath, e.privateKeyPath} {
		if _, err := os.Stat(name); err != nil {
			return false
		}
	}
	return true
}

func readRecipients(name string) ([]age.Recipient, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return age.ParseRecipients(f)
}

// AgeDecryptionContext holds unlocked age identities.
type AgeDecryptionContext struct {
	identities []age.Identity
}

var _ bm.DecryptionContext = (*AgeDecryptionContext)(nil)

// Decrypt returns a reader yielding the plaintext of the age ciphertext in r.
func (c *AgeDecryptionContext) Decrypt(r io.Reader) (io.Reader, error) {
	decReader, err := age.Decrypt(r, c.identities...)
	if err != nil {
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}
	return decReader, nil
}
