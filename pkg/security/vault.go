package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const keyFileName = "vault.key"

// Vault seals installation credentials at rest with AES-256-GCM. The key
// lives beside the data it protects, so sealing guards manifests against
// casual reads and accidental commits, not against an attacker with full
// filesystem access.
type Vault struct {
	key []byte // 32 bytes for AES-256
}

// NewVault creates a vault from a 32-byte key
func NewVault(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &Vault{key: key}, nil
}

// NewVaultFromPassphrase derives the vault key from a passphrase with
// SHA-256.
func NewVaultFromPassphrase(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}
	hash := sha256.Sum256([]byte(passphrase))
	return NewVault(hash[:])
}

// OpenVault loads the vault key from dir, generating a fresh random key
// on first use.
func OpenVault(dir string) (*Vault, error) {
	path := filepath.Join(dir, keyFileName)

	key, err := os.ReadFile(path)
	if err == nil {
		return NewVault(key)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read vault key: %w", err)
	}

	key = make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate vault key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write vault key: %w", err)
	}
	return NewVault(key)
}

// Seal encrypts plaintext and returns it base64-encoded with the nonce
// prepended.
func (v *Vault) Seal(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", errors.New("cannot seal empty data")
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts data produced by Seal
func (v *Vault) Open(sealed string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("sealed data is not base64: %w", err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("sealed data too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
