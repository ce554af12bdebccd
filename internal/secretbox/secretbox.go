// Package secretbox encrypts and decrypts per-customer secrets with a
// password-derived key. Keys come from PBKDF2-HMAC-SHA256 over a
// per-installation random salt; ciphertexts are AES-256-GCM with the nonce
// prepended, base64-encoded for storage in the credential file.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// KDF parameters. Changing these invalidates every stored ciphertext,
// so they are fixed for the life of a credential file.
const (
	kdfIterations = 100_000
	keyLen        = 32
	saltLen       = 16
	nonceLen      = 12
)

// Sentinel errors. Callers distinguish crypto failures from I/O failures
// with errors.Is; neither carries the underlying cause because the cause
// could leak information about key material.
var (
	ErrEncryptionFailed = errors.New("secretbox: encryption failed")
	ErrDecryptionFailed = errors.New("secretbox: decryption failed")

	// ErrKeyCheckFailed means the operator supplied a password that derives
	// the wrong key. This is fatal to the session: continuing would corrupt
	// every secret written afterwards.
	ErrKeyCheckFailed = errors.New("secretbox: key check failed, wrong encryption password")
)

// Cipher holds a derived key and performs authenticated encryption of
// secret strings. The zero value is unusable; construct with New.
type Cipher struct {
	aead cipher.AEAD
}

// DeriveKey derives a 256-bit key from the operator password and the
// per-installation salt.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, kdfIterations, keyLen, sha256.New)
}

// NewSalt returns a fresh random salt for a new credential file.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("secretbox: generating salt: %w", err)
	}

	return salt, nil
}

// EncodeSalt renders a salt for storage in the credential file.
func EncodeSalt(salt []byte) string {
	return base64.StdEncoding.EncodeToString(salt)
}

// DecodeSalt parses a stored salt.
func DecodeSalt(encoded string) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secretbox: decoding salt: %w", err)
	}

	if len(salt) != saltLen {
		return nil, fmt.Errorf("secretbox: salt has %d bytes, want %d", len(salt), saltLen)
	}

	return salt, nil
}

// New builds a Cipher from a derived key. The key must be keyLen bytes.
func New(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: creating GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// NewFromPassword derives a key and builds a Cipher in one step.
func NewFromPassword(password, salt []byte) (*Cipher, error) {
	return New(DeriveKey(password, salt))
}

// Encrypt seals a plaintext string and returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Malformed encoding, truncated
// input, and authentication failures all return ErrDecryptionFailed.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	if len(sealed) < nonceLen {
		return "", ErrDecryptionFailed
	}

	nonce, ciphertext := sealed[:nonceLen], sealed[nonceLen:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// VerifyKeyCheck decrypts the stored key-check ciphertext. Any decryption
// failure maps to ErrKeyCheckFailed so the caller can treat it as the one
// unrecoverable startup condition.
func (c *Cipher) VerifyKeyCheck(keyCheck string) error {
	if _, err := c.Decrypt(keyCheck); err != nil {
		return ErrKeyCheckFailed
	}

	return nil
}
