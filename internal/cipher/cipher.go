// Package cipher implements the settings cipher (spec component C14): a
// symmetric AEAD used to encrypt secrets (MQTT broker passwords) at rest in
// the catalog store.
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrKeyNotConfigured is returned by Encrypt/Decrypt when no master key has
// been set but an operation requires one.
var ErrKeyNotConfigured = errors.New("cipher: master key not configured")

// ErrDecryptFailed is returned by Decrypt when the ciphertext cannot be
// authenticated against the configured key (wrong key, corrupt data, or a
// key rotation that invalidated previously stored ciphertext).
var ErrDecryptFailed = errors.New("cipher: decrypt failed")

// AEAD wraps AES-GCM with the key-derivation rule from spec §4.14/§6: a
// base64 or base64url string that decodes to 16, 24, or 32 bytes is used
// directly as the AES key; any other string is SHA-256 hashed into a
// 32-byte key.
type AEAD struct {
	gcm cipher.AEAD
}

// New derives a key from masterKey and builds an AEAD. An empty masterKey
// returns ErrKeyNotConfigured; a nil *AEAD fails every operation with
// ErrKeyNotConfigured.
func New(masterKey string) (*AEAD, error) {
	if masterKey == "" {
		return nil, ErrKeyNotConfigured
	}
	key := deriveKey(masterKey)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: new aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: new gcm: %w", err)
	}
	return &AEAD{gcm: gcm}, nil
}

// deriveKey implements the key-derivation rule: try base64 standard and
// base64url decoding (with and without padding) and accept any result of
// length 16, 24, or 32 bytes; otherwise fall back to SHA-256 of the raw
// UTF-8 string, which always yields 32 bytes.
func deriveKey(masterKey string) []byte {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(masterKey); err == nil {
			switch len(decoded) {
			case 16, 24, 32:
				return decoded
			}
		}
	}
	sum := sha256.Sum256([]byte(masterKey))
	return sum[:]
}

// Encrypted is a ciphertext/nonce pair as stored in AppSetting values.
type Encrypted struct {
	CiphertextB64 string
	NonceB64      string
}

// Encrypt seals plaintext under a fresh 12-byte nonce and base64-encodes
// both halves of the result.
func (a *AEAD) Encrypt(plaintext string) (Encrypted, error) {
	if a == nil {
		return Encrypted{}, ErrKeyNotConfigured
	}
	nonce := make([]byte, a.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Encrypted{}, fmt.Errorf("cipher: generate nonce: %w", err)
	}
	sealed := a.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return Encrypted{
		CiphertextB64: base64.StdEncoding.EncodeToString(sealed),
		NonceB64:      base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// Decrypt opens a ciphertext/nonce pair previously produced by Encrypt.
func (a *AEAD) Decrypt(e Encrypted) (string, error) {
	if a == nil {
		return "", ErrKeyNotConfigured
	}
	nonce, err := base64.StdEncoding.DecodeString(e.NonceB64)
	if err != nil {
		return "", fmt.Errorf("%w: malformed nonce: %v", ErrDecryptFailed, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(e.CiphertextB64)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext: %v", ErrDecryptFailed, err)
	}
	plaintext, err := a.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return string(plaintext), nil
}
