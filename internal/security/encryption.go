package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Scrypt parameters follow the OWASP recommended minimums for a
// locally-derived storage key.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32 // AES-256
)

const (
	// BlobNonceSize is the random nonce prefix of every encrypted blob.
	BlobNonceSize = 16
	// BlobTagSize is the GCM authentication tag length.
	BlobTagSize = 16
)

// keyDerivationSuffix is appended to the fingerprint before key
// derivation so the raw fingerprint alone is not the store password.
const keyDerivationSuffix = "::vc-store-key-v1"

// keyDerivationSalt is the fixed application salt for scrypt. The real
// entropy comes from the per-machine fingerprint.
var keyDerivationSalt = []byte("vcengine-license-store")

// ErrBlobCorrupt is returned when an encrypted blob fails authentication
// or is structurally truncated. Callers treat it as "no valid record".
var ErrBlobCorrupt = errors.New("encrypted blob corrupt or tampered")

// DeriveStoreKey derives the AES-256 store key from the machine
// fingerprint. The key is intentionally rederived on every operation and
// never persisted.
func DeriveStoreKey(fingerprint string) ([]byte, error) {
	if fingerprint == "" {
		return nil, errors.New("fingerprint must not be empty")
	}
	key, err := scrypt.Key([]byte(fingerprint+keyDerivationSuffix), keyDerivationSalt,
		scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive store key: %w", err)
	}
	return key, nil
}

// EncryptBlob seals plaintext with AES-256-GCM and returns the blob as
// base64(nonce || tag || ciphertext).
func EncryptBlob(key, plaintext []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, BlobNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	tag := sealed[len(sealed)-BlobTagSize:]
	ciphertext := sealed[:len(sealed)-BlobTagSize]

	blob := make([]byte, 0, len(nonce)+len(tag)+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptBlob opens a blob produced by EncryptBlob. Any structural or
// authentication failure collapses to ErrBlobCorrupt; the cause is not
// surfaced so ciphertext details never leak into caller messages.
func DecryptBlob(key []byte, blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, ErrBlobCorrupt
	}
	if len(raw) < BlobNonceSize+BlobTagSize {
		return nil, ErrBlobCorrupt
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := raw[:BlobNonceSize]
	tag := raw[BlobNonceSize : BlobNonceSize+BlobTagSize]
	ciphertext := raw[BlobNonceSize+BlobTagSize:]

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrBlobCorrupt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != scryptKeyLen {
		return nil, fmt.Errorf("store key must be %d bytes, got %d", scryptKeyLen, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, BlobNonceSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
