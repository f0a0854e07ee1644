/*

The key vault provides authenticated symmetric encryption (AES-256-GCM) for
private keys at rest. Authenticated encryption is mandatory here: a corrupted or
tampered private key must never reach a signer, so tag verification failures are
hard errors rather than garbage plaintext.

*/

package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Error definitions for zero-tolerance error handling
var (
	ErrEncryption = errors.New("encryption failed")
	ErrIntegrity  = errors.New("ciphertext integrity check failed")
	ErrFormat     = errors.New("ciphertext blob format is invalid")
	ErrKeySize    = errors.New("symmetric key must be exactly 32 bytes")
)

const (
	nonceSize = 12 // 96-bit nonce, regenerated on every Encrypt call
	tagSize   = 16
	keySize   = 32
)

// Vault performs encryption and decryption of private key material. It holds the
// process-wide symmetric key in memory only and has no knowledge of chain state.
type Vault struct {
	aead cipher.AEAD
}

// New creates a vault from a 32-byte symmetric key.
func New(key []byte) (*Vault, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d", ErrKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrEncryption, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrEncryption, err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals a plaintext private key and returns a colon-delimited hex blob
// of the form nonce:ciphertext:authTag. A fresh random nonce is generated per
// call; a nonce is never reused for the same key material.
func (v *Vault) Encrypt(plaintextKey string) (string, error) {
	if plaintextKey == "" {
		return "", fmt.Errorf("%w: plaintext key is empty", ErrEncryption)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Join(ErrEncryption, err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintextKey), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ciphertext) + ":" + hex.EncodeToString(tag), nil
}

// Decrypt opens a blob produced by Encrypt. It fails with ErrFormat if the blob
// does not parse into exactly three hex segments, and with ErrIntegrity if the
// authentication tag does not verify.
func (v *Vault) Decrypt(blob string) (string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrFormat, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: nonce segment is not valid hex", ErrFormat)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrFormat, nonceSize, len(nonce))
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext segment is not valid hex", ErrFormat)
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: auth tag segment is not valid hex", ErrFormat)
	}
	if len(tag) != tagSize {
		return "", fmt.Errorf("%w: auth tag must be %d bytes, got %d", ErrFormat, tagSize, len(tag))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// Tampered or corrupted ciphertext. This must surface to an operator;
		// auto-recovery could mask key corruption.
		return "", ErrIntegrity
	}

	return string(plaintext), nil
}
