// Package cryptox seals tenant credentials before they are written to the
// database.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"golang.org/x/crypto/hkdf"
)

// SealedPrefix marks values produced by Sealer.Seal. Values without it are
// treated as legacy plaintext.
const SealedPrefix = "enc:v1:"

const keyInfo = "boardcontext tenant credentials v1"

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Sealer encrypts short secrets with AES-256-GCM. The key is derived from a
// configured secret with HKDF-SHA256.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the AES key from secret. An empty secret is rejected.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("empty encryption secret")
	}

	key := make([]byte, 32)
	defer common.WipeByteArray(key)

	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns SealedPrefix + base64(nonce || ciphertext). The empty string
// stays empty so absent credentials remain recognisable.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := common.GenerateRandByteArray(s.aead.NonceSize())
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Input without SealedPrefix is returned unchanged, which
// keeps rows written before encryption was introduced readable.
func (s *Sealer) Open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, SealedPrefix)
	if !ok {
		return value, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plaintext), nil
}
