// Package crypto seals provider tokens before they reach persistent storage.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeyLen is the required server token key length.
const KeyLen = chacha20poly1305.KeySize

// Cipher seals and opens opaque token strings with XChaCha20-Poly1305.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher constructs a token cipher from a 32-byte server key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeyLen {
		return nil, errors.New("token key must be 32 bytes")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts a token with a random nonce. An empty token stays empty so
// "no refresh token" survives the round trip as NULL.
func (c *Cipher) Seal(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(token)+c.aead.Overhead())
	out = append(out, nonce...)
	out = append(out, c.aead.Seal(nil, nonce, []byte(token), nil)...)
	return out, nil
}

// Open decrypts a sealed token.
func (c *Cipher) Open(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return "", errors.New("sealed token too short")
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	pt, err := c.aead.Open(nil, nonce, sealed[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
