// Package crypto seals OAuth tokens before they are written to the credential store.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// Scrypt parameters for deriving the sealing key from the configured secret.
// N=16384 (2^14), r=8, p=1 are recommended for interactive use; derivation
// happens once at startup.
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	scryptSalt   = "moodtunes/credential-store/v1"

	nonceLen = 24
)

// ErrUnsealFailed is returned for tampered ciphertext or a wrong key.
var ErrUnsealFailed = errors.New("crypto: unable to open sealed value")

// Sealer encrypts and authenticates short strings with NaCl secretbox.
type Sealer struct {
	key [scryptKeyLen]byte
}

// NewSealer derives a key from secret with scrypt.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("crypto: empty sealing secret")
	}
	dk, err := scrypt.Key([]byte(secret), []byte(scryptSalt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("scrypt key derivation failed: %w", err)
	}
	s := &Sealer{}
	copy(s.key[:], dk)
	return s, nil
}

// Seal returns base64(nonce || box). The empty string seals to the empty string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceLen+secretbox.Overhead {
		return "", ErrUnsealFailed
	}
	var nonce [nonceLen]byte
	copy(nonce[:], raw[:nonceLen])
	plain, ok := secretbox.Open(nil, raw[nonceLen:], &nonce, &s.key)
	if !ok {
		return "", ErrUnsealFailed
	}
	return string(plain), nil
}
