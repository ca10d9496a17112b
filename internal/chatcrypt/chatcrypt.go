// Package chatcrypt seals chat content with a room secret shared out of band.
// The relay only ever sees the sealed form.
package chatcrypt

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrEmptySecret = errors.New("chat secret is empty")
	ErrMalformed   = errors.New("malformed ciphertext")
	ErrDecrypt     = errors.New("decryption failed")
)

// salt is fixed so every participant derives the same key from the secret.
var salt = []byte("consult/chat/v1")

type Cipher struct {
	key [32]byte
}

func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	var c Cipher
	copy(c.key[:], argon2.IDKey([]byte(secret), salt, 1, 64*1024, 4, 32))
	return &c, nil
}

func (c *Cipher) Encrypt(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrMalformed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
