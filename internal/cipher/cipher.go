// Package cipher encrypts personal text fields for storage. It knows nothing
// about the schema; the record store applies it while mapping rows.
package cipher

import (
	"bytes"
	"crypto/aes"
	gocipher "crypto/cipher"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync/atomic"
	"unicode/utf8"
)

const (
	KeySize = 32
	IVSize  = aes.BlockSize
)

// Cipher transforms text fields on their way in and out of storage.
type Cipher interface {
	Encrypt(plaintext string) string
	Decrypt(text string) string
}

// AES is AES-256-CBC with PKCS#7 padding and standard base64 output, using a
// single key and IV for the life of the process.
type AES struct {
	block     gocipher.Block
	iv        []byte
	logger    *slog.Logger
	fallbacks atomic.Uint64
}

func NewAES(key, iv []byte, logger *slog.Logger) (*AES, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("cipher iv must be %d bytes, got %d", IVSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("construct aes: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AES{
		block:  block,
		iv:     bytes.Clone(iv),
		logger: logger,
	}, nil
}

func (c *AES) Encrypt(plaintext string) string {
	if plaintext == "" {
		return plaintext
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	gocipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt returns text unchanged when it is not ciphertext produced with
// this key and IV. Rows written before encryption was introduced read back
// in the clear.
func (c *AES) Decrypt(text string) string {
	if text == "" {
		return text
	}

	plaintext, err := c.open(text)
	if err != nil {
		c.fallbacks.Add(1)
		c.logger.Warn("Decryption fallback, returning stored value as-is", "reason", err.Error())
		return text
	}
	return plaintext
}

// Fallbacks counts the Decrypt calls that returned their input unchanged.
func (c *AES) Fallbacks() uint64 {
	return c.fallbacks.Load()
}

func (c *AES) open(text string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return "", fmt.Errorf("not base64")
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(raw))
	}

	out := make([]byte, len(raw))
	gocipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)

	out, err = unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(out) {
		return "", fmt.Errorf("plaintext is not valid utf-8")
	}
	return string(out), nil
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, blockSize int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}

// Nop stores text in the clear.
type Nop struct{}

func (Nop) Encrypt(plaintext string) string { return plaintext }
func (Nop) Decrypt(text string) string      { return text }

var (
	_ Cipher = (*AES)(nil)
	_ Cipher = Nop{}
)
