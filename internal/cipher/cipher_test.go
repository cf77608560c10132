package cipher

import (
	"encoding/base64"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey = []byte("A?D(G+KbPeShVmYq3t6w9z$C&F)J@NcQ")
	testIV  = []byte("HrRy2w!z%C*F-JaN")
)

func newTestAES(t *testing.T, key []byte) *AES {
	t.Helper()
	c, err := NewAES(key, testIV, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestAES(t, testKey)

	inputs := []string{
		"a",
		"Ada Byrne",
		"exactly sixteen!",
		"Apartment 4, Ballinode Road, Co. Sligo, F91 YW50",
		"Seán Ó Súilleabháin – Dún Laoghaire €",
	}
	for _, in := range inputs {
		enc := c.Encrypt(in)
		assert.NotEqual(t, in, enc)

		raw, err := base64.StdEncoding.DecodeString(enc)
		require.NoError(t, err, "ciphertext must be base64")
		assert.Zero(t, len(raw)%IVSize)

		assert.Equal(t, in, c.Decrypt(enc))
	}
	assert.Zero(t, c.Fallbacks())
}

func TestEncryptIsDeterministicForFixedIV(t *testing.T) {
	c := newTestAES(t, testKey)
	assert.Equal(t, c.Encrypt("Sligo"), c.Encrypt("Sligo"))
}

func TestEmptyFieldIsIdentity(t *testing.T) {
	c := newTestAES(t, testKey)
	assert.Equal(t, "", c.Encrypt(""))
	assert.Equal(t, "", c.Decrypt(""))
	assert.Zero(t, c.Fallbacks())
}

func TestDecryptFallsBackToInput(t *testing.T) {
	c := newTestAES(t, testKey)

	legacy := []string{
		"Dublin",                   // not base64
		"Main",                     // base64, but decodes to 3 bytes
		"AAAAAAAAAAAAAAAAAAAAAA==", // one block that does not decrypt to padded utf-8
		"!!not valid::",
	}
	for _, in := range legacy {
		assert.Equal(t, in, c.Decrypt(in))
	}
	assert.Equal(t, uint64(len(legacy)), c.Fallbacks())
}

func TestDecryptWithWrongKeyFallsBack(t *testing.T) {
	enc := newTestAES(t, testKey).Encrypt("Ada Byrne")

	otherKey := []byte("0123456789abcdef0123456789abcdef")
	other := newTestAES(t, otherKey)

	assert.Equal(t, enc, other.Decrypt(enc))
	assert.Equal(t, uint64(1), other.Fallbacks())
}

func TestNewAESRejectsBadKeyMaterial(t *testing.T) {
	_, err := NewAES([]byte("short"), testIV, nil)
	assert.Error(t, err)

	_, err = NewAES(testKey, []byte("short"), nil)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var c Cipher = Nop{}
	assert.Equal(t, "Ada", c.Encrypt("Ada"))
	assert.Equal(t, "Ada", c.Decrypt("Ada"))
}
