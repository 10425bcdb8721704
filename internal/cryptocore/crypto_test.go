package cryptocore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veridoc/pkg/domain-errors"
)

func TestHash_Deterministic(t *testing.T) {
	t.Run("same bytes same digest", func(t *testing.T) {
		a := Hash([]byte("passport scan bytes"))
		b := Hash([]byte("passport scan bytes"))
		assert.Equal(t, a, b)
	})

	t.Run("different bytes different digest", func(t *testing.T) {
		a := Hash([]byte("passport scan bytes"))
		b := Hash([]byte("passport scan bytez"))
		assert.NotEqual(t, a, b)
	})

	t.Run("hex round trip", func(t *testing.T) {
		d := Hash([]byte("x"))
		parsed, err := ParseDigest(d.Hex())
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	})

	t.Run("rejects malformed hex", func(t *testing.T) {
		_, err := ParseDigest("not-hex")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects truncated digest", func(t *testing.T) {
		_, err := ParseDigest("abcd")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")

	t.Run("deterministic for same inputs", func(t *testing.T) {
		k1 := DeriveKey([]byte("hunter2"), salt)
		k2 := DeriveKey([]byte("hunter2"), salt)
		assert.Equal(t, k1, k2)
		assert.Len(t, []byte(k1), KeySize)
	})

	t.Run("salt changes the key", func(t *testing.T) {
		k1 := DeriveKey([]byte("hunter2"), salt)
		k2 := DeriveKey([]byte("hunter2"), []byte("fedcba9876543210"))
		assert.NotEqual(t, k1, k2)
	})
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)
	plaintext := []byte(`{"file":"...","metadata":{}}`)
	aad := []byte("doc-context")

	ct, err := Encrypt(plaintext, key, aad)
	require.NoError(t, err)
	require.NotEmpty(t, ct.Data)
	require.NotEmpty(t, ct.IV)
	require.NotEmpty(t, ct.Tag)

	got, err := Decrypt(ct, key, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncrypt_RejectsBadKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("p"), Key("short"), nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeCryptoFailure))
}

func TestDecrypt_TamperRejection(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)
	ct, err := Encrypt([]byte("original payload"), key, []byte("aad"))
	require.NoError(t, err)

	flipBit := func(b []byte) []byte {
		out := bytes.Clone(b)
		out[len(out)/2] ^= 0x01
		return out
	}

	t.Run("flipped ciphertext bit fails authentication", func(t *testing.T) {
		tampered := ct
		tampered.Data = flipBit(ct.Data)
		_, err := Decrypt(tampered, key, []byte("aad"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailure))
	})

	t.Run("flipped tag bit fails authentication", func(t *testing.T) {
		tampered := ct
		tampered.Tag = flipBit(ct.Tag)
		_, err := Decrypt(tampered, key, []byte("aad"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailure))
	})

	t.Run("wrong associated data fails authentication", func(t *testing.T) {
		_, err := Decrypt(ct, key, []byte("other-context"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailure))
	})

	t.Run("wrong key fails authentication", func(t *testing.T) {
		other, err := NewKey()
		require.NoError(t, err)
		_, err = Decrypt(ct, other, []byte("aad"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailure))
	})
}

func TestHMAC(t *testing.T) {
	key := Key(bytes.Repeat([]byte{0x42}, KeySize))
	msg := []byte("registry record")

	tag := HMAC(msg, key)
	assert.True(t, VerifyHMAC(msg, tag, key))
	assert.False(t, VerifyHMAC([]byte("other record"), tag, key))

	tampered := bytes.Clone(tag)
	tampered[0] ^= 0xFF
	assert.False(t, VerifyHMAC(msg, tampered, key))
}

func TestNewToken_EntropyAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for range 64 {
		tok, err := NewToken()
		require.NoError(t, err)
		// 32 bytes base64url without padding is 43 chars.
		assert.Len(t, tok, 43)
		_, dup := seen[tok]
		assert.False(t, dup)
		seen[tok] = struct{}{}
	}
}
