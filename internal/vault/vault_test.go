package vault

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veridoc/internal/cryptocore"
	dErrors "veridoc/pkg/domain-errors"
)

func testVault() *Vault {
	return New(WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
}

func TestBuildExtract_RoundTrip(t *testing.T) {
	v := testVault()
	file := []byte("scanned national id card bytes")
	meta := Metadata{Filename: "id-card.png", ContentType: "image/png"}

	pkg, key, err := v.BuildPackage(file, meta, nil)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmAESGCM, pkg.Algorithm)
	assert.Equal(t, KeyModeRandom, pkg.KeyMode)
	assert.Empty(t, pkg.Salt)
	require.Len(t, []byte(key), cryptocore.KeySize)

	got, gotMeta, err := v.ExtractPackage(pkg, key)
	require.NoError(t, err)
	assert.Equal(t, file, got)
	assert.Equal(t, "id-card.png", gotMeta.Filename)
	assert.Equal(t, "image/png", gotMeta.ContentType)
	assert.Equal(t, int64(len(file)), gotMeta.FileSize)
	assert.Equal(t, cryptocore.Hash(file).Hex(), gotMeta.FileHash)
	assert.False(t, gotMeta.Timestamp.IsZero())
}

func TestBuildPackage_DerivedKey(t *testing.T) {
	v := testVault()
	file := []byte("utility bill pdf bytes")
	secret := []byte("citizen passphrase")

	pkg, key, err := v.BuildPackage(file, Metadata{Filename: "bill.pdf"}, secret)
	require.NoError(t, err)
	assert.Equal(t, KeyModeDerived, pkg.KeyMode)
	require.NotEmpty(t, pkg.Salt)

	t.Run("re-derived key opens the package", func(t *testing.T) {
		rederived, err := KeyFromSecret(pkg, secret)
		require.NoError(t, err)
		assert.Equal(t, key, rederived)

		got, _, err := v.ExtractPackage(pkg, rederived)
		require.NoError(t, err)
		assert.Equal(t, file, got)
	})

	t.Run("wrong secret fails authentication", func(t *testing.T) {
		wrong, err := KeyFromSecret(pkg, []byte("not the passphrase"))
		require.NoError(t, err)
		_, _, err = v.ExtractPackage(pkg, wrong)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailure))
	})

	t.Run("random-key package rejects secret derivation", func(t *testing.T) {
		randomPkg, _, err := v.BuildPackage(file, Metadata{}, nil)
		require.NoError(t, err)
		_, err = KeyFromSecret(randomPkg, secret)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestBuildPackage_RejectsEmptyFile(t *testing.T) {
	_, _, err := testVault().BuildPackage(nil, Metadata{}, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestExtractPackage_TamperRejection(t *testing.T) {
	v := testVault()
	file := []byte("original document content")
	pkg, key, err := v.BuildPackage(file, Metadata{Filename: "doc.pdf"}, nil)
	require.NoError(t, err)

	flipBit := func(b []byte) []byte {
		out := bytes.Clone(b)
		out[len(out)/2] ^= 0x01
		return out
	}

	t.Run("ciphertext bit flip is an authentication failure", func(t *testing.T) {
		tampered := *pkg
		tampered.Ciphertext = flipBit(pkg.Ciphertext)
		_, _, err := v.ExtractPackage(&tampered, key)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailure))
		assert.False(t, dErrors.HasCode(err, dErrors.CodeIntegrityViolation))
	})

	t.Run("auth tag bit flip is an authentication failure", func(t *testing.T) {
		tampered := *pkg
		tampered.AuthTag = flipBit(pkg.AuthTag)
		_, _, err := v.ExtractPackage(&tampered, key)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailure))
	})

	t.Run("iv bit flip is an authentication failure", func(t *testing.T) {
		tampered := *pkg
		tampered.IV = flipBit(pkg.IV)
		_, _, err := v.ExtractPackage(&tampered, key)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailure))
	})

	t.Run("wrong algorithm label is rejected before decryption", func(t *testing.T) {
		tampered := *pkg
		tampered.Algorithm = "ROT13"
		_, _, err := v.ExtractPackage(&tampered, key)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

// An integrity violation is distinct from an authentication failure: here the
// ciphertext authenticates fine but the envelope lies about its file hash.
func TestExtractPackage_IntegrityViolation(t *testing.T) {
	v := testVault()
	key, err := cryptocore.NewKey()
	require.NoError(t, err)

	seal := func(t *testing.T, envJSON string) *Package {
		t.Helper()
		ct, err := cryptocore.Encrypt([]byte(envJSON), key, []byte("veridoc/package/v1"))
		require.NoError(t, err)
		return &Package{
			Ciphertext: ct.Data,
			Algorithm:  AlgorithmAESGCM,
			IV:         ct.IV,
			AuthTag:    ct.Tag,
			KeyMode:    KeyModeRandom,
		}
	}

	t.Run("hash mismatch", func(t *testing.T) {
		pkg := seal(t, `{"file":"aGVsbG8=","metadata":{"filename":"x","fileHash":"deadbeef","fileSize":5}}`)
		_, _, err := v.ExtractPackage(pkg, key)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrityViolation))
	})

	t.Run("malformed envelope", func(t *testing.T) {
		pkg := seal(t, `not json at all`)
		_, _, err := v.ExtractPackage(pkg, key)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrityViolation))
	})

	t.Run("invalid base64 file", func(t *testing.T) {
		pkg := seal(t, `{"file":"%%%%","metadata":{"fileHash":"x"}}`)
		_, _, err := v.ExtractPackage(pkg, key)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrityViolation))
	})
}

func TestPackage_MarshalRoundTrip(t *testing.T) {
	v := testVault()
	pkg, key, err := v.BuildPackage([]byte("file"), Metadata{Filename: "f"}, nil)
	require.NoError(t, err)

	data, err := pkg.Marshal()
	require.NoError(t, err)

	parsed, err := Unmarshal(data)
	require.NoError(t, err)

	got, _, err := v.ExtractPackage(parsed, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("file"), got)
}
