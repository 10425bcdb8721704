// Package cryptocore implements the cryptographic primitives the integrity
// subsystem builds on: content hashing, PBKDF2 key derivation, AES-256-GCM
// authenticated encryption, and constant-time HMAC verification.
//
// Identity of a document everywhere in this system is its content hash, so
// Hash must stay deterministic across releases. Do not change the digest
// algorithm without a registry migration.
package cryptocore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	dErrors "veridoc/pkg/domain-errors"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize for PBKDF2 salts.
	SaltSize = 16
	// TokenSize yields 256 bits of entropy for grant tokens.
	TokenSize = 32

	// pbkdf2Iterations follows current OWASP guidance for PBKDF2-SHA256.
	pbkdf2Iterations = 120_000
)

// Digest is a SHA-256 content hash. Its hex form is the canonical document
// identity used by the registry and the content store.
type Digest [sha256.Size]byte

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

func (d Digest) String() string { return d.Hex() }

// ParseDigest decodes a hex digest string.
func ParseDigest(raw string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(raw)
	if err != nil {
		return d, dErrors.Wrap(err, dErrors.CodeInvalidInput, "digest is not valid hex")
	}
	if len(b) != sha256.Size {
		return d, dErrors.New(dErrors.CodeInvalidInput, "digest has wrong length")
	}
	copy(d[:], b)
	return d, nil
}

// Hash computes the deterministic content hash of b.
func Hash(b []byte) Digest {
	return sha256.Sum256(b)
}

// Key is symmetric key material for the AEAD operations.
type Key []byte

// NewKey returns a fresh random AES-256 key.
func NewKey() (Key, error) {
	k := make(Key, KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read random key")
	}
	return k, nil
}

// NewSalt returns a fresh random PBKDF2 salt.
func NewSalt() ([]byte, error) {
	s := make([]byte, SaltSize)
	if _, err := rand.Read(s); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read random salt")
	}
	return s, nil
}

// DeriveKey stretches a caller-supplied secret into an AES-256 key. Used when
// a citizen opts to protect a package with their own passphrase instead of a
// random key.
func DeriveKey(secret, salt []byte) Key {
	return pbkdf2.Key(secret, salt, pbkdf2Iterations, KeySize, sha256.New)
}

// NewToken returns an unguessable url-safe token with 256 bits of entropy.
// Grant tokens are capabilities: the string itself is the secret.
func NewToken() (string, error) {
	b := make([]byte, TokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "read random token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Ciphertext is the output of one AEAD sealing operation. The tag is kept
// separate from the data so tampering with either is distinguishable in tests
// and storage layouts.
type Ciphertext struct {
	Data []byte
	IV   []byte
	Tag  []byte
}

// Encrypt seals plaintext with AES-256-GCM. The associated data is
// authenticated but not encrypted; callers bind contextual identity (e.g. the
// document hash) through it. A wrong key length is a programmer error and
// fails with CodeCryptoFailure.
func Encrypt(plaintext []byte, key Key, associatedData []byte) (Ciphertext, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return Ciphertext{}, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return Ciphertext{}, dErrors.Wrap(err, dErrors.CodeInternal, "read random iv")
	}

	sealed := gcm.Seal(nil, iv, plaintext, associatedData)

	// gcm.Seal appends the tag to the ciphertext; split it back out.
	tagStart := len(sealed) - gcm.Overhead()
	return Ciphertext{
		Data: sealed[:tagStart],
		IV:   iv,
		Tag:  sealed[tagStart:],
	}, nil
}

// Decrypt opens an AEAD ciphertext. A tag verification failure is tamper
// evidence and fails hard with CodeAuthenticationFailure; plaintext is never
// returned on any failure path.
func Decrypt(ct Ciphertext, key Key, associatedData []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ct.IV) != gcm.NonceSize() {
		return nil, dErrors.New(dErrors.CodeCryptoFailure, "iv has wrong length")
	}

	sealed := make([]byte, 0, len(ct.Data)+len(ct.Tag))
	sealed = append(sealed, ct.Data...)
	sealed = append(sealed, ct.Tag...)

	plaintext, err := gcm.Open(nil, ct.IV, sealed, associatedData)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthenticationFailure, "ciphertext authentication failed")
	}
	return plaintext, nil
}

// HMAC computes an HMAC-SHA256 tag over b.
func HMAC(b []byte, key Key) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(b)
	return mac.Sum(nil)
}

// VerifyHMAC checks a tag in constant time to avoid timing side channels.
func VerifyHMAC(b, tag []byte, key Key) bool {
	return hmac.Equal(HMAC(b, key), tag)
}

func newGCM(key Key) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, dErrors.New(dErrors.CodeCryptoFailure,
			fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCryptoFailure, "create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCryptoFailure, "create GCM")
	}
	return gcm, nil
}
