// Package vault builds and extracts tamper-evident document packages. A
// package is the wire/storage shape of one encrypted document: AEAD
// ciphertext wrapping a JSON envelope of the file plus its metadata, with
// the file's content hash inside the envelope as a second integrity anchor
// downstream of decryption.
package vault

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"time"

	"veridoc/internal/cryptocore"
	dErrors "veridoc/pkg/domain-errors"
)

// aadContext binds every ciphertext to this package format so a package
// cannot be replayed into a different decryption context.
const aadContext = "veridoc/package/v1"

// AlgorithmAESGCM is the only algorithm currently produced.
const AlgorithmAESGCM = "AES-256-GCM"

// KeyMode records how the package key was obtained.
type KeyMode string

const (
	// KeyModeRandom: a fresh random key, returned to the caller for custody.
	KeyModeRandom KeyMode = "random"
	// KeyModeDerived: key derived from a caller secret; the salt travels in
	// the package so the secret holder can re-derive it.
	KeyModeDerived KeyMode = "derived"
)

// Package is the encrypted document container persisted in the content
// store. Key custody is the caller's responsibility; the package itself
// never carries key material beyond the derivation salt.
type Package struct {
	Ciphertext []byte  `json:"ciphertext"`
	Algorithm  string  `json:"algorithm"`
	IV         []byte  `json:"iv"`
	AuthTag    []byte  `json:"auth_tag"`
	KeyMode    KeyMode `json:"key_mode"`
	Salt       []byte  `json:"salt,omitempty"` // only for KeyModeDerived
}

// Metadata describes the packaged file. FileHash and Timestamp are filled in
// by BuildPackage; callers provide the rest.
type Metadata struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	FileSize    int64     `json:"fileSize"`
	FileHash    string    `json:"fileHash"`
	Timestamp   time.Time `json:"timestamp"`
}

// envelope is the plaintext payload before encryption.
type envelope struct {
	File     string   `json:"file"` // base64
	Metadata Metadata `json:"metadata"`
}

// Vault builds and extracts packages.
type Vault struct {
	clock func() time.Time
}

type Option func(*Vault)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(v *Vault) {
		if clock != nil {
			v.clock = clock
		}
	}
}

func New(opts ...Option) *Vault {
	v := &Vault{clock: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// BuildPackage encrypts fileBytes plus metadata into a Package. When
// userSecret is empty a random key is generated; otherwise the key is
// derived from the secret with a fresh salt carried in the package. The key
// is returned in both cases and the caller is responsible for persisting it
// (or the secret) securely.
func (v *Vault) BuildPackage(fileBytes []byte, meta Metadata, userSecret []byte) (*Package, cryptocore.Key, error) {
	if len(fileBytes) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput, "file bytes must not be empty")
	}

	meta.FileSize = int64(len(fileBytes))
	meta.FileHash = cryptocore.Hash(fileBytes).Hex()
	meta.Timestamp = v.clock()

	plaintext, err := json.Marshal(envelope{
		File:     base64.StdEncoding.EncodeToString(fileBytes),
		Metadata: meta,
	})
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal package envelope")
	}

	pkg := &Package{Algorithm: AlgorithmAESGCM, KeyMode: KeyModeRandom}

	var key cryptocore.Key
	if len(userSecret) > 0 {
		salt, err := cryptocore.NewSalt()
		if err != nil {
			return nil, nil, err
		}
		key = cryptocore.DeriveKey(userSecret, salt)
		pkg.KeyMode = KeyModeDerived
		pkg.Salt = salt
	} else {
		if key, err = cryptocore.NewKey(); err != nil {
			return nil, nil, err
		}
	}

	ct, err := cryptocore.Encrypt(plaintext, key, []byte(aadContext))
	if err != nil {
		return nil, nil, err
	}
	pkg.Ciphertext = ct.Data
	pkg.IV = ct.IV
	pkg.AuthTag = ct.Tag
	return pkg, key, nil
}

// KeyFromSecret re-derives the package key for a derived-key package.
func KeyFromSecret(pkg *Package, userSecret []byte) (cryptocore.Key, error) {
	if pkg.KeyMode != KeyModeDerived {
		return nil, dErrors.New(dErrors.CodeBadRequest, "package does not use a derived key")
	}
	if len(pkg.Salt) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "derived-key package is missing its salt")
	}
	return cryptocore.DeriveKey(userSecret, pkg.Salt), nil
}

// ExtractPackage decrypts a package and verifies its integrity. An AEAD tag
// failure propagates as CodeAuthenticationFailure. A post-decrypt hash
// mismatch fails with CodeIntegrityViolation: decryption itself succeeded,
// so this signals corruption downstream of a valid ciphertext, and is
// reported separately.
func (v *Vault) ExtractPackage(pkg *Package, key cryptocore.Key) ([]byte, Metadata, error) {
	if pkg == nil {
		return nil, Metadata{}, dErrors.New(dErrors.CodeInvalidInput, "package is required")
	}
	if pkg.Algorithm != AlgorithmAESGCM {
		return nil, Metadata{}, dErrors.New(dErrors.CodeBadRequest, "unsupported package algorithm")
	}

	plaintext, err := cryptocore.Decrypt(cryptocore.Ciphertext{
		Data: pkg.Ciphertext,
		IV:   pkg.IV,
		Tag:  pkg.AuthTag,
	}, key, []byte(aadContext))
	if err != nil {
		return nil, Metadata{}, err
	}

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, Metadata{}, dErrors.Wrap(err, dErrors.CodeIntegrityViolation, "package envelope is not valid JSON")
	}
	fileBytes, err := base64.StdEncoding.DecodeString(env.File)
	if err != nil {
		return nil, Metadata{}, dErrors.Wrap(err, dErrors.CodeIntegrityViolation, "package file is not valid base64")
	}

	if got := cryptocore.Hash(fileBytes).Hex(); got != env.Metadata.FileHash {
		return nil, Metadata{}, dErrors.New(dErrors.CodeIntegrityViolation, "file hash does not match package metadata")
	}
	if env.Metadata.FileSize != int64(len(fileBytes)) {
		return nil, Metadata{}, dErrors.New(dErrors.CodeIntegrityViolation, "file size does not match package metadata")
	}
	return fileBytes, env.Metadata, nil
}

// Marshal serializes a package for the content store.
func (p *Package) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal package")
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a package fetched from the content store.
func Unmarshal(data []byte) (*Package, error) {
	var p Package
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrityViolation, "stored package is malformed")
	}
	return &p, nil
}
