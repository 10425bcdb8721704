package cryptocore

import (
	"bytes"
	"testing"
)

// FuzzEncryptDecrypt checks the seal/open round trip over arbitrary payloads
// and associated data.
func FuzzEncryptDecrypt(f *testing.F) {
	f.Add([]byte("passport bytes"), []byte("aad"))
	f.Add([]byte{}, []byte{})
	f.Add(bytes.Repeat([]byte{0x00}, 1024), []byte("ctx"))

	key, err := NewKey()
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, plaintext, aad []byte) {
		ct, err := Encrypt(plaintext, key, aad)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		got, err := Decrypt(ct, key, aad)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(plaintext, got) {
			t.Fatalf("round trip mismatch: %d in, %d out", len(plaintext), len(got))
		}
	})
}
