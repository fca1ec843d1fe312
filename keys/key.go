package keys

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/curve25519"
)

const (
	KeyLen = 32

	// A key file is a single line: 64 hex characters and a trailing newline.
	keyFileLen = 2*KeyLen + 1
)

type NoCompare [0]func()

type PrivateKey struct {
	_ NoCompare
	k [32]byte
}

func NewPrivateKey() PrivateKey {
	k := [32]byte{}
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		panic("error generating random bytes for private key: " + err.Error())
	}

	// clamp
	k[0] &= 248
	k[31] = (k[31] & 127) | 64
	return PrivateKey{k: k}
}

func (k PrivateKey) IsZero() bool {
	return k.Compare(PrivateKey{})
}

func (k PrivateKey) Compare(other PrivateKey) bool {
	return subtle.ConstantTimeCompare(k.k[:], other.k[:]) == 1
}

func (k PrivateKey) PublicKey() PublicKey {
	pub := PublicKey{}
	curve25519.ScalarBaseMult(&pub.k, &k.k)
	return pub
}

func (k PrivateKey) Raw() [32]byte {
	return k.k
}

type PublicKey struct {
	k [32]byte
}

func NewPublicKeyFromRawBytes(raw []byte) PublicKey {
	var key PublicKey
	copy(key.k[:], raw)
	return key
}

func (k PublicKey) EncodeToString() string {
	return hex.EncodeToString(k.k[:])
}

func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

func (k PublicKey) Raw() [32]byte {
	return k.k
}

// decodeKeyFile parses the on-disk key format: exactly 64 hex characters
// followed by a newline, decoding to 32 bytes.
func decodeKeyFile(path string) ([32]byte, error) {
	var key [32]byte

	data, err := os.ReadFile(path)
	if err != nil {
		return key, fmt.Errorf("failed to read key file %s: %w", path, err)
	}

	if len(data) != keyFileLen || data[keyFileLen-1] != '\n' {
		return key, fmt.Errorf("malformed key file %s: expected 64 hex characters and a newline", path)
	}

	raw, err := hex.DecodeString(string(data[:2*KeyLen]))
	if err != nil {
		return key, fmt.Errorf("malformed key file %s: %w", path, err)
	}

	copy(key[:], raw)
	return key, nil
}

// ReadPrivateKeyFile loads our secret key from its key file.
func ReadPrivateKeyFile(path string) (PrivateKey, error) {
	raw, err := decodeKeyFile(path)
	if err != nil {
		return PrivateKey{}, err
	}
	return PrivateKey{k: raw}, nil
}

// ReadPublicKeyFile loads a peer's public key from its key file.
func ReadPublicKeyFile(path string) (PublicKey, error) {
	raw, err := decodeKeyFile(path)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{k: raw}, nil
}

// WriteKeyFile writes raw key bytes in the key file format.
func WriteKeyFile(path string, raw [32]byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create key file %s: %w", path, err)
	}
	line := hex.EncodeToString(raw[:]) + "\n"
	if _, err := f.Write([]byte(line)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key file %s: %w", path, err)
	}
	return f.Close()
}
