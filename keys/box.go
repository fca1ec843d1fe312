package keys

import (
	"golang.org/x/crypto/nacl/box"
)

const (
	NonceLen    int = 24
	BoxOverhead int = box.Overhead
)

// SharedSecret is the precomputed crypto_box key for one peer pair. Both
// sides derive the same value from their own private key and the other
// side's public key, once at startup.
type SharedSecret struct {
	_ NoCompare
	k [32]byte
}

// Precompute derives the shared secret from the peer's public key and our
// private key.
func Precompute(peer PublicKey, ours PrivateKey) SharedSecret {
	var s SharedSecret
	box.Precompute(&s.k, &peer.k, &ours.k)
	return s
}

// Seal encrypts and authenticates plaintext under the shared secret and the
// given nonce, appending the result to out. The returned ciphertext is the
// wire format: poly1305 tag followed by the encrypted payload, with no
// leading framing bytes.
func (s *SharedSecret) Seal(out, plaintext []byte, nonce *[NonceLen]byte) []byte {
	return box.SealAfterPrecomputation(out, plaintext, nonce, &s.k)
}

// Open authenticates and decrypts a wire-format ciphertext under the shared
// secret and the given nonce, appending the plaintext to out. The second
// return is false when authentication fails.
func (s *SharedSecret) Open(out, ciphertext []byte, nonce *[NonceLen]byte) ([]byte, bool) {
	return box.OpenAfterPrecomputation(out, ciphertext, nonce, &s.k)
}
