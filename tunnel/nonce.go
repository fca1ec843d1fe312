package tunnel

import (
	"bytes"
	"encoding/binary"

	"taplink/keys"
)

// A Nonce is the 24-byte crypto_box nonce carried on every datagram: a
// 4-byte big-endian prefix drawn once per run from the persistent prefix
// file, followed by a 20-byte big-endian counter.
type Nonce [keys.NonceLen]byte

const noncePrefixLen = 4

// SetPrefix writes the per-run prefix into the first four bytes. The
// counter portion is left untouched.
func (n *Nonce) SetPrefix(prefix uint32) {
	binary.BigEndian.PutUint32(n[:noncePrefixLen], prefix)
}

// Prefix returns the 4-byte prefix.
func (n *Nonce) Prefix() uint32 {
	return binary.BigEndian.Uint32(n[:noncePrefixLen])
}

// Advance increments the 20-byte counter as a single big-endian integer
// with carry. The prefix bytes are never modified.
func (n *Nonce) Advance() {
	for i := len(n) - 1; i >= noncePrefixLen; i-- {
		n[i]++
		if n[i] != 0 {
			return
		}
	}
}

// Compare orders two nonces byte-wise. The prefix participates in the
// ordering: a restarted peer draws a higher prefix, so its nonces compare
// greater than anything from its previous run.
func (n *Nonce) Compare(other *Nonce) int {
	return bytes.Compare(n[:], other[:])
}

func (n *Nonce) raw() *[keys.NonceLen]byte {
	return (*[keys.NonceLen]byte)(n)
}
