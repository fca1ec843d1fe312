package keys

import (
	"bytes"
	"testing"
)

func TestSharedSecretBothDirections(t *testing.T) {
	ourPriv := NewPrivateKey()
	ourPub := ourPriv.PublicKey()
	theirPriv := NewPrivateKey()
	theirPub := theirPriv.PublicKey()

	ours := Precompute(theirPub, ourPriv)
	theirs := Precompute(ourPub, theirPriv)

	if ours.k != theirs.k {
		t.Fatalf("got different shared secrets %x and %x", ours.k, theirs.k)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	ourPriv := NewPrivateKey()
	theirPriv := NewPrivateKey()

	ours := Precompute(theirPriv.PublicKey(), ourPriv)
	theirs := Precompute(ourPriv.PublicKey(), theirPriv)

	nonce := [NonceLen]byte{0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 7}
	msg := []byte("a frame of at least a few bytes")

	ct := ours.Seal(nil, msg, &nonce)
	if len(ct) != len(msg)+BoxOverhead {
		t.Fatalf("got ciphertext len %d, expected %d", len(ct), len(msg)+BoxOverhead)
	}

	pt, ok := theirs.Open(nil, ct, &nonce)
	if !ok {
		t.Fatal("open of valid box failed")
	}
	if !bytes.Equal(pt, msg) {
		t.Fatalf("got plaintext %x, expected %x", pt, msg)
	}
}

func TestOpenRejectsTamper(t *testing.T) {
	ourPriv := NewPrivateKey()
	theirPriv := NewPrivateKey()

	ours := Precompute(theirPriv.PublicKey(), ourPriv)
	theirs := Precompute(ourPriv.PublicKey(), theirPriv)

	var nonce [NonceLen]byte
	nonce[NonceLen-1] = 1

	ct := ours.Seal(nil, []byte("payload"), &nonce)
	ct[len(ct)-1] ^= 0x01

	if _, ok := theirs.Open(nil, ct, &nonce); ok {
		t.Fatal("open of tampered box succeeded")
	}
}

func TestOpenRejectsWrongNonce(t *testing.T) {
	ourPriv := NewPrivateKey()
	theirPriv := NewPrivateKey()

	ours := Precompute(theirPriv.PublicKey(), ourPriv)
	theirs := Precompute(ourPriv.PublicKey(), theirPriv)

	var sealNonce, openNonce [NonceLen]byte
	sealNonce[NonceLen-1] = 1
	openNonce[NonceLen-1] = 2

	ct := ours.Seal(nil, []byte("payload"), &sealNonce)
	if _, ok := theirs.Open(nil, ct, &openNonce); ok {
		t.Fatal("open under the wrong nonce succeeded")
	}
}
