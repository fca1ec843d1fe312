package tunnel

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNoncePrefixProtocol(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.nonce")
	if err := InitNonceFile(path); err != nil {
		t.Fatal(err)
	}

	first, err := NextNoncePrefix(path)
	if err != nil {
		t.Fatal(err)
	}
	if first != 1 {
		t.Fatalf("got first prefix %d, expected 1", first)
	}

	second, err := NextNoncePrefix(path)
	if err != nil {
		t.Fatal(err)
	}
	if second != 2 {
		t.Fatalf("got second prefix %d, expected 2", second)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.BigEndian.Uint32(data); got != 2 {
		t.Fatalf("file holds %d, expected 2", got)
	}
}

func TestNoncePrefixMissingFile(t *testing.T) {
	if _, err := NextNoncePrefix(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing nonce file")
	}
}

func TestNoncePrefixShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.nonce")
	if err := os.WriteFile(path, []byte{1, 2}, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NextNoncePrefix(path); err == nil {
		t.Fatal("expected error for short nonce file")
	}
}

func TestNoncePrefixExhausted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full.nonce")
	if err := os.WriteFile(path, []byte{0xFF, 0xFF, 0xFF, 0xFF}, 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NextNoncePrefix(path)
	if !errors.Is(err, ErrPrefixExhausted) {
		t.Fatalf("got %v, expected ErrPrefixExhausted", err)
	}
}

func TestInitNonceFileRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.nonce")
	if err := InitNonceFile(path); err != nil {
		t.Fatal(err)
	}
	if err := InitNonceFile(path); err == nil {
		t.Fatal("expected error initializing existing nonce file")
	}
}
