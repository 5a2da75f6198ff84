package engine

import (
	"crypto/rand"
	"fmt"
)

// Source yields one byte of fresh, call-scoped unpredictable entropy per
// wager. The engine mixes it with the wager counter through a one-way hash
// before deriving the outcome.
type Source interface {
	Byte() (byte, error)
}

// CryptoSource draws entropy from crypto/rand.
type CryptoSource struct{}

// Byte returns one random byte.
func (CryptoSource) Byte() (byte, error) {
	var buf [1]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to draw entropy: %w", err)
	}
	return buf[0], nil
}

// FixedSource always yields the same byte. Test helper for deterministic
// outcomes.
type FixedSource byte

// Byte returns the fixed byte.
func (s FixedSource) Byte() (byte, error) { return byte(s), nil }
