// Package entropy supplies the externally sourced value a draw reduces to a
// winning ticket number.
package entropy

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"ledgerlottery/internal/ledger"
)

// Source returns a 32 byte value that no party could foresee before it is read.
type Source interface {
	Entropy(ctx context.Context) (ledger.Address, error)
}

// Reduce maps e onto [1, n] using the first 8 bytes as a little-endian u64.
// The result is biased by at most n/2^64 when n does not divide 2^64. n must
// be positive.
func Reduce(e ledger.Address, n uint64) uint64 {
	return binary.LittleEndian.Uint64(e[:8])%n + 1
}

// Fixed always returns the same value.
type Fixed ledger.Address

func (f Fixed) Entropy(context.Context) (ledger.Address, error) {
	return ledger.Address(f), nil
}

// Random reads from the operating system's CSPRNG. It is meant for local
// development where no chain endpoint is available.
type Random struct{}

func (Random) Entropy(context.Context) (ledger.Address, error) {
	var e ledger.Address
	_, err := rand.Read(e[:])
	return e, err
}
