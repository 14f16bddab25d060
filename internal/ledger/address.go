package ledger

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address identifies a record in the store and doubles as an identity for
// account owners and round authorities.
type Address = common.Hash

// Seed prefixes keep the address spaces of different record kinds apart.
var (
	SeedLottery = []byte("lottery")
	SeedTicket  = []byte("ticket")
	SeedWallet  = []byte("wallet")
	SeedPool    = []byte("pool")
)

// Derive computes the address for the given seed parts. The parts are
// length-prefixed before hashing so that ("ab","c") and ("a","bc") differ.
func Derive(seeds ...[]byte) Address {
	buf := make([]byte, 0, 64)
	for _, s := range seeds {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return crypto.Keccak256Hash(buf)
}

// U64 encodes n as 8 little-endian bytes for use as a seed part.
func U64(n uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, n)
}

// ParseAddress accepts a 0x-prefixed or bare 64 character hex string.
func ParseAddress(s string) (Address, error) {
	var a Address
	if err := a.UnmarshalText([]byte(s)); err != nil {
		if len(s) == 2*common.HashLength {
			return a, a.UnmarshalText([]byte("0x" + s))
		}
		return a, err
	}
	return a, nil
}
