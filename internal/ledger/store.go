package ledger

import (
	"errors"
)

var (
	// ErrNotFound is returned when no record lives at an address.
	ErrNotFound = errors.New("ledger: record not found")
	// ErrExists is returned by Create when the address is already occupied.
	ErrExists = errors.New("ledger: address already in use")
	// ErrWrongKind is returned when the record at an address is of another kind.
	ErrWrongKind = errors.New("ledger: record kind mismatch")
	// ErrTxClosed is returned when a transaction is used after Commit or Rollback.
	ErrTxClosed = errors.New("ledger: transaction closed")
	// ErrReadOnly is returned on writes inside a read-only transaction.
	ErrReadOnly = errors.New("ledger: read-only transaction")
)

// Store is a key-value store of records addressed by derived addresses.
// A writable transaction observes a consistent snapshot and excludes every
// other writable transaction until it commits or rolls back.
type Store interface {
	Begin(writable bool) (Txn, error)
	Close() error
}

// Txn is one unit of all-or-nothing work against a Store.
type Txn interface {
	Get(addr Address) ([]byte, error)
	// Create stores value at addr, failing with ErrExists if addr is occupied.
	Create(addr Address, value []byte) error
	// Put overwrites the value at an existing or new address.
	Put(addr Address, value []byte) error
	Commit() error
	Rollback() error
}

// Update runs fn inside a writable transaction, committing when fn returns
// nil and rolling back otherwise, including when fn panics.
func Update(s Store, fn func(Txn) error) error {
	tx, err := s.Begin(true)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return tx.Commit()
}

// View runs fn inside a read-only transaction.
func View(s Store, fn func(Txn) error) error {
	tx, err := s.Begin(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}
