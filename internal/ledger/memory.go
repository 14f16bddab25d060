package ledger

import (
	"sync"
)

// MemoryStore keeps records in a map. Writers are serialized; readers share
// the committed state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Address][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Address][]byte),
	}
}

// Begin starts a transaction. A writable transaction holds the store's write
// lock until Commit or Rollback.
func (s *MemoryStore) Begin(writable bool) (Txn, error) {
	if writable {
		s.mu.Lock()
	} else {
		s.mu.RLock()
	}
	tx := &memoryTxn{store: s, writable: writable}
	if writable {
		tx.pending = make(map[Address][]byte)
	}
	return tx, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

type memoryTxn struct {
	store    *MemoryStore
	writable bool
	closed   bool
	// pending holds writes until Commit.
	pending map[Address][]byte
}

func (tx *memoryTxn) lookup(addr Address) ([]byte, bool) {
	if v, ok := tx.pending[addr]; ok {
		return v, true
	}
	v, ok := tx.store.records[addr]
	return v, ok
}

func (tx *memoryTxn) Get(addr Address) ([]byte, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	v, ok := tx.lookup(addr)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (tx *memoryTxn) Create(addr Address, value []byte) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if _, ok := tx.lookup(addr); ok {
		return ErrExists
	}
	tx.pending[addr] = append([]byte(nil), value...)
	return nil
}

func (tx *memoryTxn) Put(addr Address, value []byte) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	tx.pending[addr] = append([]byte(nil), value...)
	return nil
}

func (tx *memoryTxn) checkWritable() error {
	if tx.closed {
		return ErrTxClosed
	}
	if !tx.writable {
		return ErrReadOnly
	}
	return nil
}

func (tx *memoryTxn) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	if !tx.writable {
		return ErrReadOnly
	}
	for addr, v := range tx.pending {
		tx.store.records[addr] = v
	}
	tx.close()
	return nil
}

func (tx *memoryTxn) Rollback() error {
	if tx.closed {
		return nil
	}
	tx.close()
	return nil
}

func (tx *memoryTxn) close() {
	tx.closed = true
	tx.pending = nil
	if tx.writable {
		tx.store.mu.Unlock()
	} else {
		tx.store.mu.RUnlock()
	}
}
