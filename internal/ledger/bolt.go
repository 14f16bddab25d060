package ledger

import (
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("state")

// BoltStore persists records in a single bbolt bucket keyed by address.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if needed) the database file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create state bucket")
	}
	return &BoltStore{db: db}, nil
}

// Begin starts a bbolt transaction. bbolt allows a single writer at a time.
func (s *BoltStore) Begin(writable bool) (Txn, error) {
	tx, err := s.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltTxn{tx: tx, bucket: tx.Bucket(stateBucket)}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltTxn struct {
	tx     *bolt.Tx
	bucket *bolt.Bucket
	closed bool
}

func (t *boltTxn) Get(addr Address) ([]byte, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	v := t.bucket.Get(addr[:])
	if v == nil {
		return nil, ErrNotFound
	}
	// bbolt values are only valid for the life of the transaction.
	return append([]byte(nil), v...), nil
}

func (t *boltTxn) Create(addr Address, value []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if t.bucket.Get(addr[:]) != nil {
		return ErrExists
	}
	return t.bucket.Put(addr[:], value)
}

func (t *boltTxn) Put(addr Address, value []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	return t.bucket.Put(addr[:], value)
}

func (t *boltTxn) checkWritable() error {
	if t.closed {
		return ErrTxClosed
	}
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	return nil
}

func (t *boltTxn) Commit() error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	return t.tx.Commit()
}

func (t *boltTxn) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.tx.Rollback()
}
