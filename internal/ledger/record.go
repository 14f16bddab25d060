package ledger

import (
	"encoding/json"
)

// Record kinds.
const (
	KindRound   = "round"
	KindTicket  = "ticket"
	KindAccount = "account"
)

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func encode(kind string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: kind, Data: data})
}

// GetRecord decodes the record of the given kind at addr into v.
func GetRecord(tx Txn, addr Address, kind string, v interface{}) error {
	raw, err := tx.Get(addr)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	if env.Kind != kind {
		return ErrWrongKind
	}
	return json.Unmarshal(env.Data, v)
}

// CreateRecord stores v at a previously unoccupied addr.
func CreateRecord(tx Txn, addr Address, kind string, v interface{}) error {
	raw, err := encode(kind, v)
	if err != nil {
		return err
	}
	return tx.Create(addr, raw)
}

// PutRecord overwrites the record at addr.
func PutRecord(tx Txn, addr Address, kind string, v interface{}) error {
	raw, err := encode(kind, v)
	if err != nil {
		return err
	}
	return tx.Put(addr, raw)
}
