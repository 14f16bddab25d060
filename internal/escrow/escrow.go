// Package escrow keeps fungible token balances in the ledger and moves them
// between accounts on behalf of an authorized signer.
package escrow

import (
	"errors"
	"math/bits"

	"ledgerlottery/internal/ledger"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("signer is not the account authority")
	ErrAccountNotFound   = errors.New("token account not found")
	ErrOverflow          = errors.New("balance overflow")
)

// Account is a token balance. Only Authority may debit it.
type Account struct {
	Address   ledger.Address `json:"address"`
	Authority ledger.Address `json:"authority"`
	Balance   uint64         `json:"balance"`
}

// WalletAddress is the address of the token account owned by owner.
func WalletAddress(owner ledger.Address) ledger.Address {
	return ledger.Derive(ledger.SeedWallet, owner[:])
}

// Get loads the account at addr.
func Get(tx ledger.Txn, addr ledger.Address) (*Account, error) {
	var acc Account
	err := ledger.GetRecord(tx, addr, ledger.KindAccount, &acc)
	if err == ledger.ErrNotFound {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// OpenAccount returns the account at addr, creating an empty one controlled
// by authority if none exists. An existing account with a different
// authority is rejected.
func OpenAccount(tx ledger.Txn, addr, authority ledger.Address) (*Account, error) {
	acc, err := Get(tx, addr)
	if err == nil {
		if acc.Authority != authority {
			return nil, ErrUnauthorized
		}
		return acc, nil
	}
	if err != ErrAccountNotFound {
		return nil, err
	}
	acc = &Account{Address: addr, Authority: authority}
	if err := ledger.CreateRecord(tx, addr, ledger.KindAccount, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// OpenWallet opens the wallet account of owner.
func OpenWallet(tx ledger.Txn, owner ledger.Address) (*Account, error) {
	return OpenAccount(tx, WalletAddress(owner), owner)
}

// Deposit mints amount into owner's wallet.
func Deposit(tx ledger.Txn, owner ledger.Address, amount uint64) (*Account, error) {
	acc, err := OpenWallet(tx, owner)
	if err != nil {
		return nil, err
	}
	sum, carry := bits.Add64(acc.Balance, amount, 0)
	if carry != 0 {
		return nil, ErrOverflow
	}
	acc.Balance = sum
	if err := ledger.PutRecord(tx, acc.Address, ledger.KindAccount, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Transfer moves amount from one existing account to another. The debit is
// authorized only when signer is the source account's authority.
func Transfer(tx ledger.Txn, from, to ledger.Address, amount uint64, signer ledger.Address) error {
	src, err := Get(tx, from)
	if err != nil {
		return err
	}
	if src.Authority != signer {
		return ErrUnauthorized
	}
	dst, err := Get(tx, to)
	if err != nil {
		return err
	}
	if src.Balance < amount {
		return ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	sum, carry := bits.Add64(dst.Balance, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	src.Balance -= amount
	dst.Balance = sum
	if err := ledger.PutRecord(tx, src.Address, ledger.KindAccount, src); err != nil {
		return err
	}
	return ledger.PutRecord(tx, dst.Address, ledger.KindAccount, dst)
}
