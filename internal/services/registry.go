package services

import (
	"math/bits"

	"github.com/pkg/errors"

	"ledgerlottery/internal/escrow"
	"ledgerlottery/internal/ledger"
	"ledgerlottery/internal/models"
)

// RoundAddress is the storage address of the round with the given id.
func RoundAddress(roundID uint64) ledger.Address {
	return ledger.Derive(ledger.SeedLottery, ledger.U64(roundID))
}

// PoolAddress is the escrow account holding a round's ticket payments. Its
// authority is the round address itself, so only the state machine acting
// for that round can sign for it.
func PoolAddress(round ledger.Address) ledger.Address {
	return ledger.Derive(ledger.SeedPool, round[:])
}

// InitializeParams configures a new round.
type InitializeParams struct {
	Authority   ledger.Address `json:"authority"`
	RoundID     uint64         `json:"roundId"`
	TicketPrice uint64         `json:"ticketPrice"`
	MaxTickets  uint64         `json:"maxTickets"`
	Deadline    int64          `json:"deadline"`
}

func (p InitializeParams) validate(now int64) error {
	if p.TicketPrice == 0 {
		return errors.Wrap(ErrInvalidParameters, "ticket price must be positive")
	}
	if p.MaxTickets == 0 {
		return errors.Wrap(ErrInvalidParameters, "max tickets must be positive")
	}
	if p.Deadline <= now {
		return errors.Wrapf(ErrInvalidParameters, "deadline %d is not after %d", p.Deadline, now)
	}
	if hi, _ := bits.Mul64(p.TicketPrice, p.MaxTickets); hi != 0 {
		return errors.Wrap(ErrInvalidParameters, "ticket price times max tickets overflows")
	}
	return nil
}

func createRound(tx ledger.Txn, p InitializeParams, now int64) (*models.Round, error) {
	if err := p.validate(now); err != nil {
		return nil, err
	}
	addr := RoundAddress(p.RoundID)
	round := &models.Round{
		Address:     addr,
		Authority:   p.Authority,
		RoundID:     p.RoundID,
		Pool:        PoolAddress(addr),
		TicketPrice: p.TicketPrice,
		MaxTickets:  p.MaxTickets,
		Deadline:    p.Deadline,
		Status:      models.StatusActive,
		CreatedAt:   now,
	}
	err := ledger.CreateRecord(tx, addr, ledger.KindRound, round)
	if err == ledger.ErrExists {
		return nil, errors.Wrapf(ErrDuplicateRound, "round %d", p.RoundID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := escrow.OpenAccount(tx, round.Pool, addr); err != nil {
		return nil, errors.Wrapf(err, "open pool for round %d", p.RoundID)
	}
	return round, nil
}

func loadRound(tx ledger.Txn, roundID uint64) (*models.Round, error) {
	var round models.Round
	err := ledger.GetRecord(tx, RoundAddress(roundID), ledger.KindRound, &round)
	if err == ledger.ErrNotFound {
		return nil, errors.Wrapf(ErrNotFound, "round %d", roundID)
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func saveRound(tx ledger.Txn, round *models.Round) error {
	return ledger.PutRecord(tx, round.Address, ledger.KindRound, round)
}
