package services

import (
	"github.com/pkg/errors"

	"ledgerlottery/internal/ledger"
	"ledgerlottery/internal/models"
)

// TicketAddress is the storage address of ticket n of a round.
func TicketAddress(round ledger.Address, n uint64) ledger.Address {
	return ledger.Derive(ledger.SeedTicket, round[:], ledger.U64(n))
}

// issueTicket stores the next ticket of round. The slot is taken with the
// store's create primitive, so a second issue of the same number fails.
func issueTicket(tx ledger.Txn, round *models.Round, owner ledger.Address, now int64) (*models.Ticket, error) {
	n := round.TicketsSold + 1
	ticket := &models.Ticket{
		Address:      TicketAddress(round.Address, n),
		Round:        round.Address,
		RoundID:      round.RoundID,
		Owner:        owner,
		TicketNumber: n,
		IssuedAt:     now,
	}
	err := ledger.CreateRecord(tx, ticket.Address, ledger.KindTicket, ticket)
	if err == ledger.ErrExists {
		return nil, errors.Wrapf(ErrSlotAlreadyIssued, "round %d ticket %d", round.RoundID, n)
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func loadTicketAt(tx ledger.Txn, addr ledger.Address) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := ledger.GetRecord(tx, addr, ledger.KindTicket, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func loadTicket(tx ledger.Txn, round *models.Round, n uint64) (*models.Ticket, error) {
	ticket, err := loadTicketAt(tx, TicketAddress(round.Address, n))
	if err == ledger.ErrNotFound {
		return nil, errors.Wrapf(ErrNotFound, "round %d ticket %d", round.RoundID, n)
	}
	return ticket, err
}
