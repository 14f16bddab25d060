package models

import (
	"fmt"

	"ledgerlottery/internal/ledger"
)

// Status is the lifecycle phase of a round.
type Status uint8

const (
	StatusActive Status = iota
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = StatusActive
	case "completed":
		*s = StatusCompleted
	default:
		return fmt.Errorf("unknown round status %q", b)
	}
	return nil
}

// Round is one lottery instance. Its address is derived from RoundID, so at
// most one Round exists per id.
type Round struct {
	Address     ledger.Address `json:"address"`
	Authority   ledger.Address `json:"authority"`
	RoundID     uint64         `json:"roundId"`
	Pool        ledger.Address `json:"pool"`
	TicketPrice uint64         `json:"ticketPrice"`
	MaxTickets  uint64         `json:"maxTickets"`
	TicketsSold uint64         `json:"ticketsSold"`
	// PoolTotal always equals TicketsSold * TicketPrice.
	PoolTotal uint64 `json:"poolTotal"`
	// Deadline is a unix timestamp in seconds. Sales close and drawing opens at Deadline.
	Deadline     int64   `json:"deadline"`
	Status       Status  `json:"status"`
	WinnerTicket *uint64 `json:"winnerTicket,omitempty"`
	Claimed      bool    `json:"claimed"`
	CreatedAt    int64   `json:"createdAt"`
}

// Ticket is one purchase, addressed by (Round, TicketNumber). Tickets are
// never modified after issue.
type Ticket struct {
	Address      ledger.Address `json:"address"`
	Round        ledger.Address `json:"round"`
	RoundID      uint64         `json:"roundId"`
	Owner        ledger.Address `json:"owner"`
	TicketNumber uint64         `json:"ticketNumber"`
	IssuedAt     int64          `json:"issuedAt"`
}

// Settlement describes the transfers made by a successful claim.
type Settlement struct {
	Round    ledger.Address `json:"round"`
	RoundID  uint64         `json:"roundId"`
	Winner   ledger.Address `json:"winner"`
	Ticket   uint64         `json:"ticketNumber"`
	Payout   uint64         `json:"payout"`
	Fee      uint64         `json:"fee"`
	Platform ledger.Address `json:"platform"`
}

// TicketPurchased is emitted by a committed ticket sale.
type TicketPurchased struct {
	Round        ledger.Address `json:"round"`
	Buyer        ledger.Address `json:"buyer"`
	TicketNumber uint64         `json:"ticketNumber"`
	Price        uint64         `json:"price"`
}

// WinnerDrawn is emitted once per round when the winner is selected.
type WinnerDrawn struct {
	Round        ledger.Address `json:"round"`
	WinnerTicket uint64         `json:"winnerTicket"`
	PoolTotal    uint64         `json:"poolTotal"`
}

// PrizeClaimed is emitted when the pool is paid out.
type PrizeClaimed struct {
	Round  ledger.Address `json:"round"`
	Winner ledger.Address `json:"winner"`
	Amount uint64         `json:"amount"`
	Fee    uint64         `json:"fee"`
}
