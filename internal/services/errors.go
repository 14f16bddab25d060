package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameters   = errors.New("invalid round parameters")
	ErrDuplicateRound      = errors.New("round already exists")
	ErrNotFound            = errors.New("not found")
	ErrLotteryNotActive    = errors.New("lottery is not active")
	ErrLotteryFull         = errors.New("lottery is full")
	ErrLotteryEnded        = errors.New("lottery has ended")
	ErrNoTicketsSold       = errors.New("no tickets sold")
	ErrDrawNotReady        = errors.New("draw is not ready yet")
	ErrLotteryNotCompleted = errors.New("lottery is not completed")
	ErrInvalidTicket       = errors.New("invalid ticket")
	ErrNotWinningTicket    = errors.New("not a winning ticket")
	ErrSlotAlreadyIssued   = errors.New("ticket slot already issued")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrPrizeAlreadyClaimed = errors.New("prize already claimed")
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrNotTicketOwner      = errors.New("caller does not own the ticket")
)

// TransferError reports an escrow failure. It matches ErrTransferFailed as
// well as the underlying escrow error.
type TransferError struct {
	Cause error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%v: %v", ErrTransferFailed, e.Cause)
}

func (e *TransferError) Unwrap() error { return e.Cause }

func (e *TransferError) Is(target error) bool { return target == ErrTransferFailed }

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidParameters, "InvalidParameters"},
	{ErrDuplicateRound, "DuplicateRound"},
	{ErrNotFound, "NotFound"},
	{ErrLotteryNotActive, "LotteryNotActive"},
	{ErrLotteryFull, "LotteryFull"},
	{ErrLotteryEnded, "LotteryEnded"},
	{ErrNoTicketsSold, "NoTicketsSold"},
	{ErrDrawNotReady, "DrawNotReady"},
	{ErrLotteryNotCompleted, "LotteryNotCompleted"},
	{ErrInvalidTicket, "InvalidTicket"},
	{ErrNotWinningTicket, "NotWinningTicket"},
	{ErrSlotAlreadyIssued, "SlotAlreadyIssued"},
	{ErrTransferFailed, "TransferFailed"},
	{ErrPrizeAlreadyClaimed, "PrizeAlreadyClaimed"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrNotTicketOwner, "NotTicketOwner"},
}

// ErrorKind names the taxonomy entry err belongs to, or "Internal".
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
