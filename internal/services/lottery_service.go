package services

import (
	"context"
	"math/bits"
	"time"

	"github.com/google/logger"
	"github.com/pkg/errors"

	"ledgerlottery/internal/entropy"
	"ledgerlottery/internal/escrow"
	"ledgerlottery/internal/events"
	"ledgerlottery/internal/ledger"
	"ledgerlottery/internal/metrics"
	"ledgerlottery/internal/models"
)

// MaxFeeBps is 100% expressed in basis points.
const MaxFeeBps = 10000

// Clock is the trusted time source read at the start of each transition.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds the platform settings shared by all rounds.
type Config struct {
	// FeeBps is the platform's share of each pool in basis points.
	FeeBps uint32
	// Platform is the identity whose wallet receives fees.
	Platform ledger.Address
	// Minters are the identities allowed to fund wallets through Mint.
	Minters []ledger.Address
}

// Option customizes a LotteryService.
type Option func(*LotteryService)

// WithClock replaces the system clock used to check deadlines.
func WithClock(c Clock) Option { return func(s *LotteryService) { s.clock = c } }

// WithSink sets where committed transitions are published.
func WithSink(sink events.Sink) Option { return func(s *LotteryService) { s.sink = sink } }

// WithMetrics records transition outcomes on m.
func WithMetrics(m *metrics.Metrics) Option { return func(s *LotteryService) { s.metrics = m } }

// LotteryService runs the round lifecycle: initialize, buy, draw, claim.
// Every transition is one store transaction; nothing it writes survives a
// failure and events are only published after commit.
type LotteryService struct {
	store    ledger.Store
	entropy  entropy.Source
	clock    Clock
	sink     events.Sink
	metrics  *metrics.Metrics
	feeBps   uint32
	platform ledger.Address
	minters  map[ledger.Address]bool
}

// NewLotteryService creates a LotteryService on top of store.
func NewLotteryService(store ledger.Store, src entropy.Source, cfg Config, opts ...Option) (*LotteryService, error) {
	if cfg.FeeBps > MaxFeeBps {
		return nil, errors.Errorf("fee of %d bps exceeds %d", cfg.FeeBps, MaxFeeBps)
	}
	s := &LotteryService{
		store:    store,
		entropy:  src,
		clock:    systemClock{},
		sink:     events.Multi{},
		feeBps:   cfg.FeeBps,
		platform: cfg.Platform,
		minters:  make(map[ledger.Address]bool, len(cfg.Minters)),
	}
	for _, m := range cfg.Minters {
		s.minters[m] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *LotteryService) now() int64 {
	return s.clock.Now().Unix()
}

func (s *LotteryService) observe(op string, err error) {
	if err == nil {
		s.metrics.Transition(op, "ok")
		return
	}
	s.metrics.Transition(op, ErrorKind(err))
	logger.Warningf("%s rejected: %v", op, err)
}

func (s *LotteryService) publish(kind string, round *models.Round, at int64, data interface{}) {
	s.sink.Publish(events.New(kind, round.RoundID, round.Address, at, data))
}

// Initialize creates a new active round owned by p.Authority.
func (s *LotteryService) Initialize(ctx context.Context, p InitializeParams) (round *models.Round, err error) {
	defer func() { s.observe("initialize", err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	err = ledger.Update(s.store, func(tx ledger.Txn) error {
		r, err := createRound(tx, p, now)
		round = r
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("round %d initialized: price=%d max=%d deadline=%d", round.RoundID, round.TicketPrice, round.MaxTickets, round.Deadline)
	return round, nil
}

// BuyTicket charges buyer the ticket price and issues the round's next ticket.
func (s *LotteryService) BuyTicket(ctx context.Context, roundID uint64, buyer ledger.Address) (ticket *models.Ticket, err error) {
	defer func() { s.observe("buy_ticket", err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	var round *models.Round
	err = ledger.Update(s.store, func(tx ledger.Txn) error {
		r, err := loadRound(tx, roundID)
		if err != nil {
			return err
		}
		switch {
		case r.Status != models.StatusActive:
			return errors.Wrapf(ErrLotteryNotActive, "round %d is %s", roundID, r.Status)
		case r.TicketsSold >= r.MaxTickets:
			return errors.Wrapf(ErrLotteryFull, "round %d sold %d of %d", roundID, r.TicketsSold, r.MaxTickets)
		case now >= r.Deadline:
			return errors.Wrapf(ErrLotteryEnded, "round %d closed at %d", roundID, r.Deadline)
		}

		if err := escrow.Transfer(tx, escrow.WalletAddress(buyer), r.Pool, r.TicketPrice, buyer); err != nil {
			return &TransferError{Cause: err}
		}
		t, err := issueTicket(tx, r, buyer, now)
		if err != nil {
			return err
		}
		r.TicketsSold++
		r.PoolTotal += r.TicketPrice
		if err := saveRound(tx, r); err != nil {
			return err
		}
		ticket, round = t, r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.TicketSold()
	s.publish(events.KindTicketPurchased, round, now, models.TicketPurchased{
		Round:        round.Address,
		Buyer:        buyer,
		TicketNumber: ticket.TicketNumber,
		Price:        round.TicketPrice,
	})
	return ticket, nil
}

func checkDraw(r *models.Round, caller ledger.Address, now int64) error {
	switch {
	case r.Status != models.StatusActive:
		return errors.Wrapf(ErrLotteryNotActive, "round %d is %s", r.RoundID, r.Status)
	case caller != r.Authority:
		return errors.Wrapf(ErrUnauthorized, "draw round %d requires its authority", r.RoundID)
	case r.TicketsSold == 0:
		return errors.Wrapf(ErrNoTicketsSold, "round %d", r.RoundID)
	case now < r.Deadline:
		return errors.Wrapf(ErrDrawNotReady, "round %d opens for drawing at %d", r.RoundID, r.Deadline)
	}
	return nil
}

// DrawWinner selects the winning ticket number from fresh entropy and closes
// the round. It succeeds at most once per round.
func (s *LotteryService) DrawWinner(ctx context.Context, roundID uint64, caller ledger.Address) (round *models.Round, err error) {
	defer func() { s.observe("draw_winner", err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()

	// Preconditions are checked before entropy is fetched and again inside
	// the write transaction that consumes it.
	err = ledger.View(s.store, func(tx ledger.Txn) error {
		r, err := loadRound(tx, roundID)
		if err != nil {
			return err
		}
		return checkDraw(r, caller, now)
	})
	if err != nil {
		return nil, err
	}

	seed, err := s.entropy.Entropy(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "draw round %d", roundID)
	}

	err = ledger.Update(s.store, func(tx ledger.Txn) error {
		r, err := loadRound(tx, roundID)
		if err != nil {
			return err
		}
		if err := checkDraw(r, caller, now); err != nil {
			return err
		}
		winner := entropy.Reduce(seed, r.TicketsSold)
		r.WinnerTicket = &winner
		r.Status = models.StatusCompleted
		round = r
		return saveRound(tx, r)
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("round %d drawn: winner=%d of %d pool=%d", round.RoundID, *round.WinnerTicket, round.TicketsSold, round.PoolTotal)
	s.publish(events.KindWinnerDrawn, round, now, models.WinnerDrawn{
		Round:        round.Address,
		WinnerTicket: *round.WinnerTicket,
		PoolTotal:    round.PoolTotal,
	})
	return round, nil
}

// ClaimParams identifies the ticket presented for a claim.
type ClaimParams struct {
	RoundID  uint64         `json:"roundId"`
	Ticket   ledger.Address `json:"ticket"`
	Claimant ledger.Address `json:"claimant"`
}

// SplitPool returns the platform fee and the winner's payout for pool.
// fee = pool * feeBps / 10000, rounded down; payout + fee == pool.
func SplitPool(pool uint64, feeBps uint32) (payout, fee uint64) {
	hi, lo := bits.Mul64(pool, uint64(feeBps))
	fee, _ = bits.Div64(hi, lo, MaxFeeBps)
	return pool - fee, fee
}

// ClaimPrize pays the pool of a completed round to the owner of the winning
// ticket, less the platform fee. The round's pool can be claimed once.
func (s *LotteryService) ClaimPrize(ctx context.Context, p ClaimParams) (settlement *models.Settlement, err error) {
	defer func() { s.observe("claim_prize", err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	var round *models.Round
	err = ledger.Update(s.store, func(tx ledger.Txn) error {
		r, err := loadRound(tx, p.RoundID)
		if err != nil {
			return err
		}
		if r.Status != models.StatusCompleted {
			return errors.Wrapf(ErrLotteryNotCompleted, "round %d is %s", p.RoundID, r.Status)
		}
		if r.Claimed {
			return errors.Wrapf(ErrPrizeAlreadyClaimed, "round %d", p.RoundID)
		}
		t, err := loadTicketAt(tx, p.Ticket)
		if err == ledger.ErrNotFound || err == ledger.ErrWrongKind {
			return errors.Wrapf(ErrInvalidTicket, "no ticket at %s", p.Ticket.Hex())
		}
		if err != nil {
			return err
		}
		if t.Round != r.Address {
			return errors.Wrapf(ErrInvalidTicket, "ticket belongs to round %d", t.RoundID)
		}
		if r.WinnerTicket == nil || t.TicketNumber != *r.WinnerTicket {
			return errors.Wrapf(ErrNotWinningTicket, "ticket %d", t.TicketNumber)
		}
		if p.Claimant != t.Owner {
			return errors.Wrapf(ErrNotTicketOwner, "ticket %d", t.TicketNumber)
		}

		payout, fee := SplitPool(r.PoolTotal, s.feeBps)
		if _, err := escrow.OpenWallet(tx, s.platform); err != nil {
			return &TransferError{Cause: err}
		}
		if err := escrow.Transfer(tx, r.Pool, escrow.WalletAddress(t.Owner), payout, r.Address); err != nil {
			return &TransferError{Cause: err}
		}
		if err := escrow.Transfer(tx, r.Pool, escrow.WalletAddress(s.platform), fee, r.Address); err != nil {
			return &TransferError{Cause: err}
		}
		r.Claimed = true
		if err := saveRound(tx, r); err != nil {
			return err
		}
		round = r
		settlement = &models.Settlement{
			Round:    r.Address,
			RoundID:  r.RoundID,
			Winner:   t.Owner,
			Ticket:   t.TicketNumber,
			Payout:   payout,
			Fee:      fee,
			Platform: s.platform,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("round %d claimed: winner=%s payout=%d fee=%d", round.RoundID, settlement.Winner.Hex(), settlement.Payout, settlement.Fee)
	s.metrics.PrizeClaimed(settlement.Payout, settlement.Fee)
	s.publish(events.KindPrizeClaimed, round, now, models.PrizeClaimed{
		Round:  round.Address,
		Winner: settlement.Winner,
		Amount: settlement.Payout,
		Fee:    settlement.Fee,
	})
	return settlement, nil
}

// GetRound returns a snapshot of the round.
func (s *LotteryService) GetRound(ctx context.Context, roundID uint64) (round *models.Round, err error) {
	err = ledger.View(s.store, func(tx ledger.Txn) error {
		round, err = loadRound(tx, roundID)
		return err
	})
	return round, err
}

// GetTicket returns ticket n of the round.
func (s *LotteryService) GetTicket(ctx context.Context, roundID, n uint64) (ticket *models.Ticket, err error) {
	err = ledger.View(s.store, func(tx ledger.Txn) error {
		r, err := loadRound(tx, roundID)
		if err != nil {
			return err
		}
		ticket, err = loadTicket(tx, r, n)
		return err
	})
	return ticket, err
}

// ListTickets returns every ticket of the round in number order.
func (s *LotteryService) ListTickets(ctx context.Context, roundID uint64) (tickets []*models.Ticket, err error) {
	err = ledger.View(s.store, func(tx ledger.Txn) error {
		r, err := loadRound(tx, roundID)
		if err != nil {
			return err
		}
		tickets = make([]*models.Ticket, 0, r.TicketsSold)
		for n := uint64(1); n <= r.TicketsSold; n++ {
			t, err := loadTicket(tx, r, n)
			if err != nil {
				return err
			}
			tickets = append(tickets, t)
		}
		return nil
	})
	return tickets, err
}

// Mint is Deposit on behalf of minter, which must be a configured minter.
func (s *LotteryService) Mint(ctx context.Context, minter, owner ledger.Address, amount uint64) (*escrow.Account, error) {
	if !s.minters[minter] {
		logger.Warningf("rejected mint of %d to %s by %s", amount, owner.Hex(), minter.Hex())
		return nil, errors.Wrapf(ErrUnauthorized, "%s is not a minter", minter.Hex())
	}
	return s.Deposit(ctx, owner, amount)
}

// Deposit credits amount to owner's wallet, opening it if needed. It creates
// tokens, so callers outside the process go through Mint.
func (s *LotteryService) Deposit(ctx context.Context, owner ledger.Address, amount uint64) (acc *escrow.Account, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = ledger.Update(s.store, func(tx ledger.Txn) error {
		acc, err = escrow.Deposit(tx, owner, amount)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "deposit to %s", owner.Hex())
	}
	logger.Infof("deposited %d to %s, balance=%d", amount, owner.Hex(), acc.Balance)
	return acc, nil
}

// Account returns the token account at addr.
func (s *LotteryService) Account(ctx context.Context, addr ledger.Address) (acc *escrow.Account, err error) {
	err = ledger.View(s.store, func(tx ledger.Txn) error {
		acc, err = escrow.Get(tx, addr)
		return err
	})
	if err == escrow.ErrAccountNotFound {
		return nil, errors.Wrapf(ErrNotFound, "account %s", addr.Hex())
	}
	return acc, err
}

// Wallet returns owner's wallet account.
func (s *LotteryService) Wallet(ctx context.Context, owner ledger.Address) (*escrow.Account, error) {
	return s.Account(ctx, escrow.WalletAddress(owner))
}
