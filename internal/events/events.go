// Package events carries the audit stream of committed lottery transitions.
package events

import (
	"encoding/json"
	"sync"

	"github.com/google/logger"
	"github.com/google/uuid"

	"ledgerlottery/internal/ledger"
)

const (
	KindTicketPurchased = "TicketPurchased"
	KindWinnerDrawn     = "WinnerDrawn"
	KindPrizeClaimed    = "PrizeClaimed"
)

// Event wraps one of the models event payloads.
type Event struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	RoundID   uint64         `json:"roundId"`
	Round     ledger.Address `json:"round"`
	Timestamp int64          `json:"timestamp"`
	Data      interface{}    `json:"data"`
}

// New stamps a fresh event id.
func New(kind string, roundID uint64, round ledger.Address, at int64, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		RoundID:   roundID,
		Round:     round,
		Timestamp: at,
		Data:      data,
	}
}

// Sink receives events after the transition producing them has committed.
// Publish must not block the caller for long.
type Sink interface {
	Publish(ev Event)
}

// Multi fans an event out to every sink in order.
type Multi []Sink

// Publish forwards ev to each sink.
func (m Multi) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// LogSink writes each event to the process log.
type LogSink struct{}

func (LogSink) Publish(ev Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		logger.Errorf("error marshalling %s event %s: %v", ev.Kind, ev.ID, err)
		return
	}
	logger.Infof("event %s round=%d id=%s data=%s", ev.Kind, ev.RoundID, ev.ID, data)
}

// Recorder keeps the most recent events in memory.
type Recorder struct {
	mu     sync.RWMutex
	size   int
	events []Event
}

// NewRecorder keeps up to size events.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 1
	}
	return &Recorder{size: size}
}

func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if len(r.events) > r.size {
		r.events = append([]Event(nil), r.events[len(r.events)-r.size:]...)
	}
}

// Events returns the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	return r.filter(func(Event) bool { return true })
}

// RoundEvents returns the recorded events of one round, oldest first.
func (r *Recorder) RoundEvents(roundID uint64) []Event {
	return r.filter(func(ev Event) bool { return ev.RoundID == roundID })
}

func (r *Recorder) filter(keep func(Event) bool) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, 0, len(r.events))
	for _, ev := range r.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}
