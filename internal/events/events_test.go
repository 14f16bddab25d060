package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ledgerlottery/internal/ledger"
	"ledgerlottery/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	messages []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failures {
		return errors.New("leader not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func ticketEvent(roundID, n uint64) Event {
	round := ledger.Derive(ledger.SeedLottery, ledger.U64(roundID))
	return New(KindTicketPurchased, roundID, round, 100, models.TicketPurchased{
		Round:        round,
		TicketNumber: n,
		Price:        10,
	})
}

func TestKafkaSink(t *testing.T) {
	t.Run("flushes on close", func(t *testing.T) {
		w := &fakeWriter{}
		sink := newKafkaSink(w, "lottery-events", time.Hour)
		sink.Publish(ticketEvent(1, 1))
		sink.Publish(ticketEvent(1, 2))
		require.NoError(t, sink.Close())

		assert.True(t, w.closed)
		require.Len(t, w.messages, 2)
		var got Event
		require.NoError(t, json.Unmarshal(w.messages[1].Value, &got))
		assert.Equal(t, KindTicketPurchased, got.Kind)
		assert.EqualValues(t, 1, got.RoundID)
		round := ledger.Derive(ledger.SeedLottery, ledger.U64(1))
		assert.Equal(t, round[:], w.messages[0].Key)
	})

	t.Run("retries failed writes", func(t *testing.T) {
		w := &fakeWriter{failures: 2}
		sink := newKafkaSink(w, "lottery-events", time.Hour)
		sink.Publish(ticketEvent(2, 1))
		require.NoError(t, sink.Close())
		assert.Equal(t, 3, w.calls)
		assert.Len(t, w.messages, 1)
	})
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(3)
	for i := uint64(1); i <= 4; i++ {
		r.Publish(ticketEvent(i%2+1, i))
	}
	all := r.Events()
	require.Len(t, all, 3)
	assert.Equal(t, all[0].Data.(models.TicketPurchased).TicketNumber, uint64(2))

	round1 := r.RoundEvents(1)
	require.Len(t, round1, 2)
	for _, ev := range round1 {
		assert.EqualValues(t, 1, ev.RoundID)
	}
}

func TestRecorderRoundZero(t *testing.T) {
	r := NewRecorder(10)
	r.Publish(ticketEvent(0, 1))
	r.Publish(ticketEvent(5, 1))

	round0 := r.RoundEvents(0)
	require.Len(t, round0, 1)
	assert.Zero(t, round0[0].RoundID)
	assert.Len(t, r.Events(), 2)
}

func TestMulti(t *testing.T) {
	a, b := NewRecorder(10), NewRecorder(10)
	Multi{a, b, LogSink{}}.Publish(ticketEvent(1, 1))
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}
