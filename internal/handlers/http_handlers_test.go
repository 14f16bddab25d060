package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerlottery/internal/entropy"
	"ledgerlottery/internal/escrow"
	"ledgerlottery/internal/events"
	"ledgerlottery/internal/ledger"
	"ledgerlottery/internal/metrics"
	"ledgerlottery/internal/models"
	"ledgerlottery/internal/services"
)

var (
	admin    = ledger.Derive([]byte("admin"))
	player   = ledger.Derive([]byte("player"))
	platform = ledger.Derive([]byte("platform"))
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

type testServer struct {
	router *gin.Engine
	clock  *stepClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clock := &stepClock{now: time.Unix(1000, 0)}
	recorder := events.NewRecorder(10)
	m := metrics.New()
	svc, err := services.NewLotteryService(ledger.NewMemoryStore(), entropy.Fixed{}, services.Config{FeeBps: 1000, Platform: platform, Minters: []ledger.Address{admin}},
		services.WithClock(clock), services.WithSink(recorder), services.WithMetrics(m))
	require.NoError(t, err)

	r := gin.New()
	NewHTTPHandler(svc, recorder, m).RegisterRoutes(r)
	return &testServer{router: r, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path string, caller *ledger.Address, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.Header.Set(IdentityHeader, caller.Hex())
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

func TestLotteryFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/accounts/"+player.Hex()+"/deposit", &admin, gin.H{"amount": 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/rounds", &admin, gin.H{"roundId": 1, "ticketPrice": 10, "maxTickets": 5, "deadline": 1100})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var round models.Round
	decode(t, w, &round)
	assert.Equal(t, admin, round.Authority)
	assert.Equal(t, models.StatusActive, round.Status)

	w = s.do(t, http.MethodPost, "/rounds", &admin, gin.H{"roundId": 1, "ticketPrice": 10, "maxTickets": 5, "deadline": 1100})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DuplicateRound", errorKind(t, w))

	w = s.do(t, http.MethodPost, "/rounds/1/tickets", &player, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ticket models.Ticket
	decode(t, w, &ticket)
	assert.EqualValues(t, 1, ticket.TicketNumber)
	assert.Equal(t, player, ticket.Owner)

	w = s.do(t, http.MethodGet, "/rounds/1/tickets/1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/rounds/1/draw", &admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DrawNotReady", errorKind(t, w))

	s.clock.now = time.Unix(1100, 0)
	w = s.do(t, http.MethodPost, "/rounds/1/draw", &player, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/rounds/1/draw", &admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &round)
	require.NotNil(t, round.WinnerTicket)
	assert.EqualValues(t, 1, *round.WinnerTicket)

	w = s.do(t, http.MethodPost, "/rounds/1/claim", &player, gin.H{"ticketNumber": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var settlement models.Settlement
	decode(t, w, &settlement)
	assert.EqualValues(t, 9, settlement.Payout)
	assert.EqualValues(t, 1, settlement.Fee)

	w = s.do(t, http.MethodPost, "/rounds/1/claim", &player, gin.H{"ticket": ticket.Address})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PrizeAlreadyClaimed", errorKind(t, w))

	w = s.do(t, http.MethodGet, "/accounts/"+player.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var acc escrow.Account
	decode(t, w, &acc)
	assert.EqualValues(t, 99, acc.Balance)

	w = s.do(t, http.MethodGet, "/rounds/1/pool", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &acc)
	assert.Zero(t, acc.Balance)

	w = s.do(t, http.MethodGet, "/events?round=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var evs []events.Event
	decode(t, w, &evs)
	require.Len(t, evs, 3)
	assert.Equal(t, events.KindTicketPurchased, evs[0].Kind)
	assert.Equal(t, events.KindWinnerDrawn, evs[1].Kind)
	assert.Equal(t, events.KindPrizeClaimed, evs[2].Kind)

	w = s.do(t, http.MethodGet, "/events?round=0", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &evs)
	assert.Empty(t, evs)

	w = s.do(t, http.MethodGet, "/events", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &evs)
	assert.Len(t, evs, 3)

	w = s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `lottery_transitions_total{op="buy_ticket",result="ok"} 1`))
}

func TestIdentityRequired(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/rounds/1/tickets", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/rounds/1/tickets", nil)
	req.Header.Set(IdentityHeader, "not-hex")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDepositRequiresMinter(t *testing.T) {
	s := newTestServer(t)
	path := "/accounts/" + player.Hex() + "/deposit"

	w := s.do(t, http.MethodPost, path, nil, gin.H{"amount": uint64(1) << 62})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, path, &player, gin.H{"amount": uint64(1) << 62})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Unauthorized", errorKind(t, w))

	w = s.do(t, http.MethodGet, "/accounts/"+player.Hex(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, path, &admin, gin.H{"amount": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var acc escrow.Account
	decode(t, w, &acc)
	assert.EqualValues(t, 5, acc.Balance)
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		method, path string
		caller       *ledger.Address
		body         interface{}
		status       int
		kind         string
	}{
		{http.MethodGet, "/rounds/7", nil, nil, http.StatusNotFound, "NotFound"},
		{http.MethodGet, "/rounds/x", nil, nil, http.StatusBadRequest, "BadRequest"},
		{http.MethodPost, "/rounds", &admin, gin.H{"roundId": 2, "ticketPrice": 0, "maxTickets": 1, "deadline": 2000}, http.StatusBadRequest, "InvalidParameters"},
		{http.MethodPost, "/rounds/7/tickets", &player, nil, http.StatusNotFound, "NotFound"},
		{http.MethodGet, "/accounts/" + player.Hex(), nil, nil, http.StatusNotFound, "NotFound"},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%s %s", c.method, c.path), func(t *testing.T) {
			w := s.do(t, c.method, c.path, c.caller, c.body)
			assert.Equal(t, c.status, w.Code, w.Body.String())
			assert.Equal(t, c.kind, errorKind(t, w))
		})
	}
}

func TestBuyWithoutFunds(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/rounds", &admin, gin.H{"roundId": 3, "ticketPrice": 10, "maxTickets": 1, "deadline": 2000})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/rounds/3/tickets", &player, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "TransferFailed", errorKind(t, w))
}
