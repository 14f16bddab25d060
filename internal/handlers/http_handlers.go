package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"ledgerlottery/internal/escrow"
	"ledgerlottery/internal/events"
	"ledgerlottery/internal/ledger"
	"ledgerlottery/internal/metrics"
	"ledgerlottery/internal/services"
)

// IdentityHeader carries the caller's identity as a hex address.
const IdentityHeader = "X-Lottery-Identity"

const identityKey = "identity"

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	service  *services.LotteryService
	recorder *events.Recorder
	metrics  *metrics.Metrics
}

// NewHTTPHandler creates a new HTTPHandler. recorder and m may be nil.
func NewHTTPHandler(service *services.LotteryService, recorder *events.Recorder, m *metrics.Metrics) *HTTPHandler {
	return &HTTPHandler{
		service:  service,
		recorder: recorder,
		metrics:  m,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/rounds/:id", h.GetRound)
	router.GET("/rounds/:id/tickets", h.ListTickets)
	router.GET("/rounds/:id/tickets/:number", h.GetTicket)
	router.GET("/rounds/:id/pool", h.GetPool)
	router.GET("/accounts/:owner", h.GetAccount)
	if h.recorder != nil {
		router.GET("/events", h.ListEvents)
	}
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	signed := router.Group("/")
	signed.Use(h.IdentityMiddleware())
	signed.POST("/rounds", h.InitializeRound)
	signed.POST("/rounds/:id/tickets", h.BuyTicket)
	signed.POST("/rounds/:id/draw", h.DrawWinner)
	signed.POST("/rounds/:id/claim", h.ClaimPrize)
	signed.POST("/accounts/:owner/deposit", h.Deposit)
}

// IdentityMiddleware resolves the caller identity from IdentityHeader.
func (h *HTTPHandler) IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(IdentityHeader)
		if raw == "" {
			abortWithError(c, http.StatusUnauthorized, "Unauthorized", "missing "+IdentityHeader+" header")
			return
		}
		id, err := ledger.ParseAddress(raw)
		if err != nil || id == (ledger.Address{}) {
			abortWithError(c, http.StatusUnauthorized, "Unauthorized", "invalid "+IdentityHeader+" header")
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identity(c *gin.Context) ledger.Address {
	return c.MustGet(identityKey).(ledger.Address)
}

func abortWithError(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "message": message})
}

var statusByKind = map[string]int{
	"InvalidParameters":   http.StatusBadRequest,
	"NotFound":            http.StatusNotFound,
	"Unauthorized":        http.StatusForbidden,
	"NotTicketOwner":      http.StatusForbidden,
	"DuplicateRound":      http.StatusConflict,
	"SlotAlreadyIssued":   http.StatusConflict,
	"PrizeAlreadyClaimed": http.StatusConflict,
	"LotteryNotActive":    http.StatusConflict,
	"LotteryFull":         http.StatusConflict,
	"LotteryEnded":        http.StatusConflict,
	"NoTicketsSold":       http.StatusConflict,
	"DrawNotReady":        http.StatusConflict,
	"LotteryNotCompleted": http.StatusConflict,
	"InvalidTicket":       http.StatusUnprocessableEntity,
	"NotWinningTicket":    http.StatusUnprocessableEntity,
	"TransferFailed":      http.StatusUnprocessableEntity,
}

func respondError(c *gin.Context, err error) {
	kind := services.ErrorKind(err)
	status, ok := statusByKind[kind]
	if !ok && errors.Is(err, escrow.ErrOverflow) {
		kind, status, ok = "Overflow", http.StatusUnprocessableEntity, true
	}
	if !ok {
		status = http.StatusInternalServerError
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	abortWithError(c, status, kind, err.Error())
}

func badRequest(c *gin.Context, message string) {
	abortWithError(c, http.StatusBadRequest, "BadRequest", message)
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func addressParam(c *gin.Context, name string) (ledger.Address, bool) {
	a, err := ledger.ParseAddress(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return a, false
	}
	return a, true
}

type initializeRequest struct {
	RoundID     uint64 `json:"roundId"`
	TicketPrice uint64 `json:"ticketPrice"`
	MaxTickets  uint64 `json:"maxTickets"`
	Deadline    int64  `json:"deadline"`
}

// InitializeRound creates a round with the caller as its authority.
func (h *HTTPHandler) InitializeRound(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	round, err := h.service.Initialize(c.Request.Context(), services.InitializeParams{
		Authority:   identity(c),
		RoundID:     req.RoundID,
		TicketPrice: req.TicketPrice,
		MaxTickets:  req.MaxTickets,
		Deadline:    req.Deadline,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, round)
}

// GetRound returns the round snapshot.
func (h *HTTPHandler) GetRound(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	round, err := h.service.GetRound(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

// GetPool returns the escrow account holding the round's pool.
func (h *HTTPHandler) GetPool(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	acc, err := h.service.Account(c.Request.Context(), services.PoolAddress(services.RoundAddress(id)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// BuyTicket sells the next ticket of the round to the caller.
func (h *HTTPHandler) BuyTicket(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ticket, err := h.service.BuyTicket(c.Request.Context(), id, identity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

// ListTickets returns every ticket of the round.
func (h *HTTPHandler) ListTickets(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	tickets, err := h.service.ListTickets(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

// GetTicket returns one ticket by number.
func (h *HTTPHandler) GetTicket(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	n, ok := uintParam(c, "number")
	if !ok {
		return
	}
	ticket, err := h.service.GetTicket(c.Request.Context(), id, n)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// DrawWinner draws the round; the caller must be its authority.
func (h *HTTPHandler) DrawWinner(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	round, err := h.service.DrawWinner(c.Request.Context(), id, identity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

type claimRequest struct {
	// Ticket is the ticket address. TicketNumber is used when it is empty.
	Ticket       *ledger.Address `json:"ticket"`
	TicketNumber uint64          `json:"ticketNumber"`
}

// ClaimPrize pays the pool to the caller if they hold the winning ticket.
func (h *HTTPHandler) ClaimPrize(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	addr := services.TicketAddress(services.RoundAddress(id), req.TicketNumber)
	if req.Ticket != nil {
		addr = *req.Ticket
	}
	settlement, err := h.service.ClaimPrize(c.Request.Context(), services.ClaimParams{
		RoundID:  id,
		Ticket:   addr,
		Claimant: identity(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

// GetAccount returns the wallet of owner.
func (h *HTTPHandler) GetAccount(c *gin.Context) {
	owner, ok := addressParam(c, "owner")
	if !ok {
		return
	}
	acc, err := h.service.Wallet(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

// Deposit funds the wallet of owner; the caller must be a minter.
func (h *HTTPHandler) Deposit(c *gin.Context) {
	owner, ok := addressParam(c, "owner")
	if !ok {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	acc, err := h.service.Mint(c.Request.Context(), identity(c), owner, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// ListEvents returns recent audit events, optionally filtered by ?round=.
func (h *HTTPHandler) ListEvents(c *gin.Context) {
	q, ok := c.GetQuery("round")
	if !ok {
		c.JSON(http.StatusOK, h.recorder.Events())
		return
	}
	roundID, err := strconv.ParseUint(q, 10, 64)
	if err != nil {
		badRequest(c, "invalid round")
		return
	}
	c.JSON(http.StatusOK, h.recorder.RoundEvents(roundID))
}
