package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"stock_digest/internal/domain"
	"stock_digest/internal/membership"
	"stock_digest/internal/watchlist"
)

const (
	AccountHeader = "X-Account-Email"

	accountEmailKey = "account_email"
)

type WatchlistService interface {
	Resolve(ctx context.Context, email string) (string, error)
	Add(ctx context.Context, email, symbol, companyName string) (domain.AddResult, error)
	Remove(ctx context.Context, email, symbol string) (domain.RemoveResult, error)
	Symbols(ctx context.Context, email string) ([]string, error)
	Entries(ctx context.Context, email string) ([]domain.WatchlistEntry, error)
	Contains(ctx context.Context, email, symbol string) (bool, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service      WatchlistService
	bus          *membership.Bus
	db           Pinger
	streamBuffer int
	logger       *slog.Logger
}

func NewHandler(service WatchlistService, bus *membership.Bus, db Pinger, streamBuffer int, logger *slog.Logger) *Handler {
	return &Handler{
		service:      service,
		bus:          bus,
		db:           db,
		streamBuffer: streamBuffer,
		logger:       logger.With("component", "httpapi"),
	}
}

type AddRequest struct {
	Symbol  string `json:"symbol" binding:"required"`
	Company string `json:"company"`
}

type MutationResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

type EntryResponse struct {
	Symbol  string `json:"symbol"`
	Company string `json:"company"`
	AddedAt string `json:"added_at"`
}

// RequireAccount rejects requests that carry no account header.
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetHeader(AccountHeader)
		if email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, MutationResponse{Success: false, Error: "missing " + AccountHeader})
			return
		}
		c.Set(accountEmailKey, email)
		c.Next()
	}
}

func (h *Handler) ListWatchlist(c *gin.Context) {
	entries, err := h.service.Entries(c.Request.Context(), c.GetString(accountEmailKey))
	if err != nil {
		h.writeError(c, "list watchlist", err)
		return
	}

	res := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, EntryResponse{
			Symbol:  e.Symbol,
			Company: e.CompanyName,
			AddedAt: e.AddedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetSymbol(c *gin.Context) {
	ok, err := h.service.Contains(c.Request.Context(), c.GetString(accountEmailKey), c.Param("symbol"))
	if err != nil {
		h.writeError(c, "check watchlist", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"in_watchlist": ok})
}

func (h *Handler) AddSymbol(c *gin.Context) {
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MutationResponse{Success: false, Error: "invalid request body"})
		return
	}

	result, err := h.service.Add(c.Request.Context(), c.GetString(accountEmailKey), req.Symbol, req.Company)
	if err != nil {
		h.writeError(c, "add symbol", err)
		return
	}

	status := http.StatusOK
	if result == domain.AddCreated {
		status = http.StatusCreated
	}
	c.JSON(status, MutationResponse{Success: true, Result: string(result)})
}

func (h *Handler) RemoveSymbol(c *gin.Context) {
	result, err := h.service.Remove(c.Request.Context(), c.GetString(accountEmailKey), c.Param("symbol"))
	if err != nil {
		h.writeError(c, "remove symbol", err)
		return
	}

	c.JSON(http.StatusOK, MutationResponse{Success: true, Result: string(result)})
}

// StreamEvents sends a snapshot of the caller's symbols, then every
// membership change for the caller's account as server-sent events until the
// client disconnects. Events that arrive while the client is slow are dropped.
func (h *Handler) StreamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	email := c.GetString(accountEmailKey)

	accountID, err := h.service.Resolve(ctx, email)
	if err != nil {
		h.writeError(c, "resolve account", err)
		return
	}

	stream := membership.NewStream(h.bus, accountID, h.streamBuffer)
	defer func() {
		stream.Close()
		if dropped := stream.Dropped(); dropped > 0 {
			h.logger.Warn("membership stream dropped events", "account_id", accountID, "dropped", dropped)
		}
	}()

	symbols, err := h.service.Symbols(ctx, email)
	if err != nil {
		h.writeError(c, "list symbols", err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", gin.H{"symbols": symbols})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-stream.Events():
			if !ok {
				return false
			}
			c.SSEvent("membership", event)
			return true
		}
	})
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
	})
}

func (h *Handler) writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, MutationResponse{Success: false, Error: "account not found"})
	case errors.Is(err, watchlist.ErrInvalidSymbol):
		c.JSON(http.StatusBadRequest, MutationResponse{Success: false, Error: err.Error()})
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		c.JSON(http.StatusInternalServerError, MutationResponse{Success: false, Error: "internal error"})
	}
}
