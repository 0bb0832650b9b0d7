// Access HTTP handlers.
//
// This file exposes the REST endpoints for key redemption and access checks:
//   - POST /keys/redeem   (claim a single-use key, grant an entitlement)
//   - GET  /access        (report the caller's entitlement status)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. The caller's identity is the
// X-User-ID header; there is no session or token layer in front of it.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mgrigorov/go-logsearch-backend/internal/domain"
	"github.com/mgrigorov/go-logsearch-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// EntitlementService defines key and entitlement operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type EntitlementService interface {
	// IssueKeys mints count single-use keys valid for the given number of days.
	IssueKeys(ctx context.Context, days, count int) ([]string, error)
	// Redeem claims a key for userID and returns the granted expiry.
	Redeem(ctx context.Context, userID, code string) (time.Time, error)
	// GetExpiry returns the raw recorded expiry, or nil when no record exists.
	GetExpiry(ctx context.Context, userID string) (*time.Time, error)
	// HasActiveEntitlement reports whether userID holds an unexpired grant.
	HasActiveEntitlement(ctx context.Context, userID string) (bool, error)
	// ListActive returns up to limit unexpired entitlements, newest expiry first.
	ListActive(ctx context.Context, limit int) ([]domain.Entitlement, error)
	// ListUsersWithEntitlementAfter resolves broadcast recipients.
	ListUsersWithEntitlementAfter(ctx context.Context, t time.Time) ([]string, error)
}

// SearchEngine defines the paginated search operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SearchEngine interface {
	// Search starts or resumes the caller's scan for keyword.
	Search(ctx context.Context, userID, keyword string) (*services.Page, error)
	// More fetches the next page of an existing scan.
	More(ctx context.Context, userID, keyword string) (*services.Page, error)
	// ReloadCorpus swaps in a fresh corpus snapshot and reports its line count.
	ReloadCorpus(ctx context.Context) (int, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for access, search, and administration.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	entSvc    EntitlementService
	searchSvc SearchEngine
}

// New constructs and returns a Handlers instance bound to the given services.
func New(entSvc EntitlementService, searchSvc SearchEngine) *Handlers {
	return &Handlers{entSvc: entSvc, searchSvc: searchSvc}
}

// userID extracts the caller identity from Gin context (set by upstream
// middleware) or, failing that, from the "X-User-ID" header. An empty result
// means the request carried no identity; handlers reject those. It never
// touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return ""
}

// requireUser resolves the caller identity or fails the request with 400.
func requireUser(c *gin.Context) (string, bool) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-User-ID header required")
		return "", false
	}
	return uid, true
}

//
// DTOs
//

// RedeemKeyRequest is the JSON payload for redeeming a single-use key.
type RedeemKeyRequest struct {
	// Code is the key being claimed, e.g. "KEY-483920".
	Code string `json:"code" binding:"required,min=1" example:"KEY-483920"`
}

// RedeemKeyResponse reports the entitlement granted by a successful redemption.
type RedeemKeyResponse struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccessResponse reports the caller's current entitlement status.
type AccessResponse struct {
	Active bool `json:"active"`
	// ExpiresAt is the recorded expiry; omitted when no record exists.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

//
// Handlers
//

// RedeemKey claims the submitted key for the caller and grants an entitlement
// lasting until the key's expiry. A code that was never issued, was already
// redeemed, or lost a concurrent redemption race yields 404 with a stable
// error code; the response never distinguishes those cases.
func (h *Handlers) RedeemKey(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	var req RedeemKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code required")
		return
	}

	expiresAt, err := h.entSvc.Redeem(c.Request.Context(), uid, strings.TrimSpace(req.Code))
	if err != nil {
		switch err {
		case services.ErrInvalidOrUsedKey:
			fail(c, http.StatusNotFound, ErrCodeInvalidOrUsedKey, "key not found or already redeemed")
		default:
			fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "entitlement store unavailable")
		}
		return
	}

	ok(c, http.StatusOK, RedeemKeyResponse{UserID: uid, ExpiresAt: expiresAt})
}

// GetAccess reports whether the caller currently holds an active entitlement,
// along with the recorded expiry when one exists. Asking about an expired
// grant also removes its stale record as a side effect of the check.
func (h *Handlers) GetAccess(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	ctx := c.Request.Context()

	active, err := h.entSvc.HasActiveEntitlement(ctx, uid)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "entitlement store unavailable")
		return
	}
	resp := AccessResponse{Active: active}
	if active {
		if exp, err := h.entSvc.GetExpiry(ctx, uid); err == nil {
			resp.ExpiresAt = exp
		}
	}
	ok(c, http.StatusOK, resp)
}
