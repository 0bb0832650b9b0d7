// Admin HTTP handlers.
//
// This file exposes the administrative endpoints:
//   - POST /admin/keys                  (mint single-use keys)
//   - GET  /admin/entitlements          (list active entitlements, ETag support)
//   - GET  /admin/broadcast/recipients  (resolve currently entitled users)
//   - POST /admin/corpus/reload         (swap in a fresh corpus snapshot)
//
// Admin routes sit behind the AdminOnly middleware; by the time a request
// reaches these handlers its X-User-ID has already matched the configured
// administrator.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mgrigorov/go-logsearch-backend/internal/domain"
	"github.com/mgrigorov/go-logsearch-backend/internal/repo"
	"github.com/mgrigorov/go-logsearch-backend/internal/services"
	"github.com/mgrigorov/go-logsearch-backend/internal/utils"
)

//
// DTOs
//

// IssueKeysRequest is the JSON payload for minting keys.
type IssueKeysRequest struct {
	// Days is the validity window of each key, in whole days.
	Days int `json:"days" binding:"required,min=1" example:"7"`
	// Count is the number of keys to mint.
	Count int `json:"count" binding:"required,min=1" example:"10"`
}

// IssueKeysResponse lists the minted key codes. Issued may be lower than the
// requested count when generated codes collided with existing keys; the codes
// slice is authoritative.
type IssueKeysResponse struct {
	Codes  []string `json:"codes"`
	Issued int      `json:"issued"`
}

// ListEntitlementsResponse wraps the active entitlement listing.
type ListEntitlementsResponse struct {
	Entitlements []domain.Entitlement `json:"entitlements"`
	Count        int                  `json:"count"`
}

// RecipientsResponse lists the users currently holding an active entitlement.
type RecipientsResponse struct {
	UserIDs []string `json:"user_ids"`
	Count   int      `json:"count"`
}

// ReloadCorpusResponse reports the size of the freshly loaded corpus.
type ReloadCorpusResponse struct {
	Lines int `json:"lines"`
}

//
// Handlers
//

// IssueKeys mints the requested number of single-use keys, each valid for the
// requested number of days. Collisions shorten the yield instead of failing
// the request.
func (h *Handlers) IssueKeys(c *gin.Context) {
	var req IssueKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "days and count must be positive integers")
		return
	}

	codes, err := h.entSvc.IssueKeys(c.Request.Context(), req.Days, req.Count)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidIssueRequest):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "days and count must be positive integers")
		default:
			fail(c, http.StatusServiceUnavailable, ErrCodeIssueFailed, "entitlement store unavailable")
		}
		return
	}
	ok(c, http.StatusCreated, IssueKeysResponse{Codes: codes, Issued: len(codes)})
}

// ListEntitlements returns the currently active entitlements, newest expiry
// first. Supports weak ETag via If-None-Match and may return 304.
func (h *Handlers) ListEntitlements(c *gin.Context) {
	ctx := c.Request.Context()

	const (
		defaultLimit = 100
		maxLimit     = 1000
	)
	limit := utils.AtoiDefault(c.Query("limit"), defaultLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, okSvc := h.entSvc.(*services.EntitlementService); okSvc {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.EntitlementsStats(ctx, db, time.Now().UTC())
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"entitlements:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.entSvc.ListActive(ctx, limit)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeListFailed, "entitlement store unavailable")
		return
	}
	ok(c, http.StatusOK, ListEntitlementsResponse{Entitlements: items, Count: len(items)})
}

// BroadcastRecipients resolves the users whose entitlement is still active
// right now. Delivery of any announcement is the caller's business; this
// endpoint only answers "who would receive it".
func (h *Handlers) BroadcastRecipients(c *gin.Context) {
	ids, err := h.entSvc.ListUsersWithEntitlementAfter(c.Request.Context(), time.Now().UTC())
	if err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeListFailed, "entitlement store unavailable")
		return
	}
	ok(c, http.StatusOK, RecipientsResponse{UserIDs: ids, Count: len(ids)})
}

// ReloadCorpus swaps in a freshly loaded corpus snapshot and invalidates
// every live search session. A failed load keeps the previous snapshot
// serving and returns an error instead.
func (h *Handlers) ReloadCorpus(c *gin.Context) {
	n, err := h.searchSvc.ReloadCorpus(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeReloadFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ReloadCorpusResponse{Lines: n})
}
