// Search HTTP handlers.
//
// This file exposes the REST endpoints for the resumable log search:
//   - POST /search        (start or resume a scan, return the next page)
//   - POST /search/more   (fetch the next page of an existing scan)
//
// Handlers are transport-thin: they validate input, delegate to the search
// engine, and translate engine errors into HTTP results. A cooldown rejection
// carries a Retry-After header with the remaining wait in whole seconds.
package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mgrigorov/go-logsearch-backend/internal/services"
)

// SearchRequest is the JSON payload for both search endpoints.
type SearchRequest struct {
	// Keyword is the case-insensitive term to match. Surrounding whitespace
	// is ignored; a blank keyword is rejected.
	Keyword string `json:"keyword" binding:"required,min=1" example:"timeout"`
}

// Search starts (or resumes) the caller's scan for the submitted keyword and
// returns one page of matching lines.
func (h *Handlers) Search(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "keyword required")
		return
	}

	page, err := h.searchSvc.Search(c.Request.Context(), uid, req.Keyword)
	if err != nil {
		failSearch(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// SearchMore fetches the next page of an existing scan. A keyword with no
// live session, including one invalidated by a corpus reload, yields 404.
func (h *Handlers) SearchMore(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "keyword required")
		return
	}

	page, err := h.searchSvc.More(c.Request.Context(), uid, req.Keyword)
	if err != nil {
		failSearch(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// failSearch maps search engine errors onto HTTP responses. The two endpoints
// share the full taxonomy, so the mapping lives in one place.
func failSearch(c *gin.Context, err error) {
	if ce, okCd := services.AsCooldown(err); okCd {
		secs := int(math.Ceil(ce.Remaining.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", fmt.Sprintf("%d", secs))
		fail(c, http.StatusTooManyRequests, ErrCodeOnCooldown, fmt.Sprintf("wait %ds before searching again", secs))
		return
	}
	switch {
	case errors.Is(err, services.ErrEmptyKeyword):
		fail(c, http.StatusBadRequest, ErrCodeEmptyKeyword, "keyword must not be blank")
	case errors.Is(err, services.ErrNoEntitlement):
		fail(c, http.StatusForbidden, ErrCodeNoEntitlement, "no active entitlement")
	case errors.Is(err, services.ErrUnknownSession):
		fail(c, http.StatusNotFound, ErrCodeUnknownSession, "no search in progress for this keyword")
	default:
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "entitlement store unavailable")
	}
}
