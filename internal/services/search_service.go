// Package services – SearchService
//
// This file implements the search engine: the orchestration of entitlement
// checks, the per-user cooldown, the corpus snapshot, and the resumable
// per-(user, keyword) scan sessions. It owns the paginated forward-only scan
// with the lookahead termination rule that answers "more results exist"
// without a second pass over the corpus.
//
// Observability: the public methods are OpenTelemetry-instrumented; spans
// include the user identifier and page metadata.
package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mgrigorov/go-logsearch-backend/internal/corpus"
)

// EntitlementChecker is the slice of the entitlement service the search
// engine needs: a single yes/no access predicate.
type EntitlementChecker interface {
	// HasActiveEntitlement reports whether userID currently holds an
	// unexpired entitlement.
	HasActiveEntitlement(ctx context.Context, userID string) (bool, error)
}

// Page is one bounded batch of matching lines handed to the transport layer.
type Page struct {
	// Keyword is the normalized (trimmed, lower-cased) search term.
	Keyword string `json:"keyword"`
	// Lines are the matching corpus lines, in corpus order.
	Lines []string `json:"lines"`
	// More reports that at least one further match exists beyond this page.
	More bool `json:"more"`
	// Finished reports that the session has scanned to the end of the corpus.
	Finished bool `json:"finished"`
}

// SearchService answers first-page and next-page search requests. All fields
// must be set before use; PageSize falls back to a default when <= 0.
type SearchService struct {
	// Entitlements gates every request on "has a non-expired entitlement".
	Entitlements EntitlementChecker
	// Cooldown enforces the per-user wait between accepted page fetches.
	Cooldown *CooldownLimiter
	// Corpus publishes the current immutable line snapshot.
	Corpus *corpus.Store
	// Sessions holds the live per-(user, keyword) cursors.
	Sessions *SessionStore

	// PageSize caps the number of lines returned per page.
	PageSize int
}

// defaultPageSize mirrors the per-search line cap of the legacy deployment.
const defaultPageSize = 200

// NewSearchService wires the engine to its collaborators.
func NewSearchService(ent EntitlementChecker, cd *CooldownLimiter, st *corpus.Store, pageSize int) *SearchService {
	return &SearchService{
		Entitlements: ent,
		Cooldown:     cd,
		Corpus:       st,
		Sessions:     NewSessionStore(),
		PageSize:     pageSize,
	}
}

// Search starts (or resumes) the scan for rawKeyword on behalf of userID and
// returns the next page of matches.
//
// Gating order: keyword normalization, entitlement, cooldown. The cooldown is
// marked only once the request is accepted, immediately before scanning, so a
// rejected attempt never resets the user's window and a slow scan is charged
// for the attempt, not its duration.
//
// A keyword that already has a live session on the current corpus generation
// resumes it. A session left over from an older generation is replaced with a
// fresh cursor, so a search after a reload always starts over rather than
// failing on a cursor that no longer means anything.
func (s *SearchService) Search(ctx context.Context, userID, rawKeyword string) (*Page, error) {
	tr := otel.Tracer("services/SearchService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	keyword := strings.ToLower(strings.TrimSpace(rawKeyword))
	if keyword == "" {
		return nil, ErrEmptyKeyword
	}
	if err := s.gate(ctx, userID); err != nil {
		return nil, err
	}

	snap := s.Corpus.Snapshot()
	sess := s.Sessions.getOrCreate(userID, keyword, snap.Generation())

	s.Cooldown.Mark(userID)
	page, err := s.scanNextPage(sess, snap, keyword)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("page.lines", len(page.Lines)),
		attribute.Bool("page.more", page.More),
	)
	return page, nil
}

// More fetches the next page for an existing session. It applies the same
// entitlement and cooldown gates as Search but, unlike Search, refuses to
// create a session: a "more" request for a (user, keyword) pair with no live
// cursor fails with ErrUnknownSession. That includes cursors invalidated by
// a corpus reload.
func (s *SearchService) More(ctx context.Context, userID, rawKeyword string) (*Page, error) {
	tr := otel.Tracer("services/SearchService")
	ctx, span := tr.Start(ctx, "More",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	keyword := strings.ToLower(strings.TrimSpace(rawKeyword))
	if keyword == "" {
		return nil, ErrEmptyKeyword
	}
	if err := s.gate(ctx, userID); err != nil {
		return nil, err
	}

	sess, ok := s.Sessions.get(userID, keyword)
	if !ok {
		return nil, ErrUnknownSession
	}
	snap := s.Corpus.Snapshot()
	if sess.gen != snap.Generation() {
		// Cursor predates the published corpus: reject before the cooldown
		// is charged, like any other rejected attempt.
		return nil, ErrUnknownSession
	}

	s.Cooldown.Mark(userID)
	page, err := s.scanNextPage(sess, snap, keyword)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("page.lines", len(page.Lines)),
		attribute.Bool("page.more", page.More),
	)
	return page, nil
}

// ReloadCorpus swaps in a freshly loaded corpus snapshot and drops every
// search session. The new snapshot carries a new generation, so any scan
// still holding a pre-reload session fails the generation check instead of
// walking positions that no longer correspond to the same lines. It returns
// the number of lines in the new snapshot.
func (s *SearchService) ReloadCorpus(ctx context.Context) (int, error) {
	tr := otel.Tracer("services/SearchService")
	_, span := tr.Start(ctx, "ReloadCorpus")
	defer span.End()

	snap, err := s.Corpus.Reload()
	if err != nil {
		return 0, err
	}
	s.Sessions.ClearAll()
	span.SetAttributes(attribute.Int("corpus.lines", snap.Len()))
	return snap.Len(), nil
}

// gate applies the entitlement and cooldown checks shared by Search and More.
func (s *SearchService) gate(ctx context.Context, userID string) error {
	active, err := s.Entitlements.HasActiveEntitlement(ctx, userID)
	if err != nil {
		return err
	}
	if !active {
		return ErrNoEntitlement
	}
	if on, remaining := s.Cooldown.CheckAndRemaining(userID); on {
		return &CooldownError{Remaining: remaining}
	}
	return nil
}

// scanNextPage advances the session's cursor through the snapshot and builds
// one page of matches. Matching is substring containment of the lower-cased
// keyword in the lower-cased line; nothing else.
//
// Termination: the scan stops the moment the running match count exceeds the
// page size. That excess match's position is recorded as scanned and the line
// itself is parked on the session, to be delivered at the head of the next
// page; the scan therefore never walks more than one match past what it
// returns, never re-examines a position, and never delivers a line twice.
//
// A finished session yields an empty page with More == false; the caller can
// tell that apart from a gate rejection because this path returns no error.
func (s *SearchService) scanNextPage(sess *searchSession, snap *corpus.Snapshot, keyword string) (*Page, error) {
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.gen != snap.Generation() {
		return nil, ErrUnknownSession
	}

	page := &Page{Keyword: keyword, Lines: []string{}}
	if sess.finished {
		page.Finished = true
		return page, nil
	}

	if sess.hasPending {
		page.Lines = append(page.Lines, sess.pending)
		sess.pending, sess.hasPending = "", false
	}
	matches := len(page.Lines)

	for pos := sess.lastScanned + 1; pos < snap.Len(); pos++ {
		sess.lastScanned = pos
		line := snap.Line(pos)
		if !strings.Contains(strings.ToLower(line), keyword) {
			continue
		}
		matches++
		if matches <= pageSize {
			page.Lines = append(page.Lines, line)
			continue
		}
		// Lookahead hit one match beyond the page: stop here.
		sess.pending, sess.hasPending = line, true
		page.More = true
		break
	}

	if !page.More {
		sess.finished = true
	}
	page.Finished = sess.finished
	return page, nil
}
