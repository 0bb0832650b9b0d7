// Package services – EntitlementService
//
// This file implements the entitlement store orchestration: bulk issuance of
// single-use time-limited keys, atomic redemption into per-user expiry
// records, the access predicate with lazy cleanup of expired grants, and the
// administrative reads (active entitlements, broadcast recipients).
//
// Durable state lives in SQLite behind the repo package; this service adds
// the business rules (code generation, collision handling, expiry math) on
// top of the thin repositories.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mgrigorov/go-logsearch-backend/internal/domain"
	"github.com/mgrigorov/go-logsearch-backend/internal/repo"
)

// EntitlementService provides key issuance, redemption, and access checks.
type EntitlementService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// Now is the wall clock; tests override it.
	Now func() time.Time

	// CodePrefix and CodeDigits shape generated voucher codes
	// (default "KEY-" + 6 digits, e.g. "KEY-483920").
	CodePrefix string
	CodeDigits int
}

// NewEntitlementService constructs an EntitlementService with the legacy
// voucher code format.
func NewEntitlementService(db *gorm.DB) *EntitlementService {
	return &EntitlementService{
		DB:         db,
		Now:        time.Now,
		CodePrefix: "KEY-",
		CodeDigits: 6,
	}
}

// IssueKeys generates count keys valid for the given number of days and
// returns their codes. A generated code that collides with an existing key is
// discarded rather than retried, so the result may be shorter than count;
// callers must treat a short result as partial success. The returned slice is
// authoritative.
func (s *EntitlementService) IssueKeys(ctx context.Context, days, count int) ([]string, error) {
	tr := otel.Tracer("services/EntitlementService")
	ctx, span := tr.Start(ctx, "IssueKeys",
		trace.WithAttributes(attribute.Int("days", days), attribute.Int("count", count)),
	)
	defer span.End()

	if days <= 0 || count <= 0 {
		return nil, ErrInvalidIssueRequest
	}
	expiresAt := s.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := s.generateCode()
		if err != nil {
			return codes, err
		}
		if _, err := repo.InsertKey(ctx, s.DB, code, expiresAt); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				continue // collision: discard the candidate, short yield
			}
			return codes, err
		}
		codes = append(codes, code)
	}
	span.SetAttributes(attribute.Int("issued", len(codes)))
	return codes, nil
}

// Redeem claims the key identified by code for userID and grants the user an
// entitlement until the key's expiry. The claim and the grant are applied as
// one transaction (see repo.RedeemKey). A code that was never issued, was
// already redeemed, or lost a concurrent redemption race yields
// ErrInvalidOrUsedKey.
func (s *EntitlementService) Redeem(ctx context.Context, userID, code string) (time.Time, error) {
	tr := otel.Tracer("services/EntitlementService")
	ctx, span := tr.Start(ctx, "Redeem",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	grantedUntil, err := repo.RedeemKey(ctx, s.DB, userID, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return time.Time{}, ErrInvalidOrUsedKey
		}
		return time.Time{}, err
	}
	return grantedUntil, nil
}

// GetExpiry returns the user's recorded entitlement expiry, or nil when no
// record exists. The raw timestamp is returned even when it lies in the past;
// use HasActiveEntitlement for the access decision.
func (s *EntitlementService) GetExpiry(ctx context.Context, userID string) (*time.Time, error) {
	e, err := repo.GetEntitlement(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e.ExpiresAt, nil
}

// HasActiveEntitlement reports whether userID holds an unexpired entitlement.
// As a side effect, an expired record is deleted: every call to this
// predicate is also a cleanup opportunity, which is the only cleanup the
// store gets.
func (s *EntitlementService) HasActiveEntitlement(ctx context.Context, userID string) (bool, error) {
	e, err := repo.GetEntitlement(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if e.Active(s.Now()) {
		return true, nil
	}
	if err := repo.DeleteEntitlement(ctx, s.DB, userID); err != nil {
		return false, err
	}
	return false, nil
}

// ListActive returns up to limit unexpired entitlements ordered by expiry
// descending.
func (s *EntitlementService) ListActive(ctx context.Context, limit int) ([]domain.Entitlement, error) {
	return repo.ListActiveEntitlements(ctx, s.DB, s.Now(), limit)
}

// ListUsersWithEntitlementAfter returns the IDs of users whose entitlement
// expires strictly after t. The broadcast workflow uses it to resolve
// recipients; delivery itself is the transport's business.
func (s *EntitlementService) ListUsersWithEntitlementAfter(ctx context.Context, t time.Time) ([]string, error) {
	return repo.ListUserIDsWithExpiryAfter(ctx, s.DB, t)
}

// generateCode produces one candidate voucher code: the configured prefix
// followed by CodeDigits uniformly random decimal digits with no leading
// zero, matching the historical "KEY-XXXXXX" shape.
func (s *EntitlementService) generateCode() (string, error) {
	digits := s.CodeDigits
	if digits <= 0 {
		digits = 6
	}
	lo := pow10(digits - 1)
	n, err := rand.Int(rand.Reader, big.NewInt(lo*9)) // [0, 9*lo)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", s.CodePrefix, lo+n.Int64()), nil
}

func pow10(n int) int64 {
	out := int64(1)
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}
