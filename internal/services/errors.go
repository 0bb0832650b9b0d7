// Package services defines the business logic for entitlements, cooldowns,
// and resumable keyword search. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidOrUsedKey is returned when a redemption names a code that was
	// never issued or has already been claimed by some user.
	ErrInvalidOrUsedKey = errors.New("invalid or already redeemed key")

	// ErrNoEntitlement is returned when a user without an active (unexpired)
	// entitlement attempts to search.
	ErrNoEntitlement = errors.New("no active entitlement")

	// ErrEmptyKeyword is returned when a search keyword is empty after
	// trimming.
	ErrEmptyKeyword = errors.New("keyword is empty")

	// ErrUnknownSession is returned when a "more" request names a session
	// that does not exist, or whose cursor belongs to a corpus generation
	// that has since been reloaded.
	ErrUnknownSession = errors.New("unknown search session")

	// ErrInvalidIssueRequest is returned when key issuance is asked for a
	// non-positive validity or count.
	ErrInvalidIssueRequest = errors.New("days and count must be positive")
)

// CooldownError reports that a user must wait before searching again.
// It carries the remaining wait so the transport can render a countdown
// (and a Retry-After header).
type CooldownError struct {
	Remaining time.Duration
}

// Error implements the error interface.
func (e *CooldownError) Error() string {
	return fmt.Sprintf("on cooldown for another %s", e.Remaining.Round(time.Second))
}

// AsCooldown unwraps err into a *CooldownError when it is one.
func AsCooldown(err error) (*CooldownError, bool) {
	var ce *CooldownError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
