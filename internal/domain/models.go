// Package domain defines the persistence models for access keys and user
// entitlements. These types are mapped with GORM and form the durable data
// layer of the log-search service.
package domain

import "time"

// Key represents a single-use voucher that can be redeemed for a time-limited
// entitlement. Keys are created in bulk by an administrator and mutated
// exactly once, by a successful redemption.
//
// Fields:
//   - Code: unique voucher code (primary key, e.g. "KEY-483920").
//   - ExpiresAt: entitlement expiry granted on redemption (creation time +
//     validity days, fixed at issue time).
//   - RedeemedBy: identifier of the redeeming user; nil while unredeemed.
//     Once set, the row is never mutated again.
//   - CreatedAt: timestamp managed by GORM.
type Key struct {
	Code       string    `json:"code"        gorm:"type:varchar(64);primaryKey"`
	ExpiresAt  time.Time `json:"expires_at"  gorm:"not null"`
	RedeemedBy *string   `json:"redeemed_by,omitempty" gorm:"type:varchar(64);index"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Key.
func (Key) TableName() string { return "keys" }

// Redeemed reports whether the key has already been claimed.
func (k *Key) Redeemed() bool { return k.RedeemedBy != nil }

// Entitlement is a user's current right to search, bounded by an expiry
// timestamp. At most one row exists per user; a later redemption overwrites
// ExpiresAt with the redeemed key's expiry even when the previous grant had
// more remaining time (upsert-overwrite semantics).
//
// Expired rows are removed lazily on the next access check rather than by a
// background sweeper.
type Entitlement struct {
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Entitlement.
func (Entitlement) TableName() string { return "entitlements" }

// Active reports whether the entitlement is still valid at the given instant.
func (e *Entitlement) Active(now time.Time) bool { return !now.After(e.ExpiresAt) }
