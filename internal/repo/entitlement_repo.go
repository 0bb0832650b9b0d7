// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Entitlement
// model.
//
// Functions:
//
//   - GetEntitlement(ctx, db, userID) -> *domain.Entitlement, error
//     Fetches the user's entitlement row, or ErrNotFound.
//
//   - UpsertEntitlement(ctx, db, userID, expiresAt) -> error
//     Inserts or overwrites the user's expiry (ON CONFLICT DO UPDATE).
//
//   - DeleteEntitlement(ctx, db, userID) -> error
//     Removes the user's entitlement row (used for lazy expiry cleanup).
//
//   - ListActiveEntitlements(ctx, db, now, limit) -> []domain.Entitlement, error
//     Returns unexpired entitlements ordered by expiry descending.
//
//   - ListUserIDsWithExpiryAfter(ctx, db, t) -> []string, error
//     Returns the IDs of users whose entitlement outlives t (broadcast read).
//
// This repository is designed to be wrapped by a higher-level service
// (see services.EntitlementService) which enforces business rules such as
// lazy expiry cleanup and key-code generation.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mgrigorov/go-logsearch-backend/internal/domain"
)

// GetEntitlement fetches the entitlement row for userID, or ErrNotFound.
func GetEntitlement(ctx context.Context, db *gorm.DB, userID string) (*domain.Entitlement, error) {
	var e domain.Entitlement
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// UpsertEntitlement inserts an entitlement for userID or, when one already
// exists, overwrites its expiry with expiresAt. The overwrite is deliberate:
// redeeming a shorter key after a longer one shortens the grant.
func UpsertEntitlement(ctx context.Context, db *gorm.DB, userID string, expiresAt time.Time) error {
	now := time.Now().UTC()
	e := &domain.Entitlement{
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"expires_at": expiresAt,
				"updated_at": now,
			}),
		}).
		Create(e).Error
}

// DeleteEntitlement removes the entitlement row for userID. Deleting a
// missing row is not an error.
func DeleteEntitlement(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.Entitlement{}).Error
}

// ListActiveEntitlements returns entitlements with expires_at >= now, ordered
// by expiry descending. limit caps the result size; limit <= 0 means no cap.
func ListActiveEntitlements(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Entitlement, error) {
	q := db.WithContext(ctx).
		Where("expires_at >= ?", now).
		Order("expires_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Entitlement
	err := q.Find(&out).Error
	return out, err
}

// ListUserIDsWithExpiryAfter returns the user IDs whose entitlement expires
// strictly after t. Used by the broadcast workflow to resolve recipients.
func ListUserIDsWithExpiryAfter(ctx context.Context, db *gorm.DB, t time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Entitlement{}).
		Where("expires_at > ?", t).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}
