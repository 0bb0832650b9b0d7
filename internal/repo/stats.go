// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mgrigorov/go-logsearch-backend/internal/domain"
)

// EntitlementsStats returns aggregate metadata for active entitlements: the
// number of unexpired rows and the maximum UpdatedAt timestamp among them.
//
// It executes two lightweight queries against the entitlements table. When no
// entitlement is active, the returned count is 0 and maxUpdatedAt is nil.
//
// Return values:
//   - count:        active entitlements at the given instant
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func EntitlementsStats(ctx context.Context, db *gorm.DB, now time.Time) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Entitlement{}).Where("expires_at >= ?", now)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
