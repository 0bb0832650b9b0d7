// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Key model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a key is not found (or already redeemed, for RedeemKey), functions
//     return gorm.ErrRecordNotFound (exported here as ErrNotFound).
//   - Unique-constraint violations on insert are mapped to ErrDuplicate so
//     the caller can treat a code collision as "discard and move on".
//   - On other DB errors (connectivity, etc.), the raw gorm error is
//     propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mgrigorov/go-logsearch-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a key with the same code already exists.
var ErrDuplicate = errors.New("duplicate")

// InsertKey inserts a new unredeemed Key row. On a unique-constraint
// violation (code collision) it returns ErrDuplicate; the caller is expected
// to discard the candidate code rather than retry.
func InsertKey(ctx context.Context, db *gorm.DB, code string, expiresAt time.Time) (*domain.Key, error) {
	k := &domain.Key{
		Code:      code,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(k).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return k, nil
}

// GetKey fetches a key by code, redeemed or not. Returns ErrNotFound if the
// code was never issued.
func GetKey(ctx context.Context, db *gorm.DB, code string) (*domain.Key, error) {
	var k domain.Key
	if err := db.WithContext(ctx).Where("code = ?", code).First(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

// RedeemKey atomically claims the key identified by code for userID and
// upserts the user's entitlement to the key's expiry. Both mutations happen
// in a single transaction: a crash or a lost race leaves neither a claimed
// key without an entitlement nor an entitlement from an unclaimed key.
//
// The claim is a conditional UPDATE guarded by "redeemed_by IS NULL"; when
// two redemptions race, exactly one sees RowsAffected == 1 and the other
// gets ErrNotFound, same as a never-issued or already-used code.
func RedeemKey(ctx context.Context, db *gorm.DB, userID, code string) (time.Time, error) {
	var grantedUntil time.Time

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var k domain.Key
		err := tx.Where("code = ? AND redeemed_by IS NULL", code).First(&k).Error
		if err != nil {
			return err
		}

		res := tx.Model(&domain.Key{}).
			Where("code = ? AND redeemed_by IS NULL", code).
			Update("redeemed_by", userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race against a concurrent redemption.
			return gorm.ErrRecordNotFound
		}

		if err := UpsertEntitlement(ctx, tx, userID, k.ExpiresAt); err != nil {
			return err
		}
		grantedUntil = k.ExpiresAt
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return grantedUntil, nil
}

// CountKeys returns the total number of issued keys and how many of them have
// been redeemed.
func CountKeys(ctx context.Context, db *gorm.DB) (total, redeemed int64, err error) {
	if err = db.WithContext(ctx).Model(&domain.Key{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = db.WithContext(ctx).Model(&domain.Key{}).
		Where("redeemed_by IS NOT NULL").Count(&redeemed).Error; err != nil {
		return 0, 0, err
	}
	return total, redeemed, nil
}

// isUniqueViolation detects unique-constraint violations across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
