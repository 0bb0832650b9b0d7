package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mgrigorov/go-logsearch-backend/internal/domain"
	"github.com/mgrigorov/go-logsearch-backend/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.Key{}, &domain.Entitlement{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestIssueKeys_GeneratesRequestedCountAndFormat(t *testing.T) {
	svc := NewEntitlementService(newServiceDB(t))

	codes, err := svc.IssueKeys(context.Background(), 7, 5)
	if err != nil {
		t.Fatalf("IssueKeys: %v", err)
	}
	if len(codes) != 5 {
		t.Fatalf("issued %d codes; want 5", len(codes))
	}
	seen := map[string]struct{}{}
	for _, c := range codes {
		if !strings.HasPrefix(c, "KEY-") || len(c) != len("KEY-")+6 {
			t.Fatalf("unexpected code format: %q", c)
		}
		if _, dup := seen[c]; dup {
			t.Fatalf("duplicate code issued: %q", c)
		}
		seen[c] = struct{}{}
	}
}

func TestIssueKeys_CollisionsShortenYieldWithoutError(t *testing.T) {
	svc := NewEntitlementService(newServiceDB(t))
	// One-digit codes give 9 possible values; asking for 40 forces collisions.
	svc.CodeDigits = 1

	codes, err := svc.IssueKeys(context.Background(), 1, 40)
	if err != nil {
		t.Fatalf("IssueKeys: %v", err)
	}
	if len(codes) == 0 || len(codes) > 9 {
		t.Fatalf("yield = %d; want between 1 and 9", len(codes))
	}
}

func TestIssueKeys_RejectsNonPositiveArgs(t *testing.T) {
	svc := NewEntitlementService(newServiceDB(t))
	for _, args := range [][2]int{{0, 5}, {7, 0}, {-1, 3}, {3, -1}} {
		if _, err := svc.IssueKeys(context.Background(), args[0], args[1]); !errors.Is(err, ErrInvalidIssueRequest) {
			t.Fatalf("IssueKeys(%d, %d) err = %v; want ErrInvalidIssueRequest", args[0], args[1], err)
		}
	}
}

func TestRedeem_GrantsEntitlementForKeyValidity(t *testing.T) {
	svc := NewEntitlementService(newServiceDB(t))
	ctx := context.Background()

	codes, err := svc.IssueKeys(ctx, 7, 3)
	if err != nil || len(codes) != 3 {
		t.Fatalf("IssueKeys: %v (%d codes)", err, len(codes))
	}

	granted, err := svc.Redeem(ctx, "42", codes[0])
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	wantExp := time.Now().UTC().Add(7 * 24 * time.Hour)
	if d := granted.Sub(wantExp); d < -time.Minute || d > time.Minute {
		t.Fatalf("granted = %v; want ~%v", granted, wantExp)
	}

	active, err := svc.HasActiveEntitlement(ctx, "42")
	if err != nil || !active {
		t.Fatalf("HasActiveEntitlement = %v, %v; want true", active, err)
	}
	exp, err := svc.GetExpiry(ctx, "42")
	if err != nil || exp == nil {
		t.Fatalf("GetExpiry = %v, %v", exp, err)
	}
	if !exp.Equal(granted) {
		t.Fatalf("GetExpiry = %v; want %v", exp, granted)
	}

	// Same code, different user: single-use.
	if _, err := svc.Redeem(ctx, "43", codes[0]); !errors.Is(err, ErrInvalidOrUsedKey) {
		t.Fatalf("second redeem err = %v; want ErrInvalidOrUsedKey", err)
	}
}

func TestRedeem_UnknownCode(t *testing.T) {
	svc := NewEntitlementService(newServiceDB(t))
	if _, err := svc.Redeem(context.Background(), "u1", "KEY-000000"); !errors.Is(err, ErrInvalidOrUsedKey) {
		t.Fatalf("err = %v; want ErrInvalidOrUsedKey", err)
	}
}

func TestHasActiveEntitlement_LazilyDeletesExpired(t *testing.T) {
	db := newServiceDB(t)
	svc := NewEntitlementService(db)
	ctx := context.Background()

	codes, err := svc.IssueKeys(ctx, 1, 1)
	if err != nil || len(codes) != 1 {
		t.Fatalf("IssueKeys: %v", err)
	}
	if _, err := svc.Redeem(ctx, "u1", codes[0]); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	// Jump the clock past the one-day validity.
	svc.Now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }

	active, err := svc.HasActiveEntitlement(ctx, "u1")
	if err != nil || active {
		t.Fatalf("HasActiveEntitlement = %v, %v; want false", active, err)
	}

	// The stale row is gone, not just ignored.
	if _, err := repo.GetEntitlement(ctx, db, "u1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("stale record err = %v; want ErrNotFound", err)
	}
}

func TestHasActiveEntitlement_NoRecord(t *testing.T) {
	svc := NewEntitlementService(newServiceDB(t))
	active, err := svc.HasActiveEntitlement(context.Background(), "ghost")
	if err != nil || active {
		t.Fatalf("HasActiveEntitlement = %v, %v; want false, nil", active, err)
	}
}

func TestListActive_OrderedByExpiryDescending(t *testing.T) {
	db := newServiceDB(t)
	svc := NewEntitlementService(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.UpsertEntitlement(ctx, db, "short", now.Add(24*time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.UpsertEntitlement(ctx, db, "long", now.Add(72*time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.UpsertEntitlement(ctx, db, "gone", now.Add(-time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := svc.ListActive(ctx, 10)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 2 || got[0].UserID != "long" || got[1].UserID != "short" {
		t.Fatalf("ListActive = %+v; want [long short]", got)
	}
}

func TestListUsersWithEntitlementAfter(t *testing.T) {
	db := newServiceDB(t)
	svc := NewEntitlementService(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.UpsertEntitlement(ctx, db, "in", now.Add(time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.UpsertEntitlement(ctx, db, "out", now.Add(-time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ids, err := svc.ListUsersWithEntitlementAfter(ctx, now)
	if err != nil {
		t.Fatalf("ListUsersWithEntitlementAfter: %v", err)
	}
	if len(ids) != 1 || ids[0] != "in" {
		t.Fatalf("ids = %v; want [in]", ids)
	}
}
