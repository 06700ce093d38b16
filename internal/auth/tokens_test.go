package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m, err := NewManager("test-secret", time.Minute, time.Hour, rdb)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, mr
}

func TestIssueAndVerifyPair(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	access, refresh, err := m.IssuePair(42)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if uid, err := m.VerifyAccess(ctx, access); err != nil || uid != 42 {
		t.Fatalf("VerifyAccess = (%d, %v), want (42, nil)", uid, err)
	}
	if uid, err := m.VerifyRefresh(ctx, refresh); err != nil || uid != 42 {
		t.Fatalf("VerifyRefresh = (%d, %v), want (42, nil)", uid, err)
	}
}

func TestTokenTypesDoNotCross(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	access, refresh, err := m.IssuePair(7)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := m.VerifyAccess(ctx, refresh); err == nil {
		t.Fatalf("refresh token accepted as access token")
	}
	if _, err := m.VerifyRefresh(ctx, access); err == nil {
		t.Fatalf("access token accepted as refresh token")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.VerifyAccess(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRevokedRefreshRejected(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, refresh, err := m.IssuePair(9)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if err := m.Revoke(ctx, refresh); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := m.VerifyRefresh(ctx, refresh); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
	// revoking twice is fine
	if err := m.Revoke(ctx, refresh); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
}

func TestVerifyWithoutRedisFailsOpen(t *testing.T) {
	m, err := NewManager("secret", time.Minute, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	access, _, err := m.IssuePair(3)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if uid, err := m.VerifyAccess(context.Background(), access); err != nil || uid != 3 {
		t.Fatalf("VerifyAccess without redis = (%d, %v)", uid, err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifySecret(hash, "correct horse battery"); err != nil {
		t.Fatalf("VerifySecret: %v", err)
	}
	if err := VerifySecret(hash, "wrong"); err == nil {
		t.Fatalf("wrong password accepted")
	}
	if _, err := HashPassword("short"); err == nil {
		t.Fatalf("short password accepted")
	}
}
