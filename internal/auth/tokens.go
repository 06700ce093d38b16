// Package auth issues and verifies the JWT credentials used by both the
// REST surface and the realtime transport. Logout revokes the refresh
// token by parking its jti in redis until the token would expire anyway.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"gomoku-server/internal/obslog"
	"go.uber.org/zap"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"

	revokedKeyPrefix = "auth:revoked:"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token has been revoked")
)

// Claims carries the user identity plus the token class so a refresh
// token can never pass as an access token.
type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens with a shared HMAC secret. rdb may be
// nil, in which case revocation checks are skipped (fail-open, matching
// the transport's behaviour when redis is down).
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	rdb        *redis.Client
}

func NewManager(secret string, accessTTL, refreshTTL time.Duration, rdb *redis.Client) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		rdb:        rdb,
	}, nil
}

// IssuePair returns a fresh access/refresh token pair for the user.
func (m *Manager) IssuePair(userID int64) (access, refresh string, err error) {
	if access, err = m.issue(userID, typeAccess, m.accessTTL); err != nil {
		return "", "", err
	}
	if refresh, err = m.issue(userID, typeRefresh, m.refreshTTL); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (m *Manager) issue(userID int64, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// VerifyAccess validates an access token and returns the user id.
func (m *Manager) VerifyAccess(ctx context.Context, token string) (int64, error) {
	return m.verify(ctx, token, typeAccess)
}

// VerifyRefresh validates a refresh token and returns the user id.
func (m *Manager) VerifyRefresh(ctx context.Context, token string) (int64, error) {
	return m.verify(ctx, token, typeRefresh)
}

func (m *Manager) verify(ctx context.Context, token, wantType string) (int64, error) {
	claims, err := m.parse(token)
	if err != nil {
		return 0, err
	}
	if claims.TokenType != wantType {
		return 0, fmt.Errorf("%w: wrong token type", ErrInvalidToken)
	}
	revoked, err := m.isRevoked(ctx, claims.ID)
	if err != nil {
		// Do not lock every user out because redis is unreachable.
		obslog.L().Error("auth_revocation_check_failed", zap.Error(err))
	}
	if revoked {
		return 0, ErrRevoked
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return uid, nil
}

func (m *Manager) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revoke blacklists a refresh token until its natural expiry. Revoking an
// already-invalid token is an error; revoking twice is not.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := m.parse(refreshToken)
	if err != nil {
		return err
	}
	if claims.TokenType != typeRefresh {
		return fmt.Errorf("%w: only refresh tokens are revocable", ErrInvalidToken)
	}
	if m.rdb == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return m.rdb.Set(ctx, revokedKeyPrefix+claims.ID, "1", ttl).Err()
}

func (m *Manager) isRevoked(ctx context.Context, jti string) (bool, error) {
	if m.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := m.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}
