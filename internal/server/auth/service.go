package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/workpass-app/workpass/internal/common"
	"github.com/workpass-app/workpass/internal/logging"
	"github.com/workpass-app/workpass/internal/server/models"
)

// UserStore is the narrow read-side view of the user repository the auth
// core needs.
type UserStore interface {
	Find(ctx context.Context, id int64) (*models.User, error)
}

// RefreshTokenStore persists one row per login session. Find and Renew must
// treat soft-deleted rows as common.ErrorNotFound. Renew atomically
// overwrites hash and issued_at in place and returns the new issued_at.
type RefreshTokenStore interface {
	Create(ctx context.Context, userID int64, device, hash string) (*models.UserToken, error)
	Find(ctx context.Context, id int64) (*models.UserToken, error)
	Renew(ctx context.Context, id int64, hash string) (time.Time, error)
	Revoke(ctx context.Context, id int64) error
}

// Service issues, validates, renews and revokes bearer tokens. It holds no
// per-request state; one Service is shared by all requests.
type Service struct {
	codec           *Codec
	users           UserStore
	tokens          RefreshTokenStore
	refreshLifetime time.Duration
	log             logging.Logger
}

// NewService builds the auth service. base64Key must decode to exactly
// KeyLength bytes; anything else is a configuration error and the server
// must not start.
func NewService(users UserStore, tokens RefreshTokenStore, base64Key string, tokenLifetime, refreshLifetime time.Duration, log logging.Logger) (*Service, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("cipher key is not valid base64: %w", err)
	}
	if len(raw) != KeyLength {
		return nil, fmt.Errorf("cipher key must be %d bytes after base64 decoding, got %d", KeyLength, len(raw))
	}

	var key [KeyLength]byte
	copy(key[:], raw)

	return &Service{
		codec:           NewCodec(key, tokenLifetime),
		users:           users,
		tokens:          tokens,
		refreshLifetime: refreshLifetime,
		log:             log,
	}, nil
}

// Identity resolves a raw bearer-token string into a request-scoped Identity.
//
// Anything wrong with the token itself (forged, corrupted, rotated away,
// revoked, too old) degrades to an anonymous Identity carrying a pending
// delete-token instruction. Only store failures return an error: they mean
// the server cannot tell whether the caller is logged in, which is a 5xx,
// not a logout.
func (s *Service) Identity(ctx context.Context, tokenStr string) (*Identity, error) {
	t, err := s.codec.Decode(tokenStr)
	if err != nil {
		return s.anonymous(), nil
	}

	// Fast path: an unexpired token is accepted without touching the store.
	if !s.codec.IsExpired(t) {
		return s.authenticated(t), nil
	}

	rec, err := s.tokens.Find(ctx, t.RefreshTokenID)
	if errors.Is(err, common.ErrorNotFound) {
		return s.anonymous(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh token lookup: %w", err)
	}

	if time.Since(rec.IssuedAt) > s.refreshLifetime {
		return s.anonymous(), nil
	}
	if !VerifyNonce(t.Nonce, rec.Hash) {
		// The lineage was renewed or revoked elsewhere; this nonce is stale.
		return s.anonymous(), nil
	}

	return s.renew(ctx, t)
}

// renew rotates the refresh-token row and re-issues the bearer token.
// Two requests can race here; the row update is last-write-wins and the
// loser's fresh token fails nonce verification on its next expired-path use.
func (s *Service) renew(ctx context.Context, t *Token) (*Identity, error) {
	nonce, hash, err := NoncePair()
	if err != nil {
		return nil, err
	}

	issuedAt, err := s.tokens.Renew(ctx, t.RefreshTokenID, hash)
	if errors.Is(err, common.ErrorNotFound) {
		return s.anonymous(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh token renew: %w", err)
	}

	token := &Token{
		Nonce:          nonce,
		UserID:         t.UserID,
		RefreshTokenID: t.RefreshTokenID,
		IssuedAt:       issuedAt.Unix(),
	}
	tokenStr, expires, err := s.codec.Encode(token)
	if err != nil {
		return nil, err
	}

	s.log.Debug(ctx, "bearer token renewed", "user_id", token.UserID, "refresh_token_id", token.RefreshTokenID)

	id := s.authenticated(token)
	id.response = &TokenResponse{Token: tokenStr, ExpiresAt: expires}
	return id, nil
}

func (s *Service) anonymous() *Identity {
	return &Identity{svc: s, response: &TokenResponse{Delete: true}}
}

func (s *Service) authenticated(t *Token) *Identity {
	return &Identity{svc: s, token: t}
}
