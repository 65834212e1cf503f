package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/workpass-app/workpass/internal/server/models"
)

// TokenResponse is the pending instruction for the transport layer: either
// set the client-held token to Token (a persistent cookie expiring no
// earlier than ExpiresAt) or delete it. A nil *TokenResponse means leave
// the client token untouched.
type TokenResponse struct {
	Delete    bool
	Token     string
	ExpiresAt time.Time
}

// Identity is the live, request-scoped authentication state produced by
// Service.Identity. One RWMutex guards token, user and response together so
// an Identity shared across concurrent sub-tasks of a request never exposes
// a partially updated view.
type Identity struct {
	svc *Service

	mu       sync.RWMutex
	token    *Token
	user     *models.User
	response *TokenResponse
}

// IsLogin reports whether a valid token is attached to this request.
func (id *Identity) IsLogin() bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.token != nil
}

// UserID returns the logged-in user's id, if any.
func (id *Identity) UserID() (int64, bool) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	if id.token == nil {
		return 0, false
	}
	return id.token.UserID, true
}

// User lazily fetches and memoizes the logged-in user. It returns nil when
// not logged in; a store failure is also reported as nil rather than an
// error, matching the login-state-only contract of this accessor.
func (id *Identity) User(ctx context.Context) *models.User {
	id.mu.RLock()
	user, token := id.user, id.token
	id.mu.RUnlock()

	if user != nil {
		return user
	}
	if token == nil {
		return nil
	}

	user, err := id.svc.users.Find(ctx, token.UserID)
	if err != nil {
		id.svc.log.Warn(ctx, "user lookup failed", "user_id", token.UserID, "error", err)
		return nil
	}

	id.mu.Lock()
	id.user = user
	id.mu.Unlock()
	return user
}

// Login opens a new session for user: it creates a fresh refresh-token row,
// issues a bearer token bound to it and schedules a set-token response.
// Every call creates a new parallel session (one per device); nothing is
// coalesced.
func (id *Identity) Login(ctx context.Context, user *models.User) error {
	nonce, hash, err := NoncePair()
	if err != nil {
		return err
	}

	// Device label is a passthrough; no client metadata is collected yet.
	rec, err := id.svc.tokens.Create(ctx, user.ID, "", hash)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}

	token := &Token{
		Nonce:          nonce,
		UserID:         user.ID,
		RefreshTokenID: rec.ID,
		IssuedAt:       rec.IssuedAt.Unix(),
	}
	tokenStr, expires, err := id.svc.codec.Encode(token)
	if err != nil {
		return err
	}

	id.mu.Lock()
	id.token = token
	id.user = user
	id.response = &TokenResponse{Token: tokenStr, ExpiresAt: expires}
	id.mu.Unlock()

	id.svc.log.Info(ctx, "user logged in", "user_id", user.ID, "refresh_token_id", rec.ID)
	return nil
}

// Logout revokes the session's refresh-token row, clears the in-memory
// state and schedules a delete-token response. Calling it while already
// logged out is a no-op apart from the delete instruction.
func (id *Identity) Logout(ctx context.Context) error {
	id.mu.RLock()
	token := id.token
	id.mu.RUnlock()

	if token != nil {
		if err := id.svc.tokens.Revoke(ctx, token.RefreshTokenID); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		id.svc.log.Info(ctx, "user logged out", "user_id", token.UserID, "refresh_token_id", token.RefreshTokenID)
	}

	id.mu.Lock()
	id.token = nil
	id.user = nil
	id.response = &TokenResponse{Delete: true}
	id.mu.Unlock()
	return nil
}

// Response returns the pending instruction for the transport layer, or nil
// when the client token should be left alone.
func (id *Identity) Response() *TokenResponse {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.response
}
