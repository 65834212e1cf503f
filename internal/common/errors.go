// Package common defines shared constants and sentinel errors used across
// the server layers of Workpass. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Auth errors (invalid, malformed or forged token).
	ErrInvalidToken = errors.New("invalid token")
)
