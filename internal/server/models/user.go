// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account created through one of the platform login flows.
// The profile fields (name, avatar) come from the platform that first
// authenticated the user.
type User struct {
	ID        int64     `db:"id"`
	Username  string    `db:"username"`
	Name      string    `db:"name"`
	Avatar    string    `db:"avatar"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// UserIdentity links a user to an external identity provider account.
// Provider is a short label ("dingtalk", "wechat"), OpenID the stable
// per-provider account id. Data carries the raw provider profile, if kept.
type UserIdentity struct {
	UserID   int64  `db:"user_id"`
	Provider string `db:"provider"`
	OpenID   string `db:"open_id"`
	Data     string `db:"data"`
}
