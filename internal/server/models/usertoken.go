package models

import "time"

// UserToken is the persisted refresh-token record behind one login session
// (one device). The row never stores the token secret itself, only a bcrypt
// hash of the nonce embedded in the bearer token.
//
// Renewal mutates Hash and IssuedAt in place, which is what invalidates all
// bearer tokens derived from the pre-renewal nonce. Logout soft-deletes the
// row by setting DeletedAt.
type UserToken struct {
	ID        int64      `db:"id"`
	UserID    int64      `db:"user_id"`
	Device    string     `db:"device"`
	Hash      string     `db:"hash"`
	IssuedAt  time.Time  `db:"issued_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}
