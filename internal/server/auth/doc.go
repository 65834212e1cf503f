// Package auth implements stateless session-token authentication: opaque
// AEAD-sealed bearer tokens that are issued, validated, renewed and revoked
// without server-side session storage. The only persisted state is one
// refresh-token row per login session, used for revocation and rotation.
//
// A bearer token carries (user id, refresh token id, issued at) encrypted
// with AES-256-GCM under a random nonce, base62-encoded for cookies. While
// the token is younger than the configured token lifetime it is accepted
// with no database access. Once expired, its nonce is checked against the
// bcrypt hash stored on the refresh-token row; a match rotates the row
// (new hash, new issued_at) and transparently re-issues the token, a
// mismatch means the lineage was renewed or revoked elsewhere and the
// caller is treated as logged out.
package auth
