package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jxskiss/base62"
	"github.com/workpass-app/workpass/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// Key and nonce lengths for the AES-256-GCM token cipher.
const (
	KeyLength   = 32
	NonceLength = 12
)

// plaintextLength is user id + refresh token id + issued at, 8 bytes each,
// big-endian. Fixed width keeps the sealed token a constant size.
const plaintextLength = 24

// Token is the decrypted content of a bearer-token string. It is never
// persisted; only the bcrypt hash of Nonce is stored server-side, on the
// refresh-token row identified by RefreshTokenID.
type Token struct {
	Nonce          [NonceLength]byte
	UserID         int64
	RefreshTokenID int64
	IssuedAt       int64
}

// Codec seals tokens into URL- and cookie-safe strings and opens them back.
type Codec struct {
	key      [KeyLength]byte
	lifetime time.Duration
}

// NewCodec builds a Codec from a raw 32-byte AES-256 key and the bearer-token
// lifetime. The key length is a startup invariant checked by the caller.
func NewCodec(key [KeyLength]byte, lifetime time.Duration) *Codec {
	return &Codec{key: key, lifetime: lifetime}
}

// Encode serializes and encrypts t, returning the token string and an
// advisory expiry (issued at + token lifetime) for cookie attributes.
// The token's own nonce is used as the AEAD nonce, so the sealed output is
// base62(nonce || ciphertext+tag).
func (c *Codec) Encode(t *Token) (string, time.Time, error) {
	var buf [plaintextLength]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(t.UserID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(t.RefreshTokenID))
	binary.BigEndian.PutUint64(buf[16:24], uint64(t.IssuedAt))

	aead, err := c.aead()
	if err != nil {
		return "", time.Time{}, err
	}

	sealed := aead.Seal(t.Nonce[:], t.Nonce[:], buf[:], nil)
	expires := time.Unix(t.IssuedAt, 0).Add(c.lifetime)
	return base62.EncodeToString(sealed), expires, nil
}

// Decode reverses Encode. Every failure mode (bad text encoding, truncated
// data, AEAD authentication failure, wrong plaintext length) is reported as
// common.ErrInvalidToken: a token that does not open is simply not a login.
func (c *Codec) Decode(s string) (*Token, error) {
	data, err := base62.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base62: %v", common.ErrInvalidToken, err)
	}
	if len(data) < NonceLength {
		return nil, fmt.Errorf("%w: short data", common.ErrInvalidToken)
	}

	aead, err := c.aead()
	if err != nil {
		return nil, err
	}

	nonce, ciphertext := data[:NonceLength], data[NonceLength:]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt", common.ErrInvalidToken)
	}
	if len(plain) != plaintextLength {
		return nil, fmt.Errorf("%w: plaintext length %d", common.ErrInvalidToken, len(plain))
	}

	t := &Token{
		UserID:         int64(binary.BigEndian.Uint64(plain[0:8])),
		RefreshTokenID: int64(binary.BigEndian.Uint64(plain[8:16])),
		IssuedAt:       int64(binary.BigEndian.Uint64(plain[16:24])),
	}
	copy(t.Nonce[:], nonce)
	return t, nil
}

// IsExpired reports whether the bearer token is past its short lifetime.
// An expired token is not dead: the resolver re-validates it against the
// refresh-token store and may rotate it.
func (c *Codec) IsExpired(t *Token) bool {
	return time.Unix(t.IssuedAt, 0).Add(c.lifetime).Before(time.Now())
}

func (c *Codec) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// NoncePair draws a fresh random nonce and computes its bcrypt hash.
// The nonce travels inside the sealed token; the hash is persisted on the
// refresh-token row. bcrypt treats its input as a C string, so the nonce is
// re-drawn until it contains no zero byte.
func NoncePair() ([NonceLength]byte, string, error) {
	var nonce [NonceLength]byte
	for {
		if _, err := rand.Read(nonce[:]); err != nil {
			return nonce, "", fmt.Errorf("nonce: %w", err)
		}
		if !containsZeroByte(nonce[:]) {
			break
		}
	}

	hash, err := bcrypt.GenerateFromPassword(nonce[:], bcrypt.DefaultCost)
	if err != nil {
		return nonce, "", fmt.Errorf("nonce hash: %w", err)
	}
	return nonce, string(hash), nil
}

// VerifyNonce reports whether hash is the bcrypt hash of nonce.
func VerifyNonce(nonce [NonceLength]byte, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), nonce[:]) == nil
}

func containsZeroByte(b []byte) bool {
	for _, v := range b {
		if v == 0 {
			return true
		}
	}
	return false
}
