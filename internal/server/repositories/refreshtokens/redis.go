package refreshtokens

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/workpass-app/workpass/internal/common"
	"github.com/workpass-app/workpass/internal/server/models"
)

const (
	redisSeqKey    = "user_tokens:seq"
	redisKeyPrefix = "user_tokens:"
)

// RedisRepository keeps refresh-token rows in redis hashes, one hash per
// row, with ids allocated from a counter key. It is an alternative backend
// for deployments that want token rotation off the relational database.
//
// When ttl is positive each row expires ttl after its last create/renew,
// which matches the refresh-token lifetime check done by the auth service.
type RedisRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisRepository constructs a repository on the given client.
func NewRedisRepository(rdb *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{rdb: rdb, ttl: ttl}
}

func redisKey(id int64) string {
	return redisKeyPrefix + strconv.FormatInt(id, 10)
}

func (r *RedisRepository) Create(ctx context.Context, userID int64, device, hash string) (*models.UserToken, error) {
	id, err := r.rdb.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	rec := &models.UserToken{
		ID:       id,
		UserID:   userID,
		Device:   device,
		Hash:     hash,
		IssuedAt: time.Now().UTC().Truncate(time.Second),
	}

	key := redisKey(id)
	fields := map[string]any{
		"user_id":   rec.UserID,
		"device":    rec.Device,
		"hash":      rec.Hash,
		"issued_at": rec.IssuedAt.Unix(),
	}
	if err := r.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if r.ttl > 0 {
		if err := r.rdb.Expire(ctx, key, r.ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis error: %w", err)
		}
	}
	return rec, nil
}

func (r *RedisRepository) Find(ctx context.Context, id int64) (*models.UserToken, error) {
	fields, err := r.rdb.HGetAll(ctx, redisKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return nil, common.ErrorNotFound
	}
	if _, revoked := fields["deleted_at"]; revoked {
		return nil, common.ErrorNotFound
	}

	userID, err := strconv.ParseInt(fields["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis error: bad user_id: %w", err)
	}
	issuedAt, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis error: bad issued_at: %w", err)
	}

	return &models.UserToken{
		ID:       id,
		UserID:   userID,
		Device:   fields["device"],
		Hash:     fields["hash"],
		IssuedAt: time.Unix(issuedAt, 0).UTC(),
	}, nil
}

func (r *RedisRepository) Renew(ctx context.Context, id int64, hash string) (time.Time, error) {
	// Existence is checked first; the subsequent update is last-write-wins,
	// same as the SQL backend.
	if _, err := r.Find(ctx, id); err != nil {
		return time.Time{}, err
	}

	key := redisKey(id)
	now := time.Now().UTC().Truncate(time.Second)
	err := r.rdb.HSet(ctx, key, map[string]any{
		"hash":      hash,
		"issued_at": now.Unix(),
	}).Err()
	if err != nil {
		return time.Time{}, fmt.Errorf("redis error: %w", err)
	}
	if r.ttl > 0 {
		if err := r.rdb.Expire(ctx, key, r.ttl).Err(); err != nil {
			return time.Time{}, fmt.Errorf("redis error: %w", err)
		}
	}
	return now, nil
}

func (r *RedisRepository) Revoke(ctx context.Context, id int64) error {
	key := redisKey(id)
	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if exists == 0 {
		return nil
	}
	if err := r.rdb.HSet(ctx, key, "deleted_at", time.Now().UTC().Unix()).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
