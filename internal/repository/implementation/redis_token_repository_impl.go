package implementation

import (
	"context"
	"errors"
	"fmt"

	"smart-docqa-client/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "docqa:"

type redisTokenRepository struct {
	rdb *redis.Client
}

// NewRedisTokenRepository keeps the token in redis under "docqa:<key>", without TTL
func NewRedisTokenRepository(rdb *redis.Client) contract.ITokenRepository {
	return &redisTokenRepository{rdb: rdb}
}

func (r *redisTokenRepository) Get(ctx context.Context, key string) (string, error) {
	token, err := r.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", contract.ErrTokenNotFound
		}
		return "", fmt.Errorf("redis get token: %w", err)
	}
	return token, nil
}

func (r *redisTokenRepository) Save(ctx context.Context, key string, token string) error {
	if err := r.rdb.Set(ctx, redisKeyPrefix+key, token, 0).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

func (r *redisTokenRepository) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete token: %w", err)
	}
	return nil
}
