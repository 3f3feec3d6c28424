package memory

import (
	"context"

	"smart-docqa-client/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type TokenRepository struct {
	cache *cache.Cache
}

// Ensure TokenRepository implements ITokenRepository
var _ contract.ITokenRepository = &TokenRepository{}

func NewTokenRepository() *TokenRepository {
	// Tokens never expire locally; the service decides when they stop working
	c := cache.New(cache.NoExpiration, 0)
	return &TokenRepository{
		cache: c,
	}
}

func (r *TokenRepository) Save(ctx context.Context, key string, token string) error {
	r.cache.Set(key, token, cache.NoExpiration)
	return nil
}

func (r *TokenRepository) Get(ctx context.Context, key string) (string, error) {
	if x, found := r.cache.Get(key); found {
		return x.(string), nil
	}
	return "", contract.ErrTokenNotFound
}

func (r *TokenRepository) Delete(ctx context.Context, key string) error {
	r.cache.Delete(key)
	return nil
}
