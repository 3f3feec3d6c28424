package contract

import (
	"context"
	"errors"
)

// ErrTokenNotFound is returned by Get when nothing is stored under the key.
var ErrTokenNotFound = errors.New("token not found")

// ITokenRepository is the durable key/value storage holding the bearer token
type ITokenRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key string, token string) error
	Delete(ctx context.Context, key string) error
}
