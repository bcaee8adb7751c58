package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss возвращается Get, когда ключа нет или он истёк.
var ErrCacheMiss = errors.New("cache: key not found")

// Cache — best-effort read-through кэш лидербордов. Значения — готовый
// JSON; инвалидация по префиксу обязана выполняться при каждой мутации
// standings.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}
