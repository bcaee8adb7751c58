package cache

import (
	"context"
	"time"
)

type noopCache struct{}

// NewNoop возвращает кэш-заглушку: каждый Get — промах. Используется,
// когда Redis не сконфигурирован.
func NewNoop() Cache {
	return noopCache{}
}

func (noopCache) Get(context.Context, string) (string, error)            { return "", ErrCacheMiss }
func (noopCache) Set(context.Context, string, string, time.Duration) error { return nil }
func (noopCache) DeletePrefix(context.Context, string) error             { return nil }
