package cachestore

import (
	"context"
)

// Values are opaque strings (JSON, by convention). A miss is ("", nil).
type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
