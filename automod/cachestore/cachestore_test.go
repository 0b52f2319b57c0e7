package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCacheStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(10, time.Minute)
	v, err := cs.Get(ctx, "ban", "1001")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Set(ctx, "ban", "1001", `{"ID":1001}`))
	v, err = cs.Get(ctx, "ban", "1001")
	assert.NoError(err)
	assert.Equal(`{"ID":1001}`, v)

	// names are separate namespaces
	v, _ = cs.Get(ctx, "chat", "1001")
	assert.Equal("", v)

	assert.NoError(cs.Purge(ctx, "ban", "1001"))
	assert.NoError(cs.Purge(ctx, "ban", "1001"))
	v, _ = cs.Get(ctx, "ban", "1001")
	assert.Equal("", v)
}

func TestMemCacheStoreExpiry(t *testing.T) {
	ctx := context.Background()
	cs := NewMemCacheStore(10, 10*time.Millisecond)
	assert.NoError(t, cs.Set(ctx, "ban", "1", "x"))
	assert.Eventually(t, func() bool {
		v, _ := cs.Get(ctx, "ban", "1")
		return v == ""
	}, time.Second, 5*time.Millisecond)
}
