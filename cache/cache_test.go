package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/payxero/payxero/model"
)

func newTestCache(t *testing.T) *RedisCache {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	t.Cleanup(mr.Close)
	return NewCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	locks := model.LockDates{PeriodLock: "2024-06-30", EOYLock: "2024-12-31", MaxLock: "2024-12-31"}
	assert.NoError(t, c.Set(ctx, "payxero:xero:lock:tenant-1", locks, 12*time.Hour))

	var cached model.LockDates
	hit, err := c.Get(ctx, "payxero:xero:lock:tenant-1", &cached)
	assert.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, locks, cached)
}

func TestCacheMissIsNotAnError(t *testing.T) {
	c := newTestCache(t)

	var cached model.LockDates
	hit, err := c.Get(context.Background(), "payxero:xero:lock:absent", &cached)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	assert.NoError(t, c.Set(ctx, "key", "value", time.Hour))
	assert.NoError(t, c.Delete(ctx, "key"))

	var out string
	hit, err := c.Get(ctx, "key", &out)
	assert.NoError(t, err)
	assert.False(t, hit)
}
