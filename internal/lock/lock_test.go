package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func TestLockAndUnlock(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	locker := ForPayout(client, "po_123")
	assert.NoError(t, locker.Lock(ctx, time.Minute))
	assert.NoError(t, locker.Unlock(ctx))

	// Released lock can be taken again.
	assert.NoError(t, locker.Lock(ctx, time.Minute))
}

func TestLockIsExclusivePerPayout(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	first := ForPayout(client, "po_123")
	assert.NoError(t, first.Lock(ctx, time.Minute))

	second := ForPayout(client, "po_123")
	assert.Error(t, second.Lock(ctx, time.Minute))

	// A different payout id is unaffected.
	other := ForPayout(client, "po_456")
	assert.NoError(t, other.Lock(ctx, time.Minute))
}

func TestUnlockRequiresHolder(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "payxero:deliver:po_123", "holder")
	assert.NoError(t, holder.Lock(ctx, time.Minute))

	intruder := NewLocker(client, "payxero:deliver:po_123", "intruder")
	assert.Error(t, intruder.Unlock(ctx))

	assert.NoError(t, holder.Unlock(ctx))
}
