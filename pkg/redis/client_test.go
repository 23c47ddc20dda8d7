package redis

import (
	"context"
	"testing"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/pkg/config"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	values map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) Ping(ctx context.Context) *redislib.StatusCmd {
	cmd := redislib.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, _ time.Duration) *redislib.StatusCmd {
	f.values[key] = value.(string)
	cmd := redislib.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeStore) Get(ctx context.Context, key string) *redislib.StringCmd {
	cmd := redislib.NewStringCmd(ctx)
	if v, ok := f.values[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redislib.Nil)
	}
	return cmd
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redislib.BoolCmd {
	cmd := redislib.NewBoolCmd(ctx)
	if _, ok := f.values[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	f.values[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeStore) Exists(ctx context.Context, keys ...string) *redislib.IntCmd {
	cmd := redislib.NewIntCmd(ctx)
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) *redislib.IntCmd {
	cmd := redislib.NewIntCmd(ctx)
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestKeyNamespacing(t *testing.T) {
	c := &Client{store: newFakeStore()}

	assert.Equal(t, "bf:idempotency:cards:abc", c.IdempotencyKey("cards", "abc"))
	assert.Equal(t, "bf:session:access:xyz", c.AccessSessionKey("xyz"))
	assert.Equal(t, "bf:lock:cron-worker", c.LockKey("cron-worker"))
}

func TestHasSession(t *testing.T) {
	store := newFakeStore()
	c := &Client{store: store}
	ctx := context.Background()

	ok, err := c.HasSession(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, c.AccessSessionKey("abc"), "1", 0))
	ok, err = c.HasSession(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasSession(ctx, "   ")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetNXOnlyFirstWins(t *testing.T) {
	c := &Client{store: newFakeStore()}
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "k", "v1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "k", "v2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
}

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)
}
