package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	require.NoError(t, client.Set(ctx, "storefront:cart:eat", `{"items":[]}`, 0))
	got, err := client.Get(ctx, "storefront:cart:eat")
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, got)

	require.NoError(t, client.Del(ctx, "storefront:cart:eat"))
	_, err = client.Get(ctx, "storefront:cart:eat")
	assert.ErrorIs(t, err, ErrNil)
}

func TestKeysFollowsScanCursor(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	mock.pageSize = 2
	client := &Client{store: mock}

	for _, key := range []string{"storefront:a", "storefront:b", "storefront:c", "other:d"} {
		require.NoError(t, client.Set(ctx, key, "1", 0))
	}

	keys, err := client.Keys(ctx, "storefront:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"storefront:a", "storefront:b", "storefront:c"}, keys)
	assert.Greater(t, mock.scanCalls, 1)
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, client.LockKey("retention"), "owner-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, client.LockKey("retention"), "owner-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelIfValueChecksOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("retention")
	require.NoError(t, client.Set(ctx, key, "owner-1", time.Minute))

	removed, err := client.DelIfValue(ctx, key, "owner-2")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Contains(t, mock.data, key)

	removed, err = client.DelIfValue(ctx, key, "owner-1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NotContains(t, mock.data, key)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sf:lock:retention", client.LockKey("retention"))
	assert.Equal(t, "sf", client.buildKey())
	assert.Equal(t, `a\*b`, escapePattern("a*b"))
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	_, err := client.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.NoError(t, client.Close())
}

type mockCmdable struct {
	data      map[string]string
	pageSize  int
	scanCalls int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string), pageSize: 100}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	m.scanCalls++
	prefix := strings.TrimSuffix(match, "*")
	var all []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			all = append(all, key)
		}
	}
	sort.Strings(all)
	start := int(cursor)
	end := start + m.pageSize
	if end >= len(all) {
		return redis.NewScanCmdResult(all[start:], 0, nil)
	}
	return redis.NewScanCmdResult(all[start:end], uint64(end), nil)
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if len(keys) != 1 || len(args) != 1 {
		cmd.SetErr(errors.New("unexpected eval arguments"))
		return cmd
	}
	if v, ok := m.data[keys[0]]; ok && v == fmt.Sprint(args[0]) {
		delete(m.data, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}
