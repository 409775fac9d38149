package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/guildmarket/pkg/config"
)

// memStore is an in-process stand-in for the commands Client issues.
type memStore struct {
	kv      map[string]string
	ttls    map[string]time.Duration
	counter map[string]int64
	expires []string
}

func newMemClient() (*Client, *memStore) {
	mem := &memStore{kv: map[string]string{}, ttls: map[string]time.Duration{}, counter: map[string]int64{}}
	return &Client{store: mem}, mem
}

func (m *memStore) Ping(context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", nil)
}

func (m *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) *goredis.StatusCmd {
	m.kv[key], m.ttls[key] = fmt.Sprint(value), ttl
	return goredis.NewStatusResult("OK", nil)
}

func (m *memStore) lookup(key string) *goredis.StringCmd {
	if v, ok := m.kv[key]; ok {
		return goredis.NewStringResult(v, nil)
	}
	return goredis.NewStringResult("", goredis.Nil)
}

func (m *memStore) Get(_ context.Context, key string) *goredis.StringCmd {
	return m.lookup(key)
}

func (m *memStore) GetDel(_ context.Context, key string) *goredis.StringCmd {
	cmd := m.lookup(key)
	delete(m.kv, key)
	return cmd
}

func (m *memStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd {
	if _, taken := m.kv[key]; taken {
		return goredis.NewBoolResult(false, nil)
	}
	m.kv[key], m.ttls[key] = fmt.Sprint(value), ttl
	return goredis.NewBoolResult(true, nil)
}

func (m *memStore) Incr(_ context.Context, key string) *goredis.IntCmd {
	m.counter[key]++
	return goredis.NewIntResult(m.counter[key], nil)
}

func (m *memStore) Expire(_ context.Context, key string, _ time.Duration) *goredis.BoolCmd {
	m.expires = append(m.expires, key)
	return goredis.NewBoolResult(true, nil)
}

func (m *memStore) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	for _, key := range keys {
		delete(m.kv, key)
	}
	return goredis.NewIntResult(int64(len(keys)), nil)
}

func (m *memStore) Eval(_ context.Context, _ string, keys []string, args ...any) *goredis.Cmd {
	if m.kv[keys[0]] != fmt.Sprint(args[0]) {
		return goredis.NewCmdResult(int64(0), nil)
	}
	delete(m.kv, keys[0])
	return goredis.NewCmdResult(int64(1), nil)
}

func TestFixedWindowAllow(t *testing.T) {
	client, mem := newMemClient()
	ctx := context.Background()

	want := []struct {
		allowed bool
		count   int64
	}{{true, 1}, {true, 2}, {false, 3}}
	for i, w := range want {
		allowed, count, err := client.FixedWindowAllow(ctx, "orders:place:u1", 2, time.Minute)
		if err != nil {
			t.Fatalf("hit %d: %v", i+1, err)
		}
		if allowed != w.allowed || count != w.count {
			t.Fatalf("hit %d: got allowed=%v count=%d, want %v %d", i+1, allowed, count, w.allowed, w.count)
		}
	}
	if len(mem.expires) != 1 || mem.expires[0] != "gm:rate_limit:orders:place:u1" {
		t.Fatalf("window must be armed once on the first hit, got %v", mem.expires)
	}
}

func TestGetDelConsumesValue(t *testing.T) {
	client, mem := newMemClient()
	ctx := context.Background()

	key := client.CapabilityKey("tok-1")
	if err := client.Set(ctx, key, `{"order_id":7}`, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if mem.ttls[key] != time.Hour {
		t.Fatalf("ttl not forwarded, got %v", mem.ttls[key])
	}
	value, err := client.GetDel(ctx, key)
	if err != nil || value != `{"order_id":7}` {
		t.Fatalf("first redeem: %q %v", value, err)
	}
	if _, err := client.GetDel(ctx, key); !IsNil(err) {
		t.Fatalf("second redeem must miss, got %v", err)
	}
}

func TestDelIfEquals(t *testing.T) {
	client, mem := newMemClient()
	ctx := context.Background()
	key := client.LockKey("cron-worker", "test")

	if ok, err := client.SetNX(ctx, key, "cron-0:a", time.Minute); err != nil || !ok {
		t.Fatalf("setnx: %v %v", ok, err)
	}
	if deleted, err := client.DelIfEquals(ctx, key, "cron-1:b"); err != nil || deleted {
		t.Fatalf("foreign token must not delete, got %v %v", deleted, err)
	}
	if deleted, err := client.DelIfEquals(ctx, key, "cron-0:a"); err != nil || !deleted {
		t.Fatalf("owner should delete, got %v %v", deleted, err)
	}
	if _, ok := mem.kv[key]; ok {
		t.Fatal("key should be gone")
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if _, err := client.GetDel(context.Background(), "k"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	var missing *Client
	if _, _, err := missing.FixedWindowAllow(context.Background(), "s", 1, time.Second); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("nil client should report ErrNotInitialized, got %v", err)
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without a connection should be a no-op, got %v", err)
	}
}

func TestKeyspace(t *testing.T) {
	var ks Keyspace
	cases := map[string]string{
		ks.CapabilityKey("abc"):           "gm:capability:abc",
		ks.RateLimitKey("order:42"):       "gm:rate_limit:order:42",
		ks.LockKey("cron-worker", "prod"): "gm:lock:cron-worker:prod",
		joinKey("a", "", " b "):           "gm:a:b",
		ks.LockKey("cron-worker", "  "):   "gm:lock:cron-worker",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3})
	if err != nil || opts.Addr != "cache:6379" || opts.DB != 3 {
		t.Fatalf("address config: %+v %v", opts, err)
	}

	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
}
