package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/stockledger/pkg/config"
)

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.LockKey("inventory-threshold-sync"); got != "sl:lock:inventory-threshold-sync" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.Key("cache", "", "inventory:abc"); got != "sl:cache:inventory:abc" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestSetNXAndDel(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	ok, err := client.SetNX(ctx, "sl:lock:job", "owner-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win, got %v %v", ok, err)
	}
	ok, err = client.SetNX(ctx, "sl:lock:job", "owner-2", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second setnx to lose, got %v %v", ok, err)
	}
	if v := mock.data["sl:lock:job"]; v != "owner-1" {
		t.Fatalf("unexpected owner %q", v)
	}
	if err := client.Del(ctx, "sl:lock:job"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, exists := mock.data["sl:lock:job"]; exists {
		t.Fatalf("expected key gone after delete")
	}
}

func TestCompareAndDeleteAndExpire(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	mock.data["sl:lock:cron"] = "owner-1"
	client := &Client{store: mock}

	ok, err := client.CompareAndExpire(ctx, "sl:lock:cron", "owner-2", time.Minute)
	if err != nil || ok {
		t.Fatalf("foreign owner must not extend, got %v %v", ok, err)
	}
	ok, err = client.CompareAndExpire(ctx, "sl:lock:cron", "owner-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected extend, got %v %v", ok, err)
	}
	if len(mock.expiries) != 1 || mock.expiries[0] != "60000" {
		t.Fatalf("expected ttl in milliseconds, got %v", mock.expiries)
	}

	ok, err = client.CompareAndDelete(ctx, "sl:lock:cron", "owner-2")
	if err != nil || ok {
		t.Fatalf("foreign owner must not delete, got %v %v", ok, err)
	}
	ok, err = client.CompareAndDelete(ctx, "sl:lock:cron", "owner-1")
	if err != nil || !ok {
		t.Fatalf("expected delete, got %v %v", ok, err)
	}
	if _, exists := mock.data["sl:lock:cron"]; exists {
		t.Fatalf("lock key should be gone")
	}
}

func TestScanKeysFollowsCursor(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	for i := 0; i < 7; i++ {
		mock.data[fmt.Sprintf("sl:cache:inventory:p%d", i)] = "x"
	}
	mock.data["sl:cache:orders:1"] = "x"
	client := &Client{store: mock}

	keys, err := client.ScanKeys(ctx, "sl:cache:inventory:*", 3)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 7 {
		t.Fatalf("expected 7 keys, got %d (%v)", len(keys), keys)
	}
	if mock.scanCalls < 3 {
		t.Fatalf("expected paginated scan, got %d calls", mock.scanCalls)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if _, err := client.ScanKeys(context.Background(), "*", 10); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6380/2", PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	data      map[string]string
	scanCalls int
	scanErr   error
	delErr    error
	expiries  []string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if m.delErr != nil {
		return redis.NewIntResult(0, m.delErr)
	}
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval understands the two owner-checked scripts used by Client.
func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch script {
	case compareAndDeleteScript:
		delete(m.data, keys[0])
	case compareAndExpireScript:
		m.expiries = append(m.expiries, fmt.Sprint(args[1]))
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}

// Scan pages through sorted keys matching a trailing-star prefix pattern.
func (m *mockCmdable) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	m.scanCalls++
	if m.scanErr != nil {
		return redis.NewScanCmdResult(nil, 0, m.scanErr)
	}
	prefix := strings.TrimSuffix(match, "*")
	var matched []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)
	start := int(cursor)
	if start > len(matched) {
		start = len(matched)
	}
	end := start + int(count)
	if end >= len(matched) {
		return redis.NewScanCmdResult(matched[start:], 0, nil)
	}
	return redis.NewScanCmdResult(matched[start:end], uint64(end), nil)
}
