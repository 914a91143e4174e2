package cache

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	errs "github.com/deno-plc/build/pkg/errors"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, hit, err := c.Get(ctx, "key"); hit || err != nil {
		t.Errorf("Get = %v, %v; want miss", hit, err)
	}
	if ok, err := Clear(ctx, c); ok || err != nil {
		t.Errorf("Clear = %v, %v; null cache cannot clear", ok, err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatal(err)
	}

	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Fatal("empty cache hit")
	}
	if err := c.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "k", []byte("v2"), 0); err != nil {
		t.Fatal(err)
	}
	data, hit, err := c.Get(ctx, "k")
	if err != nil || !hit || string(data) != "v2" {
		t.Errorf("Get = %q, %v, %v", data, hit, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("hit after Delete")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry returned")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed")
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	_ = c.Set(ctx, "k", []byte("v"), 0)

	if err := os.WriteFile(c.path("k"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("corrupt entry = %v, %v; want silent miss", hit, err)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, _ := NewFileCache(dir)
	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}

	ok, err := Clear(ctx, c)
	if !ok || err != nil {
		t.Fatalf("Clear = %v, %v", ok, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("%d entries left after Clear", len(entries))
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache dir removed: %v", err)
	}
}

// memCache records keys for scope tests.
type memCache struct {
	data    map[string][]byte
	cleared []string
}

func (m *memCache) Get(_ context.Context, k string) ([]byte, bool, error) {
	v, ok := m.data[k]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, k string, v []byte, _ time.Duration) error {
	m.data[k] = v
	return nil
}

func (m *memCache) Delete(_ context.Context, k string) error {
	delete(m.data, k)
	return nil
}

func (m *memCache) ClearPrefix(_ context.Context, p string) error {
	m.cleared = append(m.cleared, p)
	return nil
}

func (m *memCache) Close() error { return nil }

func TestScoped(t *testing.T) {
	ctx := context.Background()
	inner := &memCache{data: map[string][]byte{}}

	if Scoped(inner, "") != Cache(inner) {
		t.Error("empty prefix should return the inner cache")
	}

	c := Scoped(Scoped(inner, "a:"), "b:")
	if p := c.(*ScopedCache).Prefix(); p != "a:b:" {
		t.Errorf("nested prefix = %q", p)
	}

	_ = c.Set(ctx, "transform:x", []byte("1"), 0)
	if _, ok := inner.data["a:b:transform:x"]; !ok {
		t.Errorf("inner keys = %v", inner.data)
	}
	if v, hit, _ := c.Get(ctx, "transform:x"); !hit || string(v) != "1" {
		t.Error("scoped Get missed")
	}

	if _, err := Clear(ctx, c); err != nil {
		t.Fatal(err)
	}
	if len(inner.cleared) != 1 || inner.cleared[0] != "a:b:" {
		t.Errorf("cleared = %v", inner.cleared)
	}
}

func TestTransformKey(t *testing.T) {
	src := []byte("export const a = 1;")
	base := TransformKey("file:///app/a.ts", false, src, "graph-1")

	if KeyType(base) != "transform" {
		t.Errorf("KeyType(%q) = %q", base, KeyType(base))
	}
	if len(base) != len("transform:")+64 {
		t.Errorf("key length = %d", len(base))
	}
	if base != TransformKey("file:///app/a.ts", false, src, "graph-1") {
		t.Error("key should be deterministic")
	}

	for name, other := range map[string]string{
		"hmr":       TransformKey("file:///app/a.ts", true, src, "graph-1"),
		"specifier": TransformKey("file:///app/b.ts", false, src, "graph-1"),
		"source":    TransformKey("file:///app/a.ts", false, []byte("export const a = 2;"), "graph-1"),
		"inputs":    TransformKey("file:///app/a.ts", false, src, "graph-2"),
	} {
		if other == base {
			t.Errorf("changing %s should change the key", name)
		}
	}
}

func TestHash(t *testing.T) {
	if Hash([]byte("hello")) != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if Hash([]byte("hello")) == Hash([]byte("world")) {
		t.Error("different inputs should hash differently")
	}
	if n := len(Hash(nil)); n != 64 {
		t.Errorf("Hash length = %d", n)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	retryDelay = time.Millisecond
	t.Cleanup(func() { retryDelay = 100 * time.Millisecond })
	ctx := context.Background()
	permanent := errors.New("permanent")

	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "success", wantCalls: 1},
		{name: "permanent", failures: 5, err: permanent, wantCalls: 1, wantErr: true},
		{name: "recovers", failures: 2, err: Retryable(permanent), wantCalls: 3},
		{name: "exhausted", failures: 5, err: Retryable(permanent), wantCalls: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoff(ctx, func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if calls != tt.wantCalls || (err != nil) != tt.wantErr {
				t.Errorf("calls = %d, err = %v", calls, err)
			}
		})
	}
}

func TestRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryWithBackoff(ctx, func() error { return Retryable(errors.New("down")) })
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestClassify(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Err: errors.New("refused")}
	if !IsRetryable(classify(netErr)) {
		t.Error("network errors should be retryable")
	}
	if IsRetryable(classify(errors.New("WRONGTYPE"))) {
		t.Error("server errors should not be retryable")
	}
	if classify(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestNewRedisCacheBadURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "http://not-redis")
	if !errs.Is(err, errs.ErrCodeInvalidConfig) {
		t.Errorf("err = %v, want INVALID_CONFIG", err)
	}
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("PLCBUILD_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PLCBUILD_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	rc, err := NewRedisCache(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	c := Scoped(rc, "plcbuild-test:")
	if err := c.Set(ctx, "transform:k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, hit, err := c.Get(ctx, "transform:k"); err != nil || !hit || string(v) != "v" {
		t.Errorf("Get = %q, %v, %v", v, hit, err)
	}
	if _, err := Clear(ctx, c); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "transform:k"); hit {
		t.Error("hit after Clear")
	}
}
