package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), "redis://"+mr.Addr(), "test")
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func backends(t *testing.T) map[string]Cache {
	r, _ := newTestRedis(t)
	return map[string]Cache{
		"memory": NewMemory(),
		"redis":  r,
	}
}

func TestCacheGetSet(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("Get(missing) = ok %v, err %v; want miss", ok, err)
			}
			if err := c.Set(ctx, "companies:all", []byte(`[1,2]`), time.Minute); err != nil {
				t.Fatalf("Set: %v", err)
			}
			raw, ok, err := c.Get(ctx, "companies:all")
			if err != nil || !ok {
				t.Fatalf("Get after Set = ok %v, err %v", ok, err)
			}
			if string(raw) != `[1,2]` {
				t.Errorf("Get = %s, want [1,2]", raw)
			}
		})
	}
}

func TestCacheInvalidatePrefix(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_ = c.Set(ctx, "companies:all", []byte("a"), time.Minute)
			_ = c.Set(ctx, "companies:tech", []byte("b"), time.Minute)
			_ = c.Set(ctx, "stats", []byte("c"), time.Minute)

			if err := c.InvalidatePrefix(ctx, "companies:"); err != nil {
				t.Fatalf("InvalidatePrefix: %v", err)
			}
			for _, k := range []string{"companies:all", "companies:tech"} {
				if _, ok, _ := c.Get(ctx, k); ok {
					t.Errorf("%s should be invalidated", k)
				}
			}
			if _, ok, _ := c.Get(ctx, "stats"); !ok {
				t.Error("stats should survive an unrelated prefix invalidation")
			}
		})
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_ = m.Set(ctx, "k", []byte("v"), time.Minute)
	now = now.Add(59 * time.Second)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatal("entry should be live before ttl")
	}
	now = now.Add(time.Second)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("entry should expire at ttl")
	}
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	_ = r.Set(ctx, "k", []byte("v"), time.Minute)
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := r.Get(ctx, "k"); ok {
		t.Error("entry should expire after ttl")
	}
}

func TestRemember(t *testing.T) {
	ctx := context.Background()

	t.Run("loads once and serves from cache", func(t *testing.T) {
		l := NewLoader(NewMemory())
		var calls atomic.Int32
		load := func() ([]string, error) {
			calls.Add(1)
			return []string{"EEP", "AIH"}, nil
		}
		for i := 0; i < 3; i++ {
			got, err := Remember(ctx, l, "companies:all", time.Minute, load)
			if err != nil {
				t.Fatalf("Remember: %v", err)
			}
			if len(got) != 2 || got[0] != "EEP" {
				t.Fatalf("Remember = %v", got)
			}
		}
		if calls.Load() != 1 {
			t.Errorf("load called %d times, want 1", calls.Load())
		}
	})

	t.Run("collapses concurrent misses", func(t *testing.T) {
		l := NewLoader(NewMemory())
		var calls atomic.Int32
		release := make(chan struct{})
		load := func() (int, error) {
			calls.Add(1)
			<-release
			return 42, nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if v, err := Remember(ctx, l, "answer", time.Minute, load); err != nil || v != 42 {
					t.Errorf("Remember = %d, %v", v, err)
				}
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		if calls.Load() != 1 {
			t.Errorf("load called %d times, want 1", calls.Load())
		}
	})

	t.Run("does not cache load errors", func(t *testing.T) {
		l := NewLoader(NewMemory())
		boom := errors.New("boom")
		if _, err := Remember(ctx, l, "k", time.Minute, func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Fatalf("expected load error, got %v", err)
		}
		v, err := Remember(ctx, l, "k", time.Minute, func() (int, error) { return 7, nil })
		if err != nil || v != 7 {
			t.Errorf("Remember after failure = %d, %v; want 7", v, err)
		}
	})

	t.Run("falls back to load and logs when the backend is down", func(t *testing.T) {
		r, mr := newTestRedis(t)
		mr.Close()
		core, logs := observer.New(zapcore.WarnLevel)
		l := NewLoader(r)
		l.log = zap.New(core).Sugar()

		v, err := Remember(ctx, l, "k", time.Minute, func() (int, error) { return 3, nil })
		if err != nil || v != 3 {
			t.Fatalf("Remember = %d, %v; want 3", v, err)
		}
		if n := logs.FilterMessage("cache read failed").Len(); n != 1 {
			t.Errorf("expected 1 read warning, got %d", n)
		}
		if n := logs.FilterMessage("cache write failed").Len(); n != 1 {
			t.Errorf("expected 1 write warning, got %d", n)
		}
	})
}
