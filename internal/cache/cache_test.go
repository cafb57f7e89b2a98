package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// TestDoCachesOnce 同一标识两次获取只触发一次填充。
func TestDoCachesOnce(t *testing.T) {
	c := New()
	var calls int32
	fill := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("body"), nil
	}
	b, hit, err := c.Do(context.Background(), "https://x/doc.md", fill)
	if err != nil || hit || string(b) != "body" {
		t.Fatalf("first: %q %v %v", b, hit, err)
	}
	b, hit, err = c.Do(context.Background(), "https://x/doc.md", fill)
	if err != nil || !hit || string(b) != "body" {
		t.Fatalf("second: %q %v %v", b, hit, err)
	}
	if calls != 1 {
		t.Fatalf("fill 调用次数 = %d, want 1", calls)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
}

// TestDoConcurrent 并发请求同一标识仍只填充一次。
func TestDoConcurrent(t *testing.T) {
	c := New()
	var calls int32
	release := make(chan struct{})
	fill := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("x"), nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.Do(context.Background(), "k", fill); err != nil {
				t.Errorf("do: %v", err)
			}
		}()
	}
	close(release)
	wg.Wait()
	if calls != 1 {
		t.Fatalf("fill 调用次数 = %d, want 1", calls)
	}
}

// TestDoErrorNotCached 错误不缓存。
func TestDoErrorNotCached(t *testing.T) {
	c := New()
	boom := errors.New("boom")
	if _, _, err := c.Do(context.Background(), "k", func(context.Context) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatalf("错误结果不应缓存")
	}
	b, _, err := c.Do(context.Background(), "k", func(context.Context) ([]byte, error) { return []byte("ok"), nil })
	if err != nil || string(b) != "ok" {
		t.Fatalf("retry fill: %q %v", b, err)
	}
}

// TestPutKeepsFirst 已存在键不覆盖。
func TestPutKeepsFirst(t *testing.T) {
	c := New()
	c.Put("k", []byte("a"))
	c.Put("k", []byte("b"))
	if b, _ := c.Get("k"); string(b) != "a" {
		t.Fatalf("got %q", b)
	}
}
