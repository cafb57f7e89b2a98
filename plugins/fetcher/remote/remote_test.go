package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mdxbuild/internal/cache"
	"mdxbuild/pkg/contract"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// TestFetchCachesByIdentifier 同一标识两次获取只发起一次请求。
func TestFetchCachesByIdentifier(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("# remote " + r.URL.RawQuery))
	})
	f, err := New(nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	id := srv.URL + "/doc.md?x=1"
	for i := 0; i < 2; i++ {
		b, err := f.Fetch(context.Background(), id)
		if err != nil || string(b) != "# remote x=1" {
			t.Fatalf("fetch #%d: %q %v", i, b, err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("请求次数 = %d, 预期 1", n)
	}
	// query 不同视为不同标识
	if _, err := f.Fetch(context.Background(), srv.URL+"/doc.md?x=2"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("请求次数 = %d, 预期 2", n)
	}
	if f.Cache().Len() != 2 {
		t.Fatalf("缓存条目 = %d", f.Cache().Len())
	}
}

// TestFetchConcurrentSingleRequest 并发获取同一标识只请求一次。
func TestFetchConcurrentSingleRequest(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_, _ = w.Write([]byte("body"))
	})
	f, _ := New(nil, cache.New())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b, err := f.Fetch(context.Background(), srv.URL+"/a.mdx"); err != nil || string(b) != "body" {
				t.Errorf("fetch: %q %v", b, err)
			}
		}()
	}
	close(release)
	wg.Wait()
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("请求次数 = %d, 预期 1", n)
	}
}

// TestFetchNon2xx 非 2xx 返回 FetchError，且不缓存。
func TestFetchNon2xx(t *testing.T) {
	var hits int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "gone", http.StatusNotFound)
	})
	f, _ := New(nil, nil)
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/missing.md")
		var fe *FetchError
		if !errors.As(err, &fe) || fe.Status != http.StatusNotFound || fe.Message != "gone" {
			t.Fatalf("err = %v", err)
		}
		if !errors.Is(err, contract.ErrFetchFailed) {
			t.Fatalf("应包裹 ErrFetchFailed")
		}
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("失败不应缓存: hits = %d", n)
	}
	var ne net.Error = &FetchError{Status: 503}
	if !ne.Temporary() || ne.Timeout() {
		t.Fatalf("5xx 应为临时错误")
	}
}

// TestFetchOptions 请求头与体积上限生效。
func TestFetchOptions(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "docs-bot" || r.Header.Get("X-Token") != "t" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("0123456789"))
	})
	raw, _ := json.Marshal(Options{UserAgent: "docs-bot", ExtraHeaders: map[string]string{"X-Token": "t", "": "skip"}, MaxBodyBytes: 4})
	f, err := New(raw, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = f.Fetch(context.Background(), srv.URL+"/big.md")
	if !errors.Is(err, contract.ErrFetchFailed) {
		t.Fatalf("超限应失败: %v", err)
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		t.Fatalf("请求头未生效: %v", err)
	}
}

// TestFetchTransportError 传输错误包裹 ErrFetchFailed；取消返回 ctx 错误。
func TestFetchTransportError(t *testing.T) {
	f, _ := New(nil, nil)
	f.do = func(*http.Request) (*http.Response, error) { return nil, errors.New("dial refused") }
	if _, err := f.Fetch(context.Background(), "https://example.invalid/a.md"); !errors.Is(err, contract.ErrFetchFailed) {
		t.Fatalf("err = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.do = func(r *http.Request) (*http.Response, error) { return nil, r.Context().Err() }
	if _, err := f.Fetch(ctx, "https://example.invalid/b.md"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if _, err := New(json.RawMessage(`{`), nil); err == nil {
		t.Fatalf("非法选项应报错")
	}
}

// TestFetchRateLimited 按主机限流：突发额度用尽后等待补充；取消时返回 ctx 错误。
func TestFetchRateLimited(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	})
	raw, _ := json.Marshal(Options{RequestsPerMinute: 600, Burst: 1})
	f, err := New(raw, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	start := time.Now()
	for _, p := range []string{"/a.md", "/b.md", "/c.md"} {
		if _, err := f.Fetch(context.Background(), srv.URL+p); err != nil {
			t.Fatalf("fetch %s: %v", p, err)
		}
	}
	if d := time.Since(start); d < 150*time.Millisecond {
		t.Fatalf("限流未生效: %v", d)
	}

	raw, _ = json.Marshal(Options{HostRPM: map[string]int{"slow.example": 1}})
	f, _ = New(raw, nil)
	f.do = func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	}
	if _, err := f.Fetch(context.Background(), "https://slow.example/a.md"); err != nil {
		t.Fatalf("首个请求应通过: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Fetch(ctx, "https://slow.example/b.md"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	// 未配置的主机不限流
	if _, err := f.Fetch(context.Background(), "https://fast.example/b.md"); err != nil {
		t.Fatalf("fast host: %v", err)
	}
}
