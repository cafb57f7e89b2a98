// Package remote 通过 HTTP(S) GET 获取远程文档，并按资源标识缓存。
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mdxbuild/internal/cache"
	"mdxbuild/internal/rate"
	"mdxbuild/pkg/contract"
)

// Options: 最小必需配置。
type Options struct {
	TimeoutSeconds int               `json:"timeout_seconds"` // 可选 client 级超时（秒）
	UserAgent      string            `json:"user_agent"`
	ExtraHeaders   map[string]string `json:"extra_headers"`  // 追加/覆盖请求头
	MaxBodyBytes   int64             `json:"max_body_bytes"` // 响应体上限；<=0 使用默认 32 MiB
	// 按主机限流：每分钟请求数（0 不限）与突发容量；HostRPM 按主机覆盖。
	RequestsPerMinute int            `json:"requests_per_minute,omitempty"`
	Burst             int            `json:"burst,omitempty"`
	HostRPM           map[string]int `json:"host_requests_per_minute,omitempty"`
}

const (
	defaultTimeout  = 60
	defaultMaxBody  = 32 << 20
	defaultAgent    = "mdxbuild"
	errorBodyPrefix = 4 << 10
)

func (o *Options) defaults() {
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = defaultTimeout
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBody
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultAgent
	}
}

// Fetcher 实现 contract.Fetcher。
type Fetcher struct {
	hc      *http.Client
	cache   *cache.Cache
	agent   string
	extraH  map[string]string
	maxBody int64
	gate    *rate.Gate
	do      func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造；c 为 nil 时使用私有缓存。
func New(raw json.RawMessage, c *cache.Cache) (*Fetcher, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("remote fetcher options: %w", err)
		}
	}
	opts.defaults()
	if c == nil {
		c = cache.New()
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	f := &Fetcher{
		hc:      hc,
		cache:   c,
		agent:   opts.UserAgent,
		extraH:  opts.ExtraHeaders,
		maxBody: opts.MaxBodyBytes,
		do:      hc.Do,
	}
	if opts.RequestsPerMinute > 0 || len(opts.HostRPM) > 0 {
		per := make(map[string]rate.Limits, len(opts.HostRPM))
		for h, rpm := range opts.HostRPM {
			per[h] = rate.Limits{RPM: rpm, Burst: opts.Burst}
		}
		f.gate = rate.NewGate(rate.Limits{RPM: opts.RequestsPerMinute, Burst: opts.Burst}, per, nil)
	}
	return f, nil
}

// Cache 返回底层缓存（只读用途，例如统计条目数）。
func (f *Fetcher) Cache() *cache.Cache { return f.cache }

// FetchError: 非 2xx 响应。实现 net.Error 以便按网络类归类。
type FetchError struct {
	URL     string
	Status  int
	Message string
}

func (e *FetchError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.Status, e.Message)
}
func (e *FetchError) Unwrap() error   { return contract.ErrFetchFailed }
func (e *FetchError) Timeout() bool   { return e.Status == http.StatusRequestTimeout }
func (e *FetchError) Temporary() bool { return e.Status/100 == 5 }

// Fetch 返回 id 对应的原始内容；同一 id 在实例生命周期内至多请求一次。
// 键为原始标识（含 query/hash）。失败不缓存，也不重试。
func (f *Fetcher) Fetch(ctx context.Context, id string) ([]byte, error) {
	body, _, err := f.cache.Do(ctx, id, func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, id)
	})
	return body, err
}

func (f *Fetcher) get(ctx context.Context, id string) ([]byte, error) {
	if f.gate != nil {
		host, err := rate.HostKey(id)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w: %w", id, contract.ErrFetchFailed, err)
		}
		if err := f.gate.Wait(ctx, host); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, id, nil)
	if err != nil {
		return nil, fmt.Errorf("new request %s: %v: %w", id, err, contract.ErrFetchFailed)
	}
	req.Header.Set("User-Agent", f.agent)
	for k, v := range f.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := f.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return nil, fmt.Errorf("fetch %s: %w: %w", id, contract.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// 读取少量响应体辅助定位
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyPrefix))
		return nil, &FetchError{URL: id, Status: resp.StatusCode, Message: strings.TrimSpace(string(slurp))}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", id, contract.ErrFetchFailed, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes: %w", id, f.maxBody, contract.ErrFetchFailed)
	}
	return body, nil
}
