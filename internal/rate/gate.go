// Package rate 按主机对远程请求做令牌桶限流。
package rate

import (
	"context"
	"sync"
	"time"

	"mdxbuild/pkg/contract"
)

// Limits: 单个主机的限额。0 表示不限。
type Limits struct {
	RPM   int // requests per minute
	Burst int // 桶容量；<=0 时等于 RPM
}

// Gate: 限流闸门（并发安全）。未配置的主机使用默认限额。
type Gate struct {
	clk  func() time.Time
	def  Limits
	mu   sync.Mutex
	per  map[string]Limits
	host map[string]*bucket
}

// NewGate: def 为默认限额，per 为按主机覆盖；clk 为空则使用 time.Now。
func NewGate(def Limits, per map[string]Limits, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &Gate{clk: clk, def: def, per: make(map[string]Limits, len(per)), host: make(map[string]*bucket)}
	for h, lim := range per {
		g.per[normalizeHost(h)] = lim
	}
	return g
}

type bucket struct {
	mu    sync.Mutex
	cap   int
	level float64
	rate  float64
	last  time.Time
}

func newBucket(lim Limits, now time.Time) *bucket {
	if lim.RPM <= 0 {
		return &bucket{}
	}
	capacity := lim.Burst
	if capacity <= 0 {
		capacity = lim.RPM
	}
	return &bucket{cap: capacity, level: float64(capacity), rate: float64(lim.RPM) / 60.0, last: now}
}

func (b *bucket) enabled() bool { return b.cap > 0 }

func (b *bucket) refill(now time.Time) {
	if !b.enabled() || now.Before(b.last) {
		// 时钟回拨视为无时间流逝
		return
	}
	b.level += now.Sub(b.last).Seconds() * b.rate
	if b.level > float64(b.cap) {
		b.level = float64(b.cap)
	}
	b.last = now
}

// waitFor 返回凑够一个令牌还需等待的时长。
func (b *bucket) waitFor() time.Duration {
	deficit := 1 - b.level
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / b.rate * float64(time.Second))
}

func (g *Gate) get(host string) *bucket {
	host = normalizeHost(host)
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.host[host]
	if b == nil {
		lim, ok := g.per[host]
		if !ok {
			lim = g.def
		}
		b = newBucket(lim, g.clk())
		g.host[host] = b
	}
	return b
}

// Try: 非阻塞尝试；额度不足时返回 false。
func (g *Gate) Try(host string) bool {
	if g == nil {
		return true
	}
	b := g.get(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled() {
		return true
	}
	b.refill(g.clk())
	if b.level < 1 {
		return false
	}
	b.level--
	return true
}

// Wait: 阻塞直到 host 有额度或 ctx 取消。nil Gate 不限流。
func (g *Gate) Wait(ctx context.Context, host string) error {
	if g == nil {
		return nil
	}
	if host == "" {
		return contract.ErrInvalidInput
	}
	b := g.get(host)
	// 最小睡眠粒度，避免忙等
	const minSleep = 10 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b.mu.Lock()
		if !b.enabled() {
			b.mu.Unlock()
			return nil
		}
		b.refill(g.clk())
		if b.level >= 1 {
			b.level--
			b.mu.Unlock()
			return nil
		}
		d := b.waitFor() + minSleep
		b.mu.Unlock()
		if err := sleepCtx(ctx, d); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	// 分片为最多 200ms 的步长，及时响应取消
	const step = 200 * time.Millisecond
	for d > 0 {
		s := min(d, step)
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}

// Available 返回 host 当前可用请求数的向下取整估值（仅诊断）；不限流时返回 -1。
func (g *Gate) Available(host string) int {
	b := g.get(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled() {
		return -1
	}
	b.refill(g.clk())
	return int(b.level)
}
