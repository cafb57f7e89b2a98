// Package cache 提供按资源标识缓存远程内容的进程内存储。
//
// 缓存无上界、从不淘汰；随插件实例创建并注入 Fetcher，实例生命周期内有效。
// 宿主会从多个 goroutine 并发调用插件回调，因此读写加锁，
// 并用 singleflight 合并同一标识上的并发填充，保证每个标识至多获取一次。
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache: 资源标识 → 原始内容。
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]byte
	group   singleflight.Group
}

// New 创建空缓存。
func New() *Cache {
	return &Cache{entries: make(map[string][]byte)}
}

// Get 返回已缓存的内容。
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[key]
	return b, ok
}

// Put 写入内容；已存在的键不覆盖（首次写入者胜出）。
func (c *Cache) Put(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = body
}

// Len 返回缓存条目数。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Do 命中则直接返回；否则调用 fill 获取并写入。
// 同一 key 的并发调用只触发一次 fill；错误不缓存，下次调用会重新获取。
// hit 报告结果是否来自缓存（含等待他人填充的情形为 false）。
func (c *Cache) Do(ctx context.Context, key string, fill func(ctx context.Context) ([]byte, error)) (body []byte, hit bool, err error) {
	if b, ok := c.Get(key); ok {
		return b, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		// 双检：等待锁期间可能已被填充
		if b, ok := c.Get(key); ok {
			return b, nil
		}
		b, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, b)
		return b, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}
