package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultTTL 是未指定过期时间时的默认缓存时长
const DefaultTTL = time.Hour

// ErrMiss 表示 key 不存在或已过期
var ErrMiss = errors.New("cache: miss")

// Cache 是短期结果缓存：未命中时调用方直接走实时计算，不做并发合并
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Key 用冒号拼接缓存 key，例如 run:guardian:crypto
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache 是进程内缓存；过期在读取时惰性判断，不做后台清理
type MemoryCache struct {
	entries    sync.Map
	defaultTTL time.Duration
	now        func() time.Time
}

func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &MemoryCache{defaultTTL: defaultTTL, now: time.Now}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, ErrMiss
	}
	e := v.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.entries.CompareAndDelete(key, v)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.entries.Store(key, &entry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	})
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	c.entries.Delete(key)
	return nil
}
