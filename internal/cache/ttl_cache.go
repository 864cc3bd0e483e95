package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache 进程内读穿缓存抽象
// 审批流模板解析与人员目录查询通过注入该接口获得缓存能力，
// 写路径按 key 或前缀主动失效，不在业务代码中内置单例
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Invalidate(key string)
	InvalidatePrefix(prefix string)
}

type entry struct {
	value     any
	expiresAt time.Time
}

type ttlCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

// NewTTLCache 创建基于内存 map 的 TTL 缓存
func NewTTLCache(ttl time.Duration) Cache {
	return &ttlCache{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

func (c *ttlCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.entries[key]
	if !found || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *ttlCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *ttlCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *ttlCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Noop 空缓存实现，测试或禁用缓存时使用
type Noop struct{}

func (Noop) Get(string) (any, bool)  { return nil, false }
func (Noop) Set(string, any)         {}
func (Noop) Invalidate(string)       {}
func (Noop) InvalidatePrefix(string) {}
