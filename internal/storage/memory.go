package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LJTian/NewsPulse/internal/processor"
)

// MemoryStore 是进程内的存储实现，语义与 Store 一致，用于单机试跑和测试
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]processor.Article
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]processor.Article)}
}

func (m *MemoryStore) Close() error { return nil }

func cloneArticle(a processor.Article) processor.Article {
	a.Keywords = append([]string(nil), a.Keywords...)
	if a.Extra != nil {
		extra := make(map[string]any, len(a.Extra))
		for k, v := range a.Extra {
			extra[k] = v
		}
		a.Extra = extra
	}
	return a
}

func (m *MemoryStore) snapshot(collection string, keep func(processor.Article) bool) []processor.Article {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]processor.Article, 0, len(m.collections[collection]))
	for _, a := range m.collections[collection] {
		if keep == nil || keep(a) {
			out = append(out, cloneArticle(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].URL < out[j].URL
	})
	return out
}

func (m *MemoryStore) FindAll(ctx context.Context, collection string) ([]processor.Article, error) {
	return m.snapshot(collection, nil), nil
}

func (m *MemoryStore) UpsertMany(ctx context.Context, collection string, articles []processor.Article) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "upsert", Collection: collection, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		c = make(map[string]processor.Article)
		m.collections[collection] = c
	}
	for _, a := range articles {
		c[a.URL] = cloneArticle(a)
	}
	return nil
}

func (m *MemoryStore) ListRecent(ctx context.Context, collection string, limit int) ([]processor.Article, error) {
	out := m.snapshot(collection, nil)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) FindSince(ctx context.Context, collection string, since time.Time) ([]processor.Article, error) {
	return m.snapshot(collection, func(a processor.Article) bool {
		return !a.PublishedAt.Before(since)
	}), nil
}
