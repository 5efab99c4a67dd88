package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"oc-search-go/internal/model"
	"oc-search-go/pkg/log"
)

// Source reads the persisted schema. repository.SchemaRepository satisfies it.
type Source interface {
	FindAllSearches(ctx context.Context) ([]model.Search, error)
	FindFields(ctx context.Context, searchID string) ([]model.Field, error)
	FindCodes(ctx context.Context, searchID string) ([]model.Code, error)
}

// staleRetry is the longest wait before a failed rebuild is tried again.
const staleRetry = 5 * time.Second

type snapshot struct {
	byID    map[string]*Schema
	byAlias map[string]*Schema
	expires time.Time
}

// Cache is a process-wide, read-mostly view of every application's schema.
// An expired snapshot is rebuilt by whichever caller notices first; concurrent
// callers may rebuild at the same time and the last one wins.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu   sync.RWMutex
	snap *snapshot
}

// NewCache creates a cache that rebuilds from source every ttl.
func NewCache(source Source, ttl time.Duration) *Cache {
	return &Cache{source: source, ttl: ttl, now: time.Now}
}

// Get returns the schema for an application id. Unknown ids yield ErrNotFound.
func (c *Cache) Get(ctx context.Context, searchID string) (*Schema, error) {
	snap, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	s, ok := snap.byID[searchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, searchID)
	}
	return s, nil
}

// Resolve accepts either an application id or a language alias.
func (c *Cache) Resolve(ctx context.Context, lang, name string) (*Schema, error) {
	snap, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	if s, ok := snap.byID[name]; ok {
		return s, nil
	}
	if s, ok := snap.byAlias[aliasKey(lang, name)]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// All returns every cached schema.
func (c *Cache) All(ctx context.Context) ([]*Schema, error) {
	snap, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Schema, 0, len(snap.byID))
	for _, s := range snap.byID {
		out = append(out, s)
	}
	return out, nil
}

// Invalidate forces the next read to rebuild.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

func (c *Cache) current(ctx context.Context) (*snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil && c.now().Before(snap.expires) {
		return snap, nil
	}

	fresh, err := c.rebuild(ctx)
	if err != nil {
		if snap != nil {
			log.Errorf("[SchemaCache] rebuild failed, serving stale schema: %v", err)
			return c.restamp(snap), nil
		}
		return nil, err
	}
	c.mu.Lock()
	c.snap = fresh
	c.mu.Unlock()
	return fresh, nil
}

// restamp keeps serving snap for another retry interval so a broken store is
// not hit by every request.
func (c *Cache) restamp(snap *snapshot) *snapshot {
	retry := staleRetry
	if c.ttl < retry {
		retry = c.ttl
	}
	stale := *snap
	stale.expires = c.now().Add(retry)
	c.mu.Lock()
	if c.snap == snap {
		c.snap = &stale
	}
	c.mu.Unlock()
	return &stale
}

func (c *Cache) rebuild(ctx context.Context) (*snapshot, error) {
	searches, err := c.source.FindAllSearches(ctx)
	if err != nil {
		return nil, fmt.Errorf("load searches: %w", err)
	}
	snap := &snapshot{
		byID:    make(map[string]*Schema, len(searches)),
		byAlias: make(map[string]*Schema),
		expires: c.now().Add(c.ttl),
	}
	for _, search := range searches {
		fields, err := c.source.FindFields(ctx, search.SearchID)
		if err != nil {
			return nil, fmt.Errorf("load fields for %s: %w", search.SearchID, err)
		}
		codes, err := c.source.FindCodes(ctx, search.SearchID)
		if err != nil {
			return nil, fmt.Errorf("load codes for %s: %w", search.SearchID, err)
		}
		s := New(search, fields, codes)
		snap.byID[search.SearchID] = s
		for _, lang := range []string{model.LangEN, model.LangFR} {
			if alias := s.Alias(lang); alias != "" {
				snap.byAlias[aliasKey(lang, alias)] = s
			}
		}
	}
	log.Infof("[SchemaCache] loaded %d search applications", len(snap.byID))
	return snap, nil
}

func aliasKey(lang, alias string) string {
	return lang + "/" + strings.ToLower(alias)
}
