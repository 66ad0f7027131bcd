// Package cache holds an in-memory LRU cache of model answers keyed by the
// exact prompt. A prompt embeds every context record, so any new or edited
// record produces a different key and never reuses a stale answer.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/health-recorder-ai/health-recorder/internal/api/middleware"
	log "github.com/sirupsen/logrus"
)

// DefaultEvictionInterval is the default interval for periodic cache eviction.
const DefaultEvictionInterval = 1 * time.Minute

// Config defines the answer cache settings.
type Config struct {
	// Enabled controls whether answers are cached.
	Enabled bool
	// MaxEntries is the maximum number of cached answers.
	MaxEntries int
	// TTL is how long an answer stays valid.
	TTL time.Duration
}

// DefaultConfig returns an opt-in configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:    false,
		MaxEntries: 200,
		TTL:        10 * time.Minute,
	}
}

type entry struct {
	answer    string
	model     string
	createdAt time.Time
	hits      int
}

// Stats tracks cache performance.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// AnswerCache is an LRU of answers with a per-entry TTL. Safe for concurrent use.
type AnswerCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string // least recently used first
	config  Config
	stats   Stats
	now     func() time.Time
}

// NewAnswerCache creates a cache with cfg, filling zero sizes from DefaultConfig.
func NewAnswerCache(cfg Config) *AnswerCache {
	cfg = normalize(cfg)
	return &AnswerCache{
		entries: make(map[string]*entry),
		order:   make([]string, 0, cfg.MaxEntries),
		config:  cfg,
		now:     time.Now,
	}
}

func normalize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return cfg
}

func key(model, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Get returns the cached answer for model and prompt.
func (c *AnswerCache) Get(model, prompt string) (string, bool) {
	c.mu.Lock()
	if !c.config.Enabled {
		c.mu.Unlock()
		return "", false
	}
	k := key(model, prompt)
	e, ok := c.entries[k]
	if ok && c.now().Sub(e.createdAt) > c.config.TTL {
		delete(c.entries, k)
		c.removeFromOrder(k)
		c.stats.Evictions++
		ok = false
	}
	if !ok {
		c.stats.Misses++
		c.mu.Unlock()
		middleware.RecordAnswerCache(false)
		return "", false
	}
	e.hits++
	hits, answer := e.hits, e.answer
	c.stats.Hits++
	c.moveToEnd(k)
	c.mu.Unlock()
	middleware.RecordAnswerCache(true)

	log.Debugf("answer cache HIT for model %s (hits: %d)", model, hits)
	return answer, true
}

// Set stores answer. Empty answers are not cached.
func (c *AnswerCache) Set(model, prompt, answer string) {
	if answer == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.config.Enabled {
		return
	}

	k := key(model, prompt)
	if _, exists := c.entries[k]; exists {
		c.removeFromOrder(k)
	}
	for len(c.entries) >= c.config.MaxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		delete(c.entries, oldest)
		c.order = c.order[1:]
		c.stats.Evictions++
	}
	c.entries[k] = &entry{answer: answer, model: model, createdAt: c.now()}
	c.order = append(c.order, k)
	middleware.SetAnswerCacheSize(len(c.entries))
}

func (c *AnswerCache) moveToEnd(k string) {
	c.removeFromOrder(k)
	c.order = append(c.order, k)
}

func (c *AnswerCache) removeFromOrder(k string) {
	for i, existing := range c.order {
		if existing == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Clear removes all entries.
func (c *AnswerCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = make([]string, 0, c.config.MaxEntries)
	middleware.SetAnswerCacheSize(0)
}

// Stats returns current cache statistics.
func (c *AnswerCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	return s
}

// UpdateConfig applies a reloaded configuration, shrinking the cache if needed.
// Disabling the cache drops every entry.
func (c *AnswerCache) UpdateConfig(cfg Config) {
	cfg = normalize(cfg)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	if !cfg.Enabled {
		c.entries = make(map[string]*entry)
		c.order = c.order[:0]
	}
	for len(c.entries) > cfg.MaxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		delete(c.entries, oldest)
		c.order = c.order[1:]
		c.stats.Evictions++
	}
	middleware.SetAnswerCacheSize(len(c.entries))
}

// EvictExpired removes expired entries and returns how many were dropped.
func (c *AnswerCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	now := c.now()
	kept := make([]string, 0, len(c.order))
	for _, k := range c.order {
		e, exists := c.entries[k]
		if !exists {
			continue
		}
		if now.Sub(e.createdAt) > c.config.TTL {
			delete(c.entries, k)
			evicted++
			c.stats.Evictions++
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
	middleware.SetAnswerCacheSize(len(c.entries))
	return evicted
}

// StartPeriodicEviction evicts expired entries every interval until ctx is done.
func (c *AnswerCache) StartPeriodicEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultEvictionInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.EvictExpired(); n > 0 {
					log.Debugf("answer cache evicted %d expired entries", n)
				}
			}
		}
	}()
}
