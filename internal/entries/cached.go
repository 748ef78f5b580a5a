package entries

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/lars-symptom-tracker/internal/domain"
)

const (
	defaultCacheTTL      = 5 * time.Minute
	defaultCacheMaxUsers = 1000
)

// CacheConfig configures the read cache of a CachedStore.
type CacheConfig struct {
	MaxUsers int
	TTL      time.Duration
	// Redis is an optional shared tier behind the in-memory LRU.
	Redis *RedisCache
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	RedisHits    int64 `json:"redis_hits"`
	RedisMisses  int64 `json:"redis_misses"`
	StoreReads   int64 `json:"store_reads"`
	CachedUsers  int   `json:"cached_users"`
}

// cachedList is the largest recent-entries page fetched for a user.
// Complete means the store held fewer entries than Limit, so any larger limit is served too.
type cachedList struct {
	Limit    int                    `json:"limit"`
	Complete bool                   `json:"complete"`
	Entries  []*domain.SymptomEntry `json:"entries"`
}

func (l *cachedList) covers(limit int) bool {
	return l.Complete || l.Limit >= limit
}

func (l *cachedList) page(limit int) []*domain.SymptomEntry {
	n := len(l.Entries)
	if limit < n {
		n = limit
	}
	out := make([]*domain.SymptomEntry, n)
	copy(out, l.Entries[:n])
	return out
}

type cacheEntry struct {
	list   *cachedList
	expiry time.Time
}

// sharedTier is a cache shared between processes, implemented by RedisCache.
type sharedTier interface {
	get(ctx context.Context, userID string) (*cachedList, bool, error)
	set(ctx context.Context, userID string, list *cachedList) error
	delete(ctx context.Context, userID string) error
	Health(ctx context.Context) error
	Close() error
}

// fill tracks one in-flight read. An append for the same user marks it stale,
// and a stale fill never writes to any tier.
type fill struct {
	stale bool
}

// CachedStore decorates a Store with a per-user "most recent entries" read cache.
// Appends invalidate the user's cached list in every tier.
type CachedStore struct {
	store  Store
	memory *lru.Cache
	redis  sharedTier
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time

	// fills holds the in-flight reads per user; entries are removed when the read ends
	mu    sync.Mutex
	fills map[string]map[*fill]struct{}

	// afterMemoryFill runs between the memory and shared tier writes; set by tests
	afterMemoryFill func(userID string)

	statsMu sync.Mutex
	stats   CacheStats
}

// NewCachedStore wraps store with a read cache.
func NewCachedStore(store Store, config CacheConfig, logger *logrus.Logger) (*CachedStore, error) {
	if config.MaxUsers <= 0 {
		config.MaxUsers = defaultCacheMaxUsers
	}
	if config.TTL <= 0 {
		config.TTL = defaultCacheTTL
	}

	memory, err := lru.New(config.MaxUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	c := &CachedStore{
		store:  store,
		memory: memory,
		ttl:    config.TTL,
		logger: logger,
		now:    time.Now,
		fills:  make(map[string]map[*fill]struct{}),
	}
	if config.Redis != nil {
		c.redis = config.Redis
	}
	return c, nil
}

// Append stores the entry and invalidates the user's cached lists.
func (c *CachedStore) Append(ctx context.Context, entry *domain.SymptomEntry) error {
	if err := c.store.Append(ctx, entry); err != nil {
		return err
	}
	c.invalidate(ctx, entry.UserID)
	return nil
}

// List serves from the memory tier, then Redis, then the underlying store.
func (c *CachedStore) List(ctx context.Context, userID string, limit int) ([]*domain.SymptomEntry, error) {
	if list := c.getFromMemory(userID); list != nil && list.covers(limit) {
		c.incrementStat(func(s *CacheStats) { s.MemoryHits++ })
		return list.page(limit), nil
	}
	c.incrementStat(func(s *CacheStats) { s.MemoryMisses++ })

	f := c.beginFill(userID)
	defer c.endFill(userID, f)

	if c.redis != nil {
		list, ok, err := c.redis.get(ctx, userID)
		if err != nil {
			c.logger.WithError(err).WithField("user_id", userID).Warn("Redis entry cache unavailable, reading store")
		}
		if ok && list.covers(limit) {
			c.incrementStat(func(s *CacheStats) { s.RedisHits++ })
			c.setInMemory(userID, list, f)
			return list.page(limit), nil
		}
		c.incrementStat(func(s *CacheStats) { s.RedisMisses++ })
	}

	c.incrementStat(func(s *CacheStats) { s.StoreReads++ })
	entries, err := c.store.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	list := &cachedList{
		Limit:    limit,
		Complete: len(entries) < limit,
		Entries:  entries,
	}
	if c.setInMemory(userID, list, f) && c.redis != nil {
		if c.afterMemoryFill != nil {
			c.afterMemoryFill(userID)
		}
		if err := c.setInRedis(ctx, userID, list, f); err != nil {
			c.logger.WithError(err).WithField("user_id", userID).Warn("Failed to populate Redis entry cache")
		}
	}

	return list.page(limit), nil
}

// Count passes through to the underlying store.
func (c *CachedStore) Count(ctx context.Context, userID string) (int64, error) {
	return c.store.Count(ctx, userID)
}

// SeverityDistribution passes through to the underlying store.
func (c *CachedStore) SeverityDistribution(ctx context.Context) (map[domain.Severity]int64, error) {
	return c.store.SeverityDistribution(ctx)
}

// ExportJSON passes through to the underlying store.
func (c *CachedStore) ExportJSON(ctx context.Context, userID string, writer io.Writer) error {
	return c.store.ExportJSON(ctx, userID, writer)
}

// Health checks the underlying store and the Redis tier.
func (c *CachedStore) Health(ctx context.Context) error {
	if hc, ok := c.store.(domain.HealthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			return err
		}
	}
	if c.redis != nil {
		if err := c.redis.Health(ctx); err != nil {
			return fmt.Errorf("entry cache: %w", err)
		}
	}
	return nil
}

// Close closes the Redis tier and the underlying store.
func (c *CachedStore) Close() error {
	c.memory.Purge()
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to close Redis entry cache")
		}
	}
	return c.store.Close()
}

// GetCacheStats returns cache performance statistics
func (c *CachedStore) GetCacheStats() CacheStats {
	c.statsMu.Lock()
	stats := c.stats
	c.statsMu.Unlock()

	stats.CachedUsers = c.memory.Len()
	return stats
}

func (c *CachedStore) invalidate(ctx context.Context, userID string) {
	c.markStale(userID)

	if c.redis != nil {
		if err := c.redis.delete(ctx, userID); err != nil {
			c.logger.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate Redis entry cache")
		}
		// reads that began before the delete may have fetched the old Redis value
		c.markStale(userID)
	}

	c.logger.WithField("user_id", userID).Debug("Invalidated entry cache")
}

// markStale drops the memory entry and marks every in-flight read of the user stale.
func (c *CachedStore) markStale(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for f := range c.fills[userID] {
		f.stale = true
	}
	c.memory.Remove(userID)
}

func (c *CachedStore) beginFill(userID string) *fill {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := &fill{}
	if c.fills[userID] == nil {
		c.fills[userID] = make(map[*fill]struct{})
	}
	c.fills[userID][f] = struct{}{}
	return f
}

func (c *CachedStore) endFill(userID string, f *fill) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.fills[userID], f)
	if len(c.fills[userID]) == 0 {
		delete(c.fills, userID)
	}
}

// trackedUsers returns how many users have reads in flight.
func (c *CachedStore) trackedUsers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fills)
}

func (c *CachedStore) getFromMemory(userID string) *cachedList {
	if value, ok := c.memory.Get(userID); ok {
		if entry, ok := value.(*cacheEntry); ok && c.now().Before(entry.expiry) {
			return entry.list
		}
		c.memory.Remove(userID)
	}
	return nil
}

// setInMemory caches list unless the user was invalidated since the fill began.
func (c *CachedStore) setInMemory(userID string, list *cachedList, f *fill) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f.stale {
		return false
	}
	c.memory.Add(userID, &cacheEntry{list: list, expiry: c.now().Add(c.ttl)})
	return true
}

// setInRedis writes list to the shared tier unless the fill went stale.
// The lock is held across the write so an invalidation either marks the fill
// first or deletes the key after the write lands.
func (c *CachedStore) setInRedis(ctx context.Context, userID string, list *cachedList, f *fill) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f.stale {
		c.logger.WithField("user_id", userID).Debug("Skipped stale Redis entry cache write")
		return nil
	}
	return c.redis.set(ctx, userID, list)
}

func (c *CachedStore) incrementStat(update func(*CacheStats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	update(&c.stats)
}
