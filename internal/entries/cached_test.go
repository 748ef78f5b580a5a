package entries

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lars-symptom-tracker/internal/domain"
)

// countingStore records how often reads reach the wrapped store.
type countingStore struct {
	Store
	lists   int
	listErr error
}

func (s *countingStore) List(ctx context.Context, userID string, limit int) ([]*domain.SymptomEntry, error) {
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.List(ctx, userID, limit)
}

func newQuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newCachedTestStore(t *testing.T, config CacheConfig) (*CachedStore, *countingStore) {
	t.Helper()
	inner := &countingStore{Store: createTestStore(t)}
	cached, err := NewCachedStore(inner, config, newQuietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { cached.Close() })
	return cached, inner
}

func TestCachedStore_ServesRepeatReadsFromMemory(t *testing.T) {
	cached, inner := newCachedTestStore(t, CacheConfig{})
	ctx := context.Background()

	require.NoError(t, cached.Append(ctx, newTestEntry("a", "user-1", "2024-03-01", baseTime)))
	require.NoError(t, cached.Append(ctx, newTestEntry("b", "user-1", "2024-03-02", baseTime)))

	first, err := cached.List(ctx, "user-1", 10)
	require.NoError(t, err)
	second, err := cached.List(ctx, "user-1", 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.lists)

	// a smaller page is cut from the cached list
	one, err := cached.List(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "b", one[0].ID)
	assert.Equal(t, 1, inner.lists)

	// the list was complete, so a larger limit is served too
	_, err = cached.List(ctx, "user-1", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.lists)

	stats := cached.GetCacheStats()
	assert.Equal(t, int64(3), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.StoreReads)
	assert.Equal(t, 1, stats.CachedUsers)
}

func TestCachedStore_LargerLimitOnTruncatedList(t *testing.T) {
	cached, inner := newCachedTestStore(t, CacheConfig{})
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, cached.Append(ctx, newTestEntry(id, "user-1", "2024-03-01", baseTime.Add(time.Duration(i)*time.Second))))
	}

	two, err := cached.List(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	all, err := cached.List(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 2, inner.lists)
}

func TestCachedStore_AppendInvalidates(t *testing.T) {
	cached, inner := newCachedTestStore(t, CacheConfig{})
	ctx := context.Background()

	require.NoError(t, cached.Append(ctx, newTestEntry("a", "user-1", "2024-03-01", baseTime)))
	list, err := cached.List(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, cached.Append(ctx, newTestEntry("b", "user-1", "2024-03-02", baseTime)))

	list, err = cached.List(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, 2, inner.lists)
}

func TestCachedStore_FailedAppendKeepsCache(t *testing.T) {
	cached, inner := newCachedTestStore(t, CacheConfig{})
	ctx := context.Background()

	require.NoError(t, cached.Append(ctx, newTestEntry("a", "user-1", "2024-03-01", baseTime)))
	_, err := cached.List(ctx, "user-1", 10)
	require.NoError(t, err)

	err = cached.Append(ctx, newTestEntry("a", "user-1", "2024-03-01", baseTime))
	assert.ErrorIs(t, err, domain.ErrDuplicateEntry)

	_, err = cached.List(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.lists)
}

func TestCachedStore_Expiry(t *testing.T) {
	cached, inner := newCachedTestStore(t, CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	now := baseTime
	cached.now = func() time.Time { return now }

	_, err := cached.List(ctx, "user-1", 10)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = cached.List(ctx, "user-1", 10)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.lists)
}

func TestCachedStore_StoreErrorNotCached(t *testing.T) {
	cached, inner := newCachedTestStore(t, CacheConfig{})
	ctx := context.Background()

	inner.listErr = errors.New("boom")
	_, err := cached.List(ctx, "user-1", 10)
	assert.Error(t, err)

	inner.listErr = nil
	list, err := cached.List(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 2, inner.lists)
}

func TestCachedStore_CallerCannotMutateCache(t *testing.T) {
	cached, _ := newCachedTestStore(t, CacheConfig{})
	ctx := context.Background()

	require.NoError(t, cached.Append(ctx, newTestEntry("a", "user-1", "2024-03-01", baseTime)))

	list, err := cached.List(ctx, "user-1", 10)
	require.NoError(t, err)
	list[0] = nil

	again, err := cached.List(ctx, "user-1", 10)
	require.NoError(t, err)
	require.NotNil(t, again[0])
}

func TestCachedStore_PassThrough(t *testing.T) {
	cached, _ := newCachedTestStore(t, CacheConfig{})
	ctx := context.Background()

	require.NoError(t, cached.Append(ctx, newTestEntry("a", "user-1", "2024-03-01", baseTime)))

	count, err := cached.Count(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var buf bytes.Buffer
	require.NoError(t, cached.ExportJSON(ctx, "user-1", &buf))
	assert.Contains(t, buf.String(), `"user_id": "user-1"`)

	assert.NoError(t, cached.Health(ctx))
}

// mapTier is an in-process stand-in for the shared Redis tier.
type mapTier struct {
	mu    sync.Mutex
	lists map[string]*cachedList
}

func newMapTier() *mapTier {
	return &mapTier{lists: map[string]*cachedList{}}
}

func (m *mapTier) get(ctx context.Context, userID string) (*cachedList, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[userID]
	return list, ok, nil
}

func (m *mapTier) set(ctx context.Context, userID string, list *cachedList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[userID] = list
	return nil
}

func (m *mapTier) delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists, userID)
	return nil
}

func (m *mapTier) Health(ctx context.Context) error { return nil }
func (m *mapTier) Close() error                     { return nil }

func TestCachedStore_AppendDuringFillSkipsSharedTier(t *testing.T) {
	cached, inner := newCachedTestStore(t, CacheConfig{})
	tier := newMapTier()
	cached.redis = tier
	ctx := context.Background()

	require.NoError(t, cached.Append(ctx, newTestEntry("a", "user-1", "2024-03-01", baseTime)))

	// an append lands after the memory write but before the shared tier write
	cached.afterMemoryFill = func(userID string) {
		cached.afterMemoryFill = nil
		require.NoError(t, cached.Append(ctx, newTestEntry("b", userID, "2024-03-02", baseTime)))
	}

	first, err := cached.List(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	_, ok, err := tier.get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok, "stale list must not reach the shared tier")

	list, err := cached.List(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, 2, inner.lists)

	// the fresh list is shared once no append interferes
	shared, ok, err := tier.get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, shared.Entries, 2)
}

func TestCachedStore_FillTrackingIsReleased(t *testing.T) {
	cached, _ := newCachedTestStore(t, CacheConfig{MaxUsers: 2})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		userID := fmt.Sprintf("user-%d", i)
		require.NoError(t, cached.Append(ctx, newTestEntry(fmt.Sprintf("e-%d", i), userID, "2024-03-01", baseTime)))
		_, err := cached.List(ctx, userID, 10)
		require.NoError(t, err)
	}

	assert.Equal(t, 0, cached.trackedUsers())
	assert.Equal(t, 2, cached.GetCacheStats().CachedUsers)
}

// getTestRedis returns a Redis client for testing.
// Skip test if TEST_REDIS_URL is not set.
func getTestRedis(t *testing.T) *redis.Client {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestCachedStore_RedisTier(t *testing.T) {
	client := getTestRedis(t)
	ctx := context.Background()

	userID := "redis-user-" + time.Now().Format("150405.000000000")
	rc := newRedisCacheWithClient(client, time.Minute)
	defer rc.delete(ctx, userID)

	writer, writerInner := newCachedTestStore(t, CacheConfig{Redis: rc})
	require.NoError(t, writer.Append(ctx, newTestEntry("a", userID, "2024-03-01", baseTime)))
	_, err := writer.List(ctx, userID, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, writerInner.lists)

	// a second process sharing Redis reads without touching its store
	reader, readerInner := newCachedTestStore(t, CacheConfig{Redis: newRedisCacheWithClient(client, time.Minute)})
	list, err := reader.List(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, 0, readerInner.lists)
	assert.Equal(t, int64(1), reader.GetCacheStats().RedisHits)

	require.NoError(t, writer.Append(ctx, newTestEntry("b", userID, "2024-03-02", baseTime)))
	_, ok, err := rc.get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, rc.Health(ctx))
}
