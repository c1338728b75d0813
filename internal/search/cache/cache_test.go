package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search/archive"
	"github.com/prefeitura-rio/searsia-node/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, capacity int, opts ...Option) *ResultCache {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "cache.db"), archive.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := Open(context.Background(), archive.NewSQLiteArchive(db), capacity, opts...)
	require.NoError(t, err)
	return c
}

func resultFor(q, rid string, titles ...string) *models.SearchResult {
	r := models.NewSearchResult()
	for i, title := range titles {
		r.AddHit(models.NewHitWith(title, "about "+title, fmt.Sprintf("http://%s.example/%d", rid, i), ""))
	}
	r.AddQueryResourceRankDate(q, rid)
	return r
}

func TestOpenStoresSeedHit(t *testing.T) {
	c := newCache(t, MinCapacity)

	result, err := c.Search(context.Background(), "searsia", 0)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "Searsia", result.Hits[0].Title())
	assert.Equal(t, "http://searsia.org", result.Hits[0].URL())
	assert.Greater(t, result.Hits[0].Score(), 0.0)
}

func TestOfferDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, MinCapacity)

	for i := 0; i < MinCapacity+5; i++ {
		c.Offer(ctx, resultFor("q", "r", "t"))
	}
	assert.Equal(t, MinCapacity, c.Len())
}

func TestCheckFlushAboveHalf(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, 40)

	for i := 0; i < 19; i++ {
		c.Offer(ctx, resultFor("q", "r", "t"))
	}
	flushed, err := c.CheckFlush(ctx)
	require.NoError(t, err)
	assert.False(t, flushed)
	assert.Equal(t, 19, c.Len())

	c.Offer(ctx, resultFor("q", "r", "t"))
	flushed, err = c.CheckFlush(ctx)
	require.NoError(t, err)
	assert.True(t, flushed)
	assert.Zero(t, c.Len())
}

func TestFlushStoresTitledHits(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, MinCapacity)

	r := resultFor("weather", "wiki", "Weather forecast")
	untitled := models.NewHit()
	untitled.SetString(models.FieldURL, "http://untitled.example")
	untitled.SetString(models.FieldDescription, "weather without title")
	r.AddHit(untitled)
	r.Hits[0].SetScore(0.9)
	c.Offer(ctx, r)

	require.NoError(t, c.Flush(ctx))

	result, err := c.Search(ctx, "weather", 10)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	hit := result.Hits[0]
	assert.Equal(t, "Weather forecast", hit.Title())
	assert.Equal(t, "wiki", hit.RID())
	assert.False(t, hit.Has(models.FieldQuery))
	assert.False(t, hit.Has(models.FieldRScore))
	assert.NotEqual(t, 0.9, hit.Score())

	var dumped []json.RawMessage
	require.NoError(t, c.Dump(ctx, func(stored json.RawMessage) error {
		dumped = append(dumped, stored)
		return nil
	}))
	assert.Len(t, dumped, 2)
}

func TestCacheSearchExactPair(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, MinCapacity)
	c.Offer(ctx, resultFor("Weather  Rio", "wiki", "Rio weather"))

	result, ok := c.CacheSearch(ctx, "weather rio", "wiki")
	require.True(t, ok)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "Rio weather", result.Hits[0].Title())
	assert.Equal(t, "wiki", result.ResourceID)

	_, ok = c.CacheSearch(ctx, "weather rio", "news")
	assert.False(t, ok)
	_, ok = c.CacheSearch(ctx, "weather", "wiki")
	assert.False(t, ok)
}

func TestLRUStoreExpiresAndEvicts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s := NewLRUStore(2, time.Minute)
	s.now = func() time.Time { return now }

	s.Set(ctx, "a", []byte("1"))
	s.Set(ctx, "b", []byte("2"))
	_, ok := s.Get(ctx, "a")
	require.True(t, ok)

	s.Set(ctx, "c", []byte("3"))
	_, ok = s.Get(ctx, "b")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())

	now = now.Add(2 * time.Minute)
	_, ok = s.Get(ctx, "a")
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore("redis://"+mr.Addr(), time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Ping(ctx))

	c := newCache(t, MinCapacity, WithExactStore(store))
	c.Offer(ctx, resultFor("rain", "wiki", "Rain"))

	assert.True(t, mr.Exists(redisPrefix+ExactKey("rain", "wiki")))
	result, ok := c.CacheSearch(ctx, "rain", "wiki")
	require.True(t, ok)
	assert.Equal(t, "Rain", result.Hits[0].Title())

	mr.FastForward(2 * time.Minute)
	_, ok = c.CacheSearch(ctx, "rain", "wiki")
	assert.False(t, ok)
}

// countingArchive conta quantas vezes cada documento foi gravado
type countingArchive struct {
	mu     sync.Mutex
	counts map[string]int
}

func (a *countingArchive) Upsert(_ context.Context, docs []archive.Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, doc := range docs {
		a.counts[doc.ID]++
	}
	return nil
}

func (a *countingArchive) Query(context.Context, string, int) ([]archive.Match, error) {
	return nil, nil
}

func (a *countingArchive) DumpAll(context.Context, func(json.RawMessage) error) error {
	return nil
}

func (a *countingArchive) Close() error { return nil }

func TestConcurrentOfferAndFlushArchivesEachHitOnce(t *testing.T) {
	ctx := context.Background()
	const writers, perWriter = 8, 25

	arch := &countingArchive{counts: make(map[string]int)}
	c, err := Open(ctx, arch, writers*perWriter)
	require.NoError(t, err)
	arch.counts = make(map[string]int)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				_, err := c.CheckFlush(ctx)
				assert.NoError(t, err)
				assert.NoError(t, c.Flush(ctx))
			}
		}()
	}

	var offers sync.WaitGroup
	for w := 0; w < writers; w++ {
		offers.Add(1)
		go func(w int) {
			defer offers.Done()
			for i := 0; i < perWriter; i++ {
				rid := fmt.Sprintf("w%d-%d", w, i)
				result := resultFor("q", rid, "a", "b")
				result.AddHit(models.NewHitWith("", "sem título", "http://"+rid+".example/untitled", ""))
				result.AddQueryResourceRankDate("q", rid)
				c.Offer(ctx, result)
			}
		}(w)
	}
	offers.Wait()
	close(done)
	wg.Wait()
	require.NoError(t, c.Flush(ctx))
	assert.Zero(t, c.Len())

	arch.mu.Lock()
	defer arch.mu.Unlock()
	require.Len(t, arch.counts, writers*perWriter*2)
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			rid := fmt.Sprintf("w%d-%d", w, i)
			for n := 0; n < 2; n++ {
				assert.Equal(t, 1, arch.counts[fmt.Sprintf("%s@http://%s.example/%d", rid, rid, n)], rid)
			}
			assert.NotContains(t, arch.counts, rid+"@http://"+rid+".example/untitled")
		}
	}
}
