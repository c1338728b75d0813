package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search/archive"
	"github.com/prefeitura-rio/searsia-node/internal/search/cache"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
	"github.com/prefeitura-rio/searsia-node/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer simula um nó da federação: responde consultas com hits
// fixos e pedidos de resource com descritores conhecidos.
type fakePeer struct {
	mu        sync.Mutex
	id        string
	announced string
	anonymous bool
	hits      []map[string]any
	known     map[string]models.Descriptor
	lookups   []string
	queries   []string
}

func (p *fakePeer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.Header().Set("Content-Type", models.MimeTypeEncoding)

	rid := r.URL.Query().Get("r")
	q := r.URL.Query().Get("q")
	if rid != "" && rid != p.id {
		p.lookups = append(p.lookups, rid)
		desc, ok := p.known[rid]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"searsia":"v1.1.0","error":"not found"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"hits": []any{}, "resource": desc, "searsia": models.ProtocolVersion})
		return
	}

	p.queries = append(p.queries, q)
	if p.anonymous {
		json.NewEncoder(w).Encode(map[string]any{"hits": p.hits, "searsia": models.ProtocolVersion})
		return
	}
	announced := p.announced
	if announced == "" {
		announced = p.id
	}
	json.NewEncoder(w).Encode(map[string]any{
		"hits":     p.hits,
		"resource": map[string]any{"id": announced, "name": "Mother v2", "mimetype": models.MimeType},
		"searsia":  models.ProtocolVersion,
	})
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	db, err := storage.Open(":memory:", registry.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return registry.New(registry.NewSQLiteStore(db))
}

func newResultCache(t *testing.T) *cache.ResultCache {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "hits.db"), archive.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	rc, err := cache.Open(context.Background(), archive.NewSQLiteArchive(db), cache.MinCapacity)
	require.NoError(t, err)
	return rc
}

// coin sempre sorteia o mesmo valor
type coin int

func (c coin) IntN(n int) int {
	if int(c) >= n {
		return n - 1
	}
	return int(c)
}
func (coin) Shuffle(int, func(i, j int)) {}

func setupMother(t *testing.T, peer *fakePeer) (*registry.Registry, *cache.ResultCache) {
	t.Helper()
	srv := httptest.NewServer(peer)
	t.Cleanup(srv.Close)

	reg := newRegistry(t)
	mother, err := reg.NewResource(models.Descriptor{
		ID:          peer.id,
		Name:        "Mother",
		APITemplate: srv.URL + "/searsia/search?q={q}&r=" + peer.id,
		MimeType:    models.MimeType,
	})
	require.NoError(t, err)
	require.NoError(t, reg.PutMother(mother))

	self, err := reg.NewResource(models.Descriptor{ID: "me", APITemplate: "http://me.example/searsia/search?q={q}"})
	require.NoError(t, err)
	require.NoError(t, reg.PutMyself(self))
	return reg, newResultCache(t)
}

func TestTickSamplesMother(t *testing.T) {
	peer := &fakePeer{
		id: "mother",
		hits: []map[string]any{
			{"title": "Rain in Rio", "url": "http://peer1.example/rain", "rid": "peer1"},
			{"title": "Unknown", "url": "http://ghost.example", "rid": "ghost"},
			{"title": "About the mother", "url": "http://mother.example"},
		},
		known: map[string]models.Descriptor{
			"peer1": {ID: "peer1", Name: "Peer One", APITemplate: "http://peer1.example/?q={q}"},
		},
	}
	reg, rc := setupMother(t, peer)
	daemon := NewFederationDaemon(reg, rc, time.Second, WithDaemonRandom(coin(0)))

	daemon.Tick(context.Background())

	assert.Equal(t, []string{"searsia"}, peer.queries)
	assert.Equal(t, []string{"peer1", "ghost"}, peer.lookups)
	require.NotNil(t, reg.Get("peer1"))
	assert.Equal(t, "Peer One", reg.Get("peer1").Name())
	assert.Nil(t, reg.Get("ghost"))

	assert.Equal(t, "Mother v2", reg.Mother().Name())
	assert.Equal(t, "me", reg.Self().ID())
	assert.Equal(t, "Mother v2", reg.Self().Name())
	assert.Equal(t, "http://me.example/searsia/search?q={q}", reg.Self().Descriptor().APITemplate)

	assert.Equal(t, 1, rc.Len())
	cached, ok := rc.CacheSearch(context.Background(), "searsia", "mother")
	require.True(t, ok)
	assert.Len(t, cached.Hits, 3)
}

func TestTickSkipsFreshResources(t *testing.T) {
	peer := &fakePeer{
		id:   "mother",
		hits: []map[string]any{{"title": "Rain", "url": "http://peer1.example/rain", "rid": "peer1"}},
	}
	reg, rc := setupMother(t, peer)
	known, err := reg.NewResource(models.Descriptor{ID: "peer1", Name: "Peer One"})
	require.NoError(t, err)
	require.NoError(t, reg.Put(context.Background(), known))

	daemon := NewFederationDaemon(reg, rc, time.Second, WithDaemonRandom(coin(0)))
	daemon.Tick(context.Background())
	assert.Empty(t, peer.lookups)

	stale := NewFederationDaemon(reg, rc, time.Second,
		WithDaemonRandom(coin(0)),
		WithDaemonClock(func() time.Time { return time.Now().Add(3 * time.Hour) }))
	stale.Tick(context.Background())
	assert.Equal(t, []string{"peer1"}, peer.lookups)
}

func TestTickMotherIdentityMismatch(t *testing.T) {
	peer := &fakePeer{
		id:        "mother",
		announced: "impostor",
		hits:      []map[string]any{{"title": "Rain", "url": "http://peer1.example/rain", "rid": "peer1"}},
		known:     map[string]models.Descriptor{"peer1": {ID: "peer1"}},
	}
	reg, rc := setupMother(t, peer)
	daemon := NewFederationDaemon(reg, rc, time.Second, WithDaemonRandom(coin(0)))

	require.NotPanics(t, func() { daemon.Tick(context.Background()) })

	assert.Equal(t, "Mother", reg.Mother().Name())
	assert.Zero(t, reg.Len())
	assert.Empty(t, peer.lookups)
	assert.Zero(t, rc.Len())
}

func TestTickIgnoresAnonymousMother(t *testing.T) {
	peer := &fakePeer{
		id:        "mother",
		anonymous: true,
		hits:      []map[string]any{{"title": "t", "url": "http://evil.example", "rid": "evil"}},
		known:     map[string]models.Descriptor{"evil": {ID: "evil"}},
	}
	reg, rc := setupMother(t, peer)
	daemon := NewFederationDaemon(reg, rc, time.Second, WithDaemonRandom(coin(0)))

	daemon.Tick(context.Background())

	assert.Equal(t, []string{"searsia"}, peer.queries)
	assert.Empty(t, peer.lookups)
	assert.False(t, reg.Contains("evil"))
	assert.Equal(t, "Mother", reg.Mother().Name())
	assert.Zero(t, rc.Len())
}

func TestTickSkipsMismatchedLookup(t *testing.T) {
	peer := &fakePeer{
		id:    "mother",
		hits:  []map[string]any{{"title": "Rain", "url": "http://peer1.example/rain", "rid": "peer1"}},
		known: map[string]models.Descriptor{"peer1": {ID: "other"}},
	}
	reg, rc := setupMother(t, peer)
	daemon := NewFederationDaemon(reg, rc, time.Second, WithDaemonRandom(coin(0)))

	daemon.Tick(context.Background())

	assert.Equal(t, []string{"peer1"}, peer.lookups)
	assert.False(t, reg.Contains("peer1"))
	assert.False(t, reg.Contains("other"))
}

func TestTickSamplesRandomResource(t *testing.T) {
	peer := &fakePeer{
		id: "peer",
		hits: []map[string]any{
			{"title": "Rain", "url": "http://peer.example/rain", "rid": "forged", "rank": 7, "query": "forged"},
		},
	}
	srv := httptest.NewServer(peer)
	t.Cleanup(srv.Close)

	reg := newRegistry(t)
	engine, err := reg.NewResource(models.Descriptor{
		ID:          "peer",
		APITemplate: srv.URL + "/searsia/search?q={q}&r=peer",
		MimeType:    models.MimeType,
	})
	require.NoError(t, err)
	require.NoError(t, reg.Put(context.Background(), engine))
	rc := newResultCache(t)

	daemon := NewFederationDaemon(reg, rc, time.Second, WithDaemonRandom(coin(1)))
	daemon.Tick(context.Background())

	cached, ok := rc.CacheSearch(context.Background(), "searsia", "peer")
	require.True(t, ok)
	require.Len(t, cached.Hits, 1)
	hit := cached.Hits[0]
	assert.Equal(t, "peer", hit.RID())
	assert.Equal(t, "searsia", hit.GetString(models.FieldQuery))
	rank, _ := hit.Get(models.FieldRank)
	assert.Equal(t, 1.0, rank.Float())
	assert.Empty(t, peer.lookups)
}

func TestTickFlushesInsteadOfSampling(t *testing.T) {
	peer := &fakePeer{id: "mother"}
	reg, rc := setupMother(t, peer)
	for i := 0; i < cache.MinCapacity/2; i++ {
		rc.Offer(context.Background(), models.NewSearchResult(models.NewHitWith("t", "", "http://x.example", "")))
	}

	daemon := NewFederationDaemon(reg, rc, time.Second, WithDaemonRandom(coin(0)))
	daemon.Tick(context.Background())

	assert.Zero(t, rc.Len())
	assert.Empty(t, peer.queries)
}

func TestRunStopsOnCancel(t *testing.T) {
	reg := newRegistry(t)
	rc := newResultCache(t)
	daemon := NewFederationDaemon(reg, rc, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- daemon.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("daemon não parou após o cancelamento")
	}
}
