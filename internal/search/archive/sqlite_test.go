package archive

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/prefeitura-rio/searsia-node/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "hits.db"), Schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteArchive(db)
}

func doc(id, title, terms string) Document {
	stored, _ := json.Marshal(map[string]string{"title": title, "id": id})
	return Document{ID: id, Title: title, Terms: terms, Stored: stored}
}

func TestQueryRanksMatches(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t)
	require.NoError(t, a.Upsert(ctx, []Document{
		doc("r@1", "Weather today", "Weather today sunny weather forecast"),
		doc("r@2", "News", "News about the election"),
		doc("r@3", "Forecast", "Forecast of the weather"),
	}))

	matches, err := a.Query(ctx, "weather", 80)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Contains(t, string(matches[0].Stored), "r@1")
	for _, m := range matches {
		assert.Greater(t, m.Score, 0.0)
		assert.Less(t, m.Score, 1.0)
	}
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestQueryOrsTerms(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t)
	require.NoError(t, a.Upsert(ctx, []Document{
		doc("r@1", "Weather", "weather"),
		doc("r@2", "News", "election"),
	}))

	matches, err := a.Query(ctx, "weather election", 80)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = a.Query(ctx, "weather election", 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestQueryFoldsAccents(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t)
	require.NoError(t, a.Upsert(ctx, []Document{doc("r@1", "Previsão", "previsão do tempo")}))

	matches, err := a.Query(ctx, "previsao", 80)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	matches, err = a.Query(ctx, "PREVISÃO", 80)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestQueryWithoutTokens(t *testing.T) {
	a := newArchive(t)
	matches, err := a.Query(context.Background(), `"*()`, 80)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	a := newArchive(t)
	require.NoError(t, a.Upsert(ctx, []Document{doc("r@1", "Old", "alpha")}))
	require.NoError(t, a.Upsert(ctx, []Document{doc("r@1", "New", "beta")}))

	matches, err := a.Query(ctx, "alpha", 80)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = a.Query(ctx, "beta", 80)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, string(matches[0].Stored), "New")

	var count int
	require.NoError(t, a.DumpAll(ctx, func(json.RawMessage) error {
		count++
		return nil
	}))
	assert.Equal(t, 1, count)
}

func TestMatchExpression(t *testing.T) {
	assert.Equal(t, `"a" OR "b"`, matchExpression("A, b!"))
	assert.Equal(t, "", matchExpression("  "))
}
