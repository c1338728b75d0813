package ranking

import (
	"fmt"
	"sort"
	"testing"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeEntry struct {
	prior   float64
	deleted bool
}

type fakeCatalog map[string]fakeEntry

func (c fakeCatalog) TopValuesNotDeleted(_, _ string, max int) *models.ScoredIDs {
	ids := make([]string, 0, len(c))
	for id, e := range c {
		if !e.deleted {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if c[ids[i]].prior != c[ids[j]].prior {
			return c[ids[i]].prior > c[ids[j]].prior
		}
		return ids[i] > ids[j]
	})
	out := models.NewScoredIDs()
	for i, id := range ids {
		if i >= max {
			break
		}
		out.Add(id, c[id].prior)
	}
	return out
}

func (c fakeCatalog) Lookup(id string) (float64, bool, bool) {
	e, ok := c[id]
	return e.prior, e.deleted, ok
}

func hitFor(rid, title string, score float64) *models.Hit {
	h := models.NewHit()
	h.SetString(models.FieldTitle, title)
	h.SetString(models.FieldRID, rid)
	h.SetScore(score)
	return h
}

func rids(hits []*models.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.RID()
	}
	return out
}

func TestScoreResourceSelectionOrdersByPrior(t *testing.T) {
	catalog := fakeCatalog{
		"wiki":  {prior: 0.3},
		"news":  {prior: 0.1},
		"blogs": {prior: 0.0},
	}
	result := models.NewSearchResult(
		hitFor("news", "n1", 1.0),
		hitFor("wiki", "w1", 0.5),
		hitFor("wiki", "w2", 0.2),
	)

	NewScorer(nil).ScoreResourceSelection(result, "q", catalog, 10, 0)

	require.Len(t, result.Hits, 4)
	assert.Equal(t, []string{"wiki", "wiki", "news", "blogs"}, rids(result.Hits))
	assert.InDelta(t, 0.3+0.5*0.05, result.Hits[0].Score(), 1e-9)
	assert.InDelta(t, 0.3+0.5*0.05, result.Hits[1].RScore(), 1e-9)

	placeholder := result.Hits[3]
	assert.Equal(t, []string{models.FieldRID, models.FieldScore, models.FieldRScore}, placeholder.Keys())
	assert.Equal(t, 0.0, placeholder.RScore())
}

func TestScoreResourceSelectionSkipsTombstones(t *testing.T) {
	catalog := fakeCatalog{
		"gone": {prior: 0.9, deleted: true},
		"live": {prior: 0.1},
	}
	result := models.NewSearchResult(
		hitFor("gone", "g", 1.0),
		hitFor("live", "l", 1.0),
	)

	NewScorer(nil).ScoreResourceSelection(result, "", catalog, 10, 0)

	assert.Equal(t, []string{"live"}, rids(result.Hits))
}

func TestScoreResourceSelectionLocalHits(t *testing.T) {
	local := models.NewHit()
	local.SetString(models.FieldTitle, "local")
	local.SetScore(2.0)
	result := models.NewSearchResult(local)

	NewScorer(nil).ScoreResourceSelection(result, "", fakeCatalog{}, 10, 0)

	require.Len(t, result.Hits, 1)
	assert.InDelta(t, 0.1, result.Hits[0].RScore(), 1e-9)
}

func TestScoreResourceSelectionCapsHitsPerResource(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scores := rapid.SliceOfN(rapid.Float64Range(0, 100), 1, 60).Draw(t, "scores")
		prior := rapid.Float64Range(0, 1).Draw(t, "prior")

		hits := make([]*models.Hit, len(scores))
		for i, s := range scores {
			hits[i] = hitFor("only", fmt.Sprintf("hit %d", i), s)
		}
		result := models.NewSearchResult(hits...)

		NewScorer(nil).ScoreResourceSelection(result, "", fakeCatalog{"only": {prior: prior}}, 10, 0)

		if len(result.Hits) > maxHitsPerResource {
			t.Fatalf("%d hits survived for a single resource", len(result.Hits))
		}
		for i := 1; i < len(result.Hits); i++ {
			if result.Hits[i-1].Compare(result.Hits[i]) < 0 {
				t.Fatalf("hits out of order at %d", i)
			}
		}
	})
}

func TestSelectBestResourcesPartitions(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		groups := rapid.IntRange(0, 8).Draw(t, "groups")
		max := rapid.IntRange(1, 4).Draw(t, "max")

		var hits []*models.Hit
		for g := 0; g < groups; g++ {
			n := rapid.IntRange(1, 3).Draw(t, fmt.Sprintf("size%d", g))
			for i := 0; i < n; i++ {
				h := hitFor(fmt.Sprintf("r%d", g), "x", 0)
				h.SetRScore(float64(groups - g))
				hits = append(hits, h)
			}
		}

		first := models.NewSearchResult(hits...)
		second := models.NewSearchResult(hits...)
		SelectBestResources(first, max, 0)
		SelectBestResources(second, max, max)

		// as duas páginas juntas formam o prefixo contíguo da lista original
		joined := append(rids(first.Hits), rids(second.Hits)...)
		if len(joined) > len(hits) {
			t.Fatalf("pages overlap: %v", joined)
		}
		for i, rid := range joined {
			if hits[i].RID() != rid {
				t.Fatalf("gap or overlap at %d: %v", i, joined)
			}
		}
		seen := map[string]bool{}
		for _, rid := range rids(first.Hits) {
			seen[rid] = true
		}
		for _, rid := range rids(second.Hits) {
			if seen[rid] {
				t.Fatalf("resource %s on both pages", rid)
			}
		}
	})
}

func TestSelectBestResourcesBeyondEnd(t *testing.T) {
	result := models.NewSearchResult(hitFor("a", "1", 0), hitFor("b", "2", 0))

	SelectBestResources(result, 2, 5)

	assert.Empty(t, result.Hits)
}
