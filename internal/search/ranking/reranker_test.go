package ranking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fixedRandom struct{ n int }

func (f fixedRandom) IntN(n int) int {
	if f.n >= n {
		return n - 1
	}
	return f.n
}

func (fixedRandom) Shuffle(n int, swap func(i, j int)) {
	// inverte, para que o efeito seja visível
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}

func textHit(title, description string) *models.Hit {
	return models.NewHitWith(title, description, "", "")
}

func TestScoreRerankingGeneral(t *testing.T) {
	result := models.NewSearchResult(
		textHit("Nothing here", "completely unrelated"),
		textHit("Rio", "praia"),
		textHit("Praias do Rio", "as melhores praias do rio"),
	)

	NewScorer(nil).ScoreReranking(result, "rio praias", "")

	require.Len(t, result.Hits, 2)
	assert.Equal(t, "Praias do Rio", result.Hits[0].Title())
	assert.InDelta(t, 0.22, result.Hits[0].Score(), 1e-9)
	assert.InDelta(t, 0.01, result.Hits[1].Score(), 1e-9)
}

func TestScoreRerankingRandom(t *testing.T) {
	result := models.NewSearchResult(textHit("a", ""), textHit("b", ""), textHit("c", ""))

	NewScorer(fixedRandom{}).ScoreReranking(result, "zzz", ModelRandom)

	require.Len(t, result.Hits, 3)
	assert.Equal(t, "c", result.Hits[0].Title())
	assert.False(t, result.Hits[0].Has(models.FieldScore))
}

func TestScoreRerankingBestRandom(t *testing.T) {
	hits := make([]*models.Hit, 12)
	for i := range hits {
		hits[i] = textHit(fmt.Sprintf("hit %d", i), "")
	}
	result := models.NewSearchResult(hits...)

	NewScorer(fixedRandom{}).ScoreReranking(result, "nomatch", ModelBestRandom)

	// só os dez primeiros após o embaralhamento recebem o bônus
	require.Len(t, result.Hits, 10)
	assert.Equal(t, "hit 11", result.Hits[0].Title())
	for _, h := range result.Hits {
		assert.InDelta(t, 0.01, h.Score(), 1e-9)
	}
}

func TestScoreRerankingThreshold(t *testing.T) {
	vocab := []string{"rio", "praia", "sol", "mar", "chuva", "samba"}
	word := rapid.SampledFrom(vocab)

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		hits := make([]*models.Hit, n)
		for i := range hits {
			title := strings.Join(rapid.SliceOfN(word, 0, 3).Draw(t, "title"), " ")
			body := strings.Join(rapid.SliceOfN(word, 0, 5).Draw(t, "body"), " ")
			hits[i] = textHit(title, body)
		}
		q := strings.Join(rapid.SliceOfN(word, 1, 3).Draw(t, "query"), " ")
		result := models.NewSearchResult(hits...)

		NewScorer(nil).ScoreReranking(result, q, "")

		for i, h := range result.Hits {
			if h.Score() <= rerankThreshold {
				t.Fatalf("hit %d kept with score %v", i, h.Score())
			}
			if i > 0 && result.Hits[i-1].Score() < h.Score() {
				t.Fatalf("hits out of order at %d", i)
			}
		}
	})
}

func TestRandomTerm(t *testing.T) {
	result := models.NewSearchResult(textHit("Searsia", "Search for noobs"))

	assert.Equal(t, "search", RandomTerm(result, "searsia", fixedRandom{n: 0}))
	assert.Equal(t, "noobs", RandomTerm(result, "for", fixedRandom{n: 3}))
}

func TestRandomTermNoCandidates(t *testing.T) {
	assert.Empty(t, RandomTerm(models.NewSearchResult(), "", nil))
	assert.Empty(t, RandomTerm(models.NewSearchResult(textHit("same", "")), "SAME", fixedRandom{}))
}
