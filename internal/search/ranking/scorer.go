package ranking

import (
	"math/rand/v2"
	"sort"

	"github.com/prefeitura-rio/searsia-node/internal/models"
)

const (
	// hitScoreWeight pondera o score local de um hit frente ao prior do resource
	hitScoreWeight = 0.05
	// maxHitsPerResource limita quantos hits de um mesmo resource sobrevivem
	maxHitsPerResource = 4
)

// Catalog é o que a seleção de resources precisa do registro
type Catalog interface {
	TopValuesNotDeleted(query, typeFilter string, max int) *models.ScoredIDs
	Lookup(id string) (prior float64, deleted bool, ok bool)
}

// Random é a fonte de aleatoriedade dos modelos de rerank
type Random interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int                     { return rand.IntN(n) }
func (globalRandom) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// DefaultRandom usa o gerador global, seguro para uso concorrente
var DefaultRandom Random = globalRandom{}

// Scorer aplica os algoritmos de ranking sobre um SearchResult
type Scorer struct {
	rnd Random
}

// NewScorer cria um scorer; rnd nil usa DefaultRandom
func NewScorer(rnd Random) *Scorer {
	if rnd == nil {
		rnd = DefaultRandom
	}
	return &Scorer{rnd: rnd}
}

// ScoreResourceSelection ordena hits de vários resources pela qualidade do
// resource, mantendo no máximo quatro hits por resource, acrescenta
// marcadores para resources relevantes que não trouxeram hits e recorta a
// janela [start, start+max) de resources distintos.
func (s *Scorer) ScoreResourceSelection(result *models.SearchResult, query string, catalog Catalog, max, start int) {
	topEngines := catalog.TopValuesNotDeleted(query, "", max+start)

	// processa primeiro os hits de maior score, para que o melhor de cada
	// resource seja sempre o primeiro visto
	hits := make([]*models.Hit, len(result.Hits))
	copy(hits, result.Hits)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score() > hits[j].Score() })

	maxScore := make(map[string]float64)
	kept := make(map[string]int)
	out := make([]*models.Hit, 0, len(hits)+topEngines.Len())

	for _, hit := range hits {
		rid := hit.RID()
		if rid == "" {
			hit.SetRScore(hit.Score() * hitScoreWeight)
			out = append(out, hit)
			continue
		}

		prior, deleted, known := catalog.Lookup(rid)
		if known && deleted {
			continue
		}
		effectivePrior := prior
		if top, ok := topEngines.Get(rid); ok {
			if top > effectivePrior {
				effectivePrior = top
			}
			topEngines.Remove(rid)
		}

		combined := effectivePrior + hit.Score()*hitScoreWeight
		resourceMax, seen := maxScore[rid]
		if !seen || combined > resourceMax {
			maxScore[rid] = combined
			kept[rid] = 0
			resourceMax = combined
		} else {
			kept[rid]++
			if kept[rid] >= maxHitsPerResource {
				continue
			}
		}
		hit.SetScore(combined)
		hit.SetRScore(resourceMax)
		out = append(out, hit)
	}

	for _, rid := range topEngines.IDs() {
		score, _ := topEngines.Get(rid)
		placeholder := models.NewHit()
		placeholder.SetString(models.FieldRID, rid)
		placeholder.SetScore(score)
		placeholder.SetRScore(score)
		out = append(out, placeholder)
	}

	sortDescending(out)
	result.Hits = out
	SelectBestResources(result, max, start)
}

// SelectBestResources mantém os hits dos resources distintos de posição
// start até start+max-1. A lista já deve estar ordenada.
func SelectBestResources(result *models.SearchResult, max, start int) {
	first, last := -1, len(result.Hits)
	distinct := 0
	lastRID := ""
	for i, hit := range result.Hits {
		rid := hit.RID()
		if i > 0 && rid == lastRID {
			continue
		}
		lastRID = rid
		if distinct == start {
			first = i
		}
		distinct++
		if distinct > start+max {
			last = i
			break
		}
	}
	if first < 0 {
		result.Hits = []*models.Hit{}
		return
	}
	result.Hits = result.Hits[first:last]
}

func sortDescending(hits []*models.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Compare(hits[j]) > 0
	})
}
