package ranking

import (
	"sort"
	"strings"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search/query"
)

// Modelos de rerank conhecidos. Qualquer outro valor usa o scorer geral.
const (
	ModelRandom     = "random"
	ModelBestRandom = "bestrandom"
)

const (
	bodyWeight       = 0.1
	titleWeight      = 0.01
	explorationBonus = 0.01
	explorationHits  = 10
	// hits com score até este valor são descartados
	rerankThreshold = 0.001
)

// ScoreReranking reordena hits vindos do arquivo local segundo o modelo
func (s *Scorer) ScoreReranking(result *models.SearchResult, q, model string) {
	switch model {
	case ModelRandom:
		s.shuffle(result.Hits)
	case ModelBestRandom:
		s.shuffle(result.Hits)
		result.Hits = scoreGeneral(result.Hits, q, explorationHits)
	default:
		result.Hits = scoreGeneral(result.Hits, q, 0)
	}
}

func (s *Scorer) shuffle(hits []*models.Hit) {
	s.rnd.Shuffle(len(hits), func(i, j int) { hits[i], hits[j] = hits[j], hits[i] })
}

// scoreGeneral pontua cada hit pelos termos da consulta no corpo e no título.
// Os primeiros bonusHits sobreviventes recebem um bônus de exploração.
func scoreGeneral(hits []*models.Hit, q string, bonusHits int) []*models.Hit {
	terms := query.Tokenize(q)
	weights := make(map[string]float64, len(terms))

	out := make([]*models.Hit, 0, len(hits))
	for _, hit := range hits {
		score := scoreText(bodyText(hit), terms, weights, bodyWeight)
		score += scoreText(hit.Title(), terms, weights, titleWeight)
		if len(out) < bonusHits {
			score += explorationBonus
		}
		if score <= rerankThreshold {
			continue
		}
		hit.SetScore(score)
		out = append(out, hit)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	return out
}

// scoreText soma fieldWeight para cada termo da consulta presente no texto;
// cada termo conta uma vez por chamada.
func scoreText(text string, terms []string, weights map[string]float64, fieldWeight float64) float64 {
	for _, t := range terms {
		weights[t] = fieldWeight
	}
	score := 0.0
	for _, token := range query.Tokenize(text) {
		if w, ok := weights[token]; ok && w > 0 {
			score += w
			weights[token] = 0
		}
	}
	return score
}

// bodyText é o texto indexável do hit sem título, consulta e rid
func bodyText(hit *models.Hit) string {
	return hit.Without(models.FieldTitle, models.FieldQuery, models.FieldRID).IndexText()
}

// RandomTerm sorteia um termo do conteúdo de um hit aleatório, diferente
// de exclude. Retorna "" se nenhum termo serve.
func RandomTerm(result *models.SearchResult, exclude string, rnd Random) string {
	if len(result.Hits) == 0 {
		return ""
	}
	if rnd == nil {
		rnd = DefaultRandom
	}
	hit := result.Hits[rnd.IntN(len(result.Hits))]
	text := strings.ToLower(strings.Join([]string{
		hit.Title(),
		hit.Description(),
		bodyText(hit.Without(models.FieldDescription)),
	}, " "))

	tokens := query.Split(text)
	if len(tokens) == 0 {
		return ""
	}
	exclude = strings.ToLower(exclude)
	start := rnd.IntN(len(tokens))
	for i := range tokens {
		term := tokens[(start+i)%len(tokens)]
		if term != "" && term != exclude {
			return term
		}
	}
	return ""
}

// RandomTerm usa a fonte de aleatoriedade do scorer
func (s *Scorer) RandomTerm(result *models.SearchResult, exclude string) string {
	return RandomTerm(result, exclude, s.rnd)
}
