package ranking

import "math"

// Normalizer leva scores brutos dos backends de arquivo para a escala 0-1
// usada pelo scorer de seleção.
type Normalizer struct {
	maxObserved float64
}

// NewNormalizer cria um normalizer; maxObserved <= 0 usa o teto do text_match
// do Typesense.
func NewNormalizer(maxObserved float64) *Normalizer {
	if maxObserved <= 0 {
		maxObserved = 1 << 60
	}
	return &Normalizer{maxObserved: maxObserved}
}

// LogNormalize normaliza um score crescente e ilimitado (text_match)
func (n *Normalizer) LogNormalize(score float64) float64 {
	if score <= 0 {
		return 0.0
	}
	normalized := math.Log1p(score) / math.Log1p(n.maxObserved)
	return math.Min(1.0, normalized)
}

// BM25 converte o bm25() do FTS5, negativo e menor quanto melhor, em um
// score positivo no intervalo (0, 1).
func (n *Normalizer) BM25(rank float64) float64 {
	if rank >= 0 {
		return 0.0
	}
	s := -rank
	return s / (1 + s)
}
