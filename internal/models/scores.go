package models

// ScoredIDs é um mapa ordenado id→score, na ordem de inserção
type ScoredIDs struct {
	ids    []string
	scores map[string]float64
}

func NewScoredIDs() *ScoredIDs {
	return &ScoredIDs{scores: make(map[string]float64)}
}

func (s *ScoredIDs) Add(id string, score float64) {
	if _, ok := s.scores[id]; !ok {
		s.ids = append(s.ids, id)
	}
	s.scores[id] = score
}

func (s *ScoredIDs) Get(id string) (float64, bool) {
	v, ok := s.scores[id]
	return v, ok
}

func (s *ScoredIDs) Remove(id string) {
	if _, ok := s.scores[id]; !ok {
		return
	}
	delete(s.scores, id)
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return
		}
	}
}

// IDs retorna os ids restantes, em ordem
func (s *ScoredIDs) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *ScoredIDs) Len() int { return len(s.ids) }
