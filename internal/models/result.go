package models

import (
	"encoding/json"
	"time"
)

const (
	// MimeType é o tipo de mídia do protocolo de federação
	MimeType         = "application/searsia+json"
	MimeTypeEncoding = MimeType + "; charset=utf-8"
	ProtocolVersion  = "v1.1.0"
	StoreVersion     = "v1"
)

const hitTimeLayout = "2006-01-02 15:04:05"

// SearchResult é uma página de hits, opcionalmente acompanhada do
// descritor do resource que a produziu.
type SearchResult struct {
	Hits     []*Hit
	Resource *Descriptor
	Version  string

	// Query e ResourceID identificam o resultado na fila do cache;
	// não fazem parte do envelope.
	Query      string
	ResourceID string
}

// Envelope é o formato de resposta da federação
type Envelope struct {
	Hits     []*Hit      `json:"hits"`
	Resource *Descriptor `json:"resource,omitempty"`
	Searsia  string      `json:"searsia,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// ErrorResponse é o corpo de erro do protocolo
type ErrorResponse struct {
	Searsia string `json:"searsia"`
	Error   string `json:"error"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Searsia: ProtocolVersion, Error: message}
}

func NewSearchResult(hits ...*Hit) *SearchResult {
	return &SearchResult{Hits: append([]*Hit(nil), hits...)}
}

func (r *SearchResult) AddHit(h *Hit) {
	r.Hits = append(r.Hits, h)
}

// AddQueryResourceRankDate marca cada hit com a query, o resource, a
// posição e a data, sem sobrescrever valores já existentes.
func (r *SearchResult) AddQueryResourceRankDate(query, resourceID string) {
	now := time.Now().Format(hitTimeLayout)
	for i, h := range r.Hits {
		h.PutIfEmpty(FieldQuery, StringValue(query))
		h.PutIfEmpty(FieldRID, StringValue(resourceID))
		h.PutIfEmpty(FieldRank, NumberValue(float64(i+1)))
		h.PutIfEmpty(FieldTime, StringValue(now))
	}
	r.Query = query
	r.ResourceID = resourceID
}

// RemoveResourceRank remove rid e rank dos hits: só a mother é confiável
// para fatos da federação.
func (r *SearchResult) RemoveResourceRank() {
	for _, h := range r.Hits {
		h.Delete(FieldRID)
		h.Delete(FieldRank)
	}
}

// Censored devolve uma cópia sem query, rid, score e rscore em cada hit
func (r *SearchResult) Censored() *SearchResult {
	out := &SearchResult{
		Resource:   r.Resource,
		Version:    r.Version,
		Query:      r.Query,
		ResourceID: r.ResourceID,
		Hits:       make([]*Hit, 0, len(r.Hits)),
	}
	for _, h := range r.Hits {
		out.Hits = append(out.Hits, h.Without(FieldQuery, FieldRID, FieldScore, FieldRScore))
	}
	return out
}

func (r *SearchResult) MarshalJSON() ([]byte, error) {
	hits := r.Hits
	if hits == nil {
		hits = []*Hit{}
	}
	return json.Marshal(Envelope{Hits: hits, Resource: r.Resource, Searsia: r.Version})
}

func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	r.Hits = r.Hits[:0]
	for _, h := range env.Hits {
		if h != nil {
			r.Hits = append(r.Hits, h)
		}
	}
	r.Resource = env.Resource
	r.Version = env.Searsia
	return nil
}
