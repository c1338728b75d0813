// Package archive guarda os hits vistos pelo nó e os recupera por
// relevância textual.
package archive

import (
	"context"
	"encoding/json"
)

// Document é um hit pronto para indexação. Stored é o JSON devolvido nas
// consultas; Terms concentra todo o texto pesquisável.
type Document struct {
	ID     string
	Title  string
	Terms  string
	Stored json.RawMessage
}

// Match é um documento recuperado com seu score, em escala 0-1
type Match struct {
	Stored json.RawMessage
	Score  float64
}

// Archive é o arquivo durável de hits. Upsert substitui documentos pelo id.
type Archive interface {
	Upsert(ctx context.Context, docs []Document) error
	Query(ctx context.Context, q string, topN int) ([]Match, error)
	DumpAll(ctx context.Context, fn func(stored json.RawMessage) error) error
	Close() error
}

// Pesos dos campos na consulta: título vale um pouco mais que o resto
const (
	TermsWeight = 1.0
	TitleWeight = 0.02
)
