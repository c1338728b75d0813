// Package typesense implementa o arquivo de hits sobre uma collection do
// Typesense, alternativa ao FTS5 local.
package typesense

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prefeitura-rio/searsia-node/internal/config"
	"github.com/prefeitura-rio/searsia-node/internal/search/archive"
	"github.com/prefeitura-rio/searsia-node/internal/search/ranking"
	"github.com/typesense/typesense-go/v3/typesense"
	"github.com/typesense/typesense-go/v3/typesense/api"
	"github.com/typesense/typesense-go/v3/typesense/api/pointer"
)

// query_by_weights só aceita inteiros: terms 1.0 e title 0.02 viram 50:1
const (
	queryBy        = "terms,title"
	queryByWeights = "50,1"
	dumpPageSize   = 250
)

type Client struct {
	client     *typesense.Client
	collection string
	normalizer *ranking.Normalizer
}

func NewClient(cfg *config.Config, collection string) *Client {
	typesenseClient := typesense.NewClient(
		typesense.WithServer(fmt.Sprintf("%s://%s:%s", cfg.TypesenseProtocol, cfg.TypesenseHost, cfg.TypesensePort)),
		typesense.WithAPIKey(cfg.TypesenseAPIKey),
	)

	return &Client{
		client:     typesenseClient,
		collection: collection,
		normalizer: ranking.NewNormalizer(0),
	}
}

// Ping verifica a conectividade com o Typesense
func (c *Client) Ping(ctx context.Context) error {
	healthy, err := c.client.Health(ctx, 2*time.Second)
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("typesense não saudável")
	}
	return nil
}

// EnsureCollection cria a collection de hits se ela ainda não existir
func (c *Client) EnsureCollection(ctx context.Context) error {
	_, err := c.client.Collection(c.collection).Retrieve(ctx)
	if err == nil {
		return nil
	}

	errMsg := err.Error()
	if !strings.Contains(errMsg, "404") && !strings.Contains(errMsg, "Not found") && !strings.Contains(errMsg, "Not Found") {
		return err
	}

	schema := &api.CollectionSchema{
		Name: c.collection,
		Fields: []api.Field{
			{Name: "title", Type: "string"},
			{Name: "terms", Type: "string"},
			{Name: "stored", Type: "string", Index: pointer.False(), Optional: pointer.True()},
		},
	}

	if _, err := c.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("erro ao criar collection %s: %w", c.collection, err)
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, docs []archive.Document) error {
	for _, d := range docs {
		doc := map[string]interface{}{
			"id":     d.ID,
			"title":  d.Title,
			"terms":  d.Terms,
			"stored": string(d.Stored),
		}
		if _, err := c.client.Collection(c.collection).Documents().Upsert(ctx, doc, &api.DocumentIndexParameters{}); err != nil {
			return fmt.Errorf("erro ao gravar hit %s: %w", d.ID, err)
		}
	}
	return nil
}

// Query busca os termos em OR (drop_tokens) ordenando por text_match
func (c *Client) Query(ctx context.Context, q string, topN int) ([]archive.Match, error) {
	if strings.TrimSpace(q) == "" || topN <= 0 {
		return nil, nil
	}

	page := 1
	dropThreshold := topN
	searchParams := &api.SearchCollectionParams{
		Q:                   &q,
		QueryBy:             pointer.String(queryBy),
		QueryByWeights:      pointer.String(queryByWeights),
		PerPage:             &topN,
		Page:                &page,
		IncludeFields:       pointer.String("stored"),
		DropTokensThreshold: &dropThreshold,
		SortBy:              pointer.String("_text_match:desc"),
	}

	result, err := c.client.Collection(c.collection).Documents().Search(ctx, searchParams)
	if err != nil {
		return nil, fmt.Errorf("erro na busca do arquivo: %w", err)
	}
	if result.Hits == nil {
		return nil, nil
	}

	out := make([]archive.Match, 0, len(*result.Hits))
	for _, hit := range *result.Hits {
		stored := storedOf(hit.Document)
		if stored == nil {
			continue
		}
		var textMatch float64
		if hit.TextMatch != nil {
			textMatch = float64(*hit.TextMatch)
		}
		out = append(out, archive.Match{Stored: stored, Score: c.normalizer.LogNormalize(textMatch)})
	}
	return out, nil
}

// DumpAll percorre a collection página a página
func (c *Client) DumpAll(ctx context.Context, fn func(stored json.RawMessage) error) error {
	for page := 1; ; page++ {
		perPage := dumpPageSize
		searchParams := &api.SearchCollectionParams{
			Q:       pointer.String("*"),
			Page:    &page,
			PerPage: &perPage,
		}
		result, err := c.client.Collection(c.collection).Documents().Search(ctx, searchParams)
		if err != nil {
			return fmt.Errorf("erro ao listar hits: %w", err)
		}
		if result.Hits == nil || len(*result.Hits) == 0 {
			return nil
		}
		for _, hit := range *result.Hits {
			if stored := storedOf(hit.Document); stored != nil {
				if err := fn(stored); err != nil {
					return err
				}
			}
		}
		if len(*result.Hits) < perPage {
			return nil
		}
	}
}

func (c *Client) Close() error { return nil }

func storedOf(doc *map[string]interface{}) json.RawMessage {
	if doc == nil {
		return nil
	}
	s, ok := (*doc)["stored"].(string)
	if !ok || s == "" {
		return nil
	}
	return json.RawMessage(s)
}

var _ archive.Archive = (*Client)(nil)
