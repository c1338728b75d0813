// Package cache mantém os resultados vistos pelo nó: uma fila limitada de
// páginas recém-servidas, descarregada em lote no arquivo durável, e um
// nível de correspondência exata por (query, resource).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/observability"
	"github.com/prefeitura-rio/searsia-node/internal/search/archive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// MinCapacity é o menor tamanho de fila aceito
	MinCapacity = 30
	// DefaultTopN é o número de hits devolvidos por Search
	DefaultTopN = 80
)

// Option configura o ResultCache
type Option func(*ResultCache)

// WithExactStore troca o nível exato em memória (ex.: Redis)
func WithExactStore(s ExactStore) Option {
	return func(c *ResultCache) { c.exact = s }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *ResultCache) { c.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *ResultCache) { c.metrics = m }
}

// ResultCache é seguro para uso concorrente. Offer nunca bloqueia.
type ResultCache struct {
	queue    chan *models.SearchResult
	capacity int
	archive  archive.Archive
	exact    ExactStore

	flushMu sync.Mutex
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Open prepara o cache sobre o arquivo e grava o hit inicial do Searsia
func Open(ctx context.Context, arch archive.Archive, capacity int, opts ...Option) (*ResultCache, error) {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	c := &ResultCache{
		queue:    make(chan *models.SearchResult, capacity),
		capacity: capacity,
		archive:  arch,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exact == nil {
		c.exact = NewLRUStore(capacity, 0)
	}

	seed := models.NewHitWith("Searsia", "Search for noobs", "http://searsia.org", "http://searsia.org/images/searsia.png")
	doc, err := documentOf(seed)
	if err != nil {
		return nil, err
	}
	if err := arch.Upsert(ctx, []archive.Document{doc}); err != nil {
		return nil, fmt.Errorf("gravar hit inicial: %w", err)
	}
	return c, nil
}

// Offer enfileira o resultado e o registra no nível exato. Com a fila
// cheia o resultado é descartado.
func (c *ResultCache) Offer(ctx context.Context, result *models.SearchResult) {
	if result == nil {
		return
	}
	if result.ResourceID != "" {
		if data, err := json.Marshal(result); err == nil {
			c.exact.Set(ctx, ExactKey(result.Query, result.ResourceID), data)
		}
	}
	select {
	case c.queue <- result:
	default:
		c.metrics.CacheDropped()
		c.logger.Debug("fila do cache cheia, resultado descartado",
			zap.String("query", result.Query),
			zap.String("resource_id", result.ResourceID))
	}
}

// Len retorna a ocupação atual da fila
func (c *ResultCache) Len() int { return len(c.queue) }

func (c *ResultCache) flushLimit() int { return c.capacity/2 - 1 }

// CheckFlush descarrega a fila quando passa da metade da capacidade e
// informa se descarregou.
func (c *ResultCache) CheckFlush(ctx context.Context) (bool, error) {
	if len(c.queue) <= c.flushLimit() {
		return false, nil
	}
	return true, c.Flush(ctx)
}

// Flush esvazia a fila e grava no arquivo cada hit com id e título
func (c *ResultCache) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	ctx, span := otel.Tracer("cache").Start(ctx, "cache.flush")
	defer span.End()

	var docs []archive.Document
	results := 0
drain:
	for {
		select {
		case result := <-c.queue:
			results++
			for _, hit := range result.Hits {
				if hit.Title() == "" {
					continue
				}
				doc, err := documentOf(hit)
				if err != nil {
					c.logger.Warn("hit ignorado no flush", zap.String("id", hit.ID()), zap.Error(err))
					continue
				}
				docs = append(docs, doc)
			}
		default:
			break drain
		}
	}
	span.SetAttributes(attribute.Int("cache.results", results), attribute.Int("cache.hits", len(docs)))

	if err := c.archive.Upsert(ctx, docs); err != nil {
		span.RecordError(err)
		return fmt.Errorf("descarregar cache: %w", err)
	}
	c.metrics.CacheFlushed()
	c.logger.Debug("cache descarregado", zap.Int("results", results), zap.Int("hits", len(docs)))
	return nil
}

// documentOf serializa o hit sem os scores, que são recalculados por query
func documentOf(hit *models.Hit) (archive.Document, error) {
	clean := hit.Without(models.FieldScore, models.FieldRScore)
	stored, err := json.Marshal(clean)
	if err != nil {
		return archive.Document{}, err
	}
	return archive.Document{
		ID:     clean.ID(),
		Title:  clean.Title(),
		Terms:  clean.IndexText(),
		Stored: stored,
	}, nil
}

// Search busca no arquivo por relevância. topN <= 0 usa DefaultTopN.
func (c *ResultCache) Search(ctx context.Context, q string, topN int) (*models.SearchResult, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}
	matches, err := c.archive.Query(ctx, q, topN)
	if err != nil {
		return nil, err
	}

	result := models.NewSearchResult()
	result.Query = q
	for _, m := range matches {
		hit := models.NewHit()
		if err := json.Unmarshal(m.Stored, hit); err != nil {
			c.logger.Warn("hit corrompido no arquivo", zap.Error(err))
			continue
		}
		hit.Delete(models.FieldQuery)
		hit.SetScore(m.Score)
		result.AddHit(hit)
	}
	return result, nil
}

// CacheSearch procura a página servida para exatamente (q, resourceID)
func (c *ResultCache) CacheSearch(ctx context.Context, q, resourceID string) (*models.SearchResult, bool) {
	data, ok := c.exact.Get(ctx, ExactKey(q, resourceID))
	if !ok {
		return nil, false
	}
	result := models.NewSearchResult()
	if err := json.Unmarshal(data, result); err != nil {
		return nil, false
	}
	result.Query = q
	result.ResourceID = resourceID
	return result, true
}

// Dump percorre todos os hits guardados no arquivo
func (c *ResultCache) Dump(ctx context.Context, fn func(stored json.RawMessage) error) error {
	return c.archive.DumpAll(ctx, fn)
}

// Close descarrega o que restou na fila
func (c *ResultCache) Close(ctx context.Context) error {
	if err := c.Flush(ctx); err != nil {
		return err
	}
	return c.archive.Close()
}
