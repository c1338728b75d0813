package services

import (
	"context"
	"strings"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/observability"
	"github.com/prefeitura-rio/searsia-node/internal/search"
	"github.com/prefeitura-rio/searsia-node/internal/search/cache"
	"github.com/prefeitura-rio/searsia-node/internal/search/ranking"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
	"github.com/prefeitura-rio/searsia-node/internal/search/resource"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultMaxResources é quantos resources a seleção devolve por página
const DefaultMaxResources = 10

// Caminhos de consulta, usados em logs e métricas
const (
	PathLocal  = "local"
	PathRemote = "remote"
)

// SearchService decide entre responder do cache local ou repassar a
// consulta para um resource específico.
type SearchService struct {
	registry     *registry.Registry
	cache        *cache.ResultCache
	scorer       *ranking.Scorer
	logger       *zap.Logger
	metrics      *observability.Metrics
	censor       bool
	maxResources int
}

// SearchOption configura o SearchService
type SearchOption func(*SearchService)

// WithCensor remove query e rid dos hits devolvidos
func WithCensor(censor bool) SearchOption {
	return func(s *SearchService) { s.censor = censor }
}

func WithSearchLogger(logger *zap.Logger) SearchOption {
	return func(s *SearchService) { s.logger = logger }
}

func WithSearchMetrics(m *observability.Metrics) SearchOption {
	return func(s *SearchService) { s.metrics = m }
}

func WithScorer(scorer *ranking.Scorer) SearchOption {
	return func(s *SearchService) { s.scorer = scorer }
}

// NewSearchService cria o roteador de consultas
func NewSearchService(reg *registry.Registry, rc *cache.ResultCache, opts ...SearchOption) *SearchService {
	s := &SearchService{
		registry:     reg,
		cache:        rc,
		scorer:       ranking.NewScorer(nil),
		logger:       zap.NewNop(),
		maxResources: DefaultMaxResources,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search responde a uma consulta. rid vazio ou igual ao id local usa o
// caminho local; page começa em 1.
func (s *SearchService) Search(ctx context.Context, rid, q string, page int) (*models.SearchResult, error) {
	rid = strings.TrimSpace(rid)
	q = strings.TrimSpace(q)
	s.logger.Info("consulta", zap.String("query", q), zap.String("resource_id", rid))

	self := s.registry.Self()
	if rid != "" && (self == nil || rid != self.ID()) {
		s.metrics.QueryServed(PathRemote)
		return s.searchRemote(ctx, rid, q)
	}
	s.metrics.QueryServed(PathLocal)
	return s.searchLocal(ctx, q, page)
}

func (s *SearchService) searchRemote(ctx context.Context, rid, q string) (*models.SearchResult, error) {
	ctx, span := otel.Tracer("search").Start(ctx, "search.remote")
	defer span.End()
	span.SetAttributes(attribute.String("search.resource_id", rid))

	engine, err := s.resolve(ctx, rid)
	if err != nil {
		return nil, err
	}
	public := engine.Public()
	if q == "" {
		return &models.SearchResult{Resource: &public, Version: models.ProtocolVersion}, nil
	}

	var hits []*models.Hit
	if cached, ok := s.cache.CacheSearch(ctx, q, engine.ID()); ok {
		span.SetAttributes(attribute.Bool("search.cached", true))
		hits = responseHits(cached.Hits)
	} else {
		result, err := engine.Search(ctx, q)
		if err != nil {
			s.metrics.ResourceSearched(search.KindOf(err).String())
			s.logger.Warn("resource indisponível", zap.String("resource_id", rid), zap.Error(err))
			return nil, err
		}
		s.metrics.ResourceSearched("ok")
		// só a mother é confiável para rid e rank
		result.RemoveResourceRank()
		hits = responseHits(result.Hits)
		result.AddQueryResourceRankDate(q, engine.ID())
		s.cache.Offer(ctx, result)
	}
	return &models.SearchResult{Hits: hits, Resource: &public, Version: models.ProtocolVersion}, nil
}

// resolve encontra o resource pelo id, perguntando à mother pelos
// desconhecidos e registrando a resposta.
func (s *SearchService) resolve(ctx context.Context, rid string) (*resource.Resource, error) {
	if engine := s.registry.Resolve(rid); engine != nil {
		return engine, nil
	}
	mother := s.registry.Mother()
	if mother == nil {
		return nil, search.NotFound("identificador de resource desconhecido: @%s", rid)
	}
	desc, err := mother.SearchResource(ctx, rid)
	if err != nil {
		s.logger.Warn("resource não encontrado na mother", zap.String("resource_id", rid), zap.Error(err))
		return nil, search.NotFound("resource não encontrado: @%s", rid)
	}
	if desc.ID != rid {
		s.logger.Warn("mother respondeu com outro resource",
			zap.String("resource_id", rid), zap.String("announced", desc.ID))
		return nil, search.NotFound("resource não encontrado: @%s", rid)
	}
	engine, err := s.registry.NewResource(*desc)
	if err != nil {
		return nil, search.NotFound("resource inválido: @%s", rid)
	}
	if err := s.registry.Put(ctx, engine); err != nil {
		return nil, err
	}
	if engine = s.registry.Get(rid); engine == nil {
		return nil, search.NotFound("resource não encontrado: @%s", rid)
	}
	return engine, nil
}

func (s *SearchService) searchLocal(ctx context.Context, q string, page int) (*models.SearchResult, error) {
	ctx, span := otel.Tracer("search").Start(ctx, "search.local")
	defer span.End()

	if page < 1 {
		page = 1
	}
	start := (page - 1) * s.maxResources

	result := models.NewSearchResult()
	if q != "" {
		local, err := s.cache.Search(ctx, q, 0)
		if err != nil {
			s.logger.Warn("arquivo local indisponível", zap.Error(err))
			return nil, search.Unavailable(err, "serviço indisponível: %v", err)
		}
		result = local
		mother := s.registry.Mother()
		if len(result.Hits) == 0 && mother != nil {
			fromMother, err := mother.Search(ctx, q)
			if err != nil {
				s.logger.Warn("mother indisponível", zap.String("resource_id", mother.ID()), zap.Error(err))
			} else {
				result = fromMother
			}
		} else {
			s.scorer.ScoreResourceSelection(result, q, s.registry, s.maxResources, start)
		}
	} else {
		s.scorer.ScoreResourceSelection(result, q, s.registry, s.maxResources, start)
	}
	span.SetAttributes(attribute.Int("search.hits", len(result.Hits)))

	out := &models.SearchResult{Hits: result.Hits, Version: models.ProtocolVersion}
	if s.censor {
		out = out.Censored()
	}
	if self := s.registry.Self(); self != nil {
		public := self.Public()
		out.Resource = &public
	}
	return out, nil
}

// responseHits copia os hits sem os metadados de amostragem
func responseHits(hits []*models.Hit) []*models.Hit {
	out := make([]*models.Hit, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Without(models.FieldQuery, models.FieldRID, models.FieldRank, models.FieldTime))
	}
	return out
}

// Health resume a saúde do registro
func (s *SearchService) Health() registry.HealthSummary {
	return s.registry.Health()
}
