package services

import (
	"context"
	"time"

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

const (
	// DefaultStaleAfter é a idade a partir da qual um resource é revalidado na mother
	DefaultStaleAfter = 2 * time.Hour
	// maxLookups limita as consultas à mother por amostra
	maxLookups = 10
)

// DaemonOption configura o FederationDaemon
type DaemonOption func(*FederationDaemon)

func WithDaemonLogger(logger *zap.Logger) DaemonOption {
	return func(d *FederationDaemon) { d.logger = logger }
}

func WithDaemonMetrics(m *observability.Metrics) DaemonOption {
	return func(d *FederationDaemon) { d.metrics = m }
}

func WithDaemonRandom(rnd ranking.Random) DaemonOption {
	return func(d *FederationDaemon) { d.rnd = rnd }
}

func WithDaemonClock(now func() time.Time) DaemonOption {
	return func(d *FederationDaemon) { d.now = now }
}

func WithStaleAfter(age time.Duration) DaemonOption {
	return func(d *FederationDaemon) { d.staleAfter = age }
}

// FederationDaemon amostra resources periodicamente: mantém a saúde e os
// descritores atualizados e aquece o cache com os resultados.
type FederationDaemon struct {
	registry     *registry.Registry
	cache        *cache.ResultCache
	pollInterval time.Duration
	staleAfter   time.Duration

	rnd     ranking.Random
	now     func() time.Time
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewFederationDaemon(reg *registry.Registry, rc *cache.ResultCache, pollInterval time.Duration, opts ...DaemonOption) *FederationDaemon {
	d := &FederationDaemon{
		registry:     reg,
		cache:        rc,
		pollInterval: pollInterval,
		staleAfter:   DefaultStaleAfter,
		rnd:          ranking.DefaultRandom,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executa o laço até o contexto ser cancelado. O cancelamento só é
// observado entre ticks.
func (d *FederationDaemon) Run(ctx context.Context) error {
	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		d.Tick(context.WithoutCancel(ctx))
		timer.Reset(d.pollInterval)
	}
}

// Tick executa uma rodada: descarrega o cache se preciso, senão amostra
// a mother ou um resource qualquer.
func (d *FederationDaemon) Tick(ctx context.Context) {
	ctx, span := otel.Tracer("federation").Start(ctx, "federation.tick")
	defer span.End()
	defer d.reportResources()

	flushed, err := d.cache.CheckFlush(ctx)
	if err != nil {
		d.logger.Error("falha ao descarregar cache", zap.Error(err))
	}
	if flushed {
		span.SetAttributes(attribute.Bool("federation.flushed", true))
		if err := d.registry.Flush(ctx); err != nil {
			d.logger.Error("falha ao gravar saúde dos resources", zap.Error(err))
		}
		return
	}

	mother := d.registry.Mother()
	if mother != nil && d.rnd.IntN(2) == 0 {
		span.SetAttributes(attribute.String("federation.sample", mother.ID()))
		d.sampleMother(ctx, mother)
		return
	}
	if engine := d.registry.GetRandom(); engine != nil {
		span.SetAttributes(attribute.String("federation.sample", engine.ID()))
		d.sampleResource(ctx, engine)
	}
}

func (d *FederationDaemon) sampleMother(ctx context.Context, mother *resource.Resource) {
	result, err := mother.RandomSearch(ctx)
	if err != nil {
		d.logSampleFailure(mother.ID(), err)
		return
	}

	// resposta sem identificação não conta como a mother
	if result.Resource == nil || result.Resource.ID != mother.ID() {
		announced := ""
		if result.Resource != nil {
			announced = result.Resource.ID
		}
		err := search.ProtocolMismatch("mother respondeu como %q, esperado %s", announced, mother.ID())
		d.logger.Warn("anomalia de protocolo na amostra da mother", zap.String("sample", mother.ID()), zap.Error(err))
		return
	}
	d.refreshMotherAndSelf(ctx, mother, *result.Resource)
	d.testResources(ctx, mother, result)

	result.AddQueryResourceRankDate(result.Query, mother.ID())
	d.cache.Offer(ctx, result)
	d.logger.Info("amostra", zap.String("sample", mother.ID()), zap.String("query", result.Query))
}

// refreshMotherAndSelf atualiza a mother com o descritor anunciado,
// mantendo a URL configurada, e espelha o descritor no nó local.
func (d *FederationDaemon) refreshMotherAndSelf(ctx context.Context, mother *resource.Resource, announced models.Descriptor) {
	current := mother.Descriptor()
	announced.APITemplate = current.APITemplate
	announced.PrivateParameters = current.PrivateParameters
	fresh, err := d.registry.NewResource(announced)
	if err != nil {
		d.logger.Warn("descritor da mother inválido", zap.Error(err))
		return
	}
	if err := d.registry.PutMother(fresh); err != nil {
		d.logger.Warn("mother não atualizada", zap.Error(err))
		return
	}

	self := d.registry.Self()
	if self == nil {
		return
	}
	mirror := announced.Public()
	own := self.Descriptor()
	mirror.ID = own.ID
	mirror.APITemplate = own.APITemplate
	fresh, err = d.registry.NewResource(mirror)
	if err != nil {
		return
	}
	if err := d.registry.PutMyself(fresh); err != nil {
		d.logger.Warn("descritor local não atualizado", zap.Error(err))
	}
}

// testResources consulta a mother sobre até maxLookups resources citados
// nos hits que são desconhecidos ou antigos.
func (d *FederationDaemon) testResources(ctx context.Context, mother *resource.Resource, result *models.SearchResult) {
	lookups := 0
	seen := make(map[string]bool)
	for _, hit := range result.Hits {
		if lookups >= maxLookups {
			return
		}
		rid := hit.RID()
		if rid == "" || seen[rid] || d.isReserved(rid) {
			continue
		}
		seen[rid] = true
		if known := d.registry.Get(rid); known != nil && d.now().Sub(known.LastUpdated()) <= d.staleAfter {
			continue
		}

		lookups++
		desc, err := mother.SearchResource(ctx, rid)
		if err != nil {
			d.logger.Warn("não foi possível obter resource da mother",
				zap.String("sample", mother.ID()), zap.String("resource_id", rid), zap.Error(err))
			return
		}
		if desc.ID != rid {
			d.logger.Warn("mother respondeu com outro resource",
				zap.String("resource_id", rid), zap.String("announced", desc.ID))
			continue
		}
		engine, err := d.registry.NewResource(*desc)
		if err != nil {
			d.logger.Warn("descritor recebido inválido", zap.String("resource_id", rid), zap.Error(err))
			continue
		}
		if err := d.registry.Put(ctx, engine); err != nil {
			d.logger.Error("resource recebido não registrado", zap.String("resource_id", rid), zap.Error(err))
		}
	}
}

func (d *FederationDaemon) isReserved(id string) bool {
	if m := d.registry.Mother(); m != nil && m.ID() == id {
		return true
	}
	if me := d.registry.Self(); me != nil && me.ID() == id {
		return true
	}
	return false
}

// sampleResource amostra um resource que não é a mother: rid, rank e query
// anunciados por ele são descartados.
func (d *FederationDaemon) sampleResource(ctx context.Context, engine *resource.Resource) {
	result, err := engine.RandomSearch(ctx)
	if err != nil {
		d.logSampleFailure(engine.ID(), err)
		return
	}
	result.RemoveResourceRank()
	for _, hit := range result.Hits {
		hit.Delete(models.FieldQuery)
	}
	result.AddQueryResourceRankDate(result.Query, engine.ID())
	d.cache.Offer(ctx, result)
	d.logger.Info("amostra", zap.String("sample", engine.ID()), zap.String("query", result.Query))
}

func (d *FederationDaemon) logSampleFailure(id string, err error) {
	kind := search.KindOf(err)
	d.metrics.ResourceSearched(kind.String())
	switch kind {
	case search.KindRateLimit:
		d.logger.Debug("amostra adiada", zap.String("sample", id), zap.Error(err))
	case search.KindGone:
		d.logger.Info("resource removido", zap.String("sample", id), zap.Error(err))
	default:
		d.logger.Warn("amostra falhou", zap.String("sample", id), zap.Error(err))
	}
}

func (d *FederationDaemon) reportResources() {
	if d.metrics == nil {
		return
	}
	var ok, failing, deleted int
	for _, r := range d.registry.All() {
		switch {
		case r.IsDeleted():
			deleted++
		case r.IsHealthy():
			ok++
		default:
			failing++
		}
	}
	d.metrics.SetResources(ok, failing, deleted)
}
