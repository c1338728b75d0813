package resource

import (
	"context"
	"encoding/json"
	"maps"
	"math"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search"
	"github.com/prefeitura-rio/searsia-node/internal/search/adapter"
	"github.com/prefeitura-rio/searsia-node/internal/search/query"
	"github.com/prefeitura-rio/searsia-node/internal/search/ranking"
)

const (
	// DefaultRate é a cota diária quando o descritor não define uma
	DefaultRate = 1000
	// DefaultTestQuery é a consulta canário quando o descritor não define uma
	DefaultTestQuery = "searsia"

	priorTolerance = 1e-4
	nameMatchScore = 2.0
)

// Option configura um Resource
type Option func(*Resource)

func WithFetcher(f adapter.Fetcher) Option {
	return func(r *Resource) { r.fetcher = f }
}

func WithExtractor(e adapter.Extractor) Option {
	return func(r *Resource) { r.extractor = e }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resource) { r.now = now }
}

func WithRandom(rnd ranking.Random) Option {
	return func(r *Resource) { r.scorer = ranking.NewScorer(rnd) }
}

// WithDefaultRate define a cota usada quando maxqueriesperday é zero
func WithDefaultRate(rate int) Option {
	return func(r *Resource) {
		if rate > 0 {
			r.defaultRate = rate
		}
	}
}

// Resource é um endpoint da federação: descritor, limiter e saúde
type Resource struct {
	mu          sync.RWMutex
	desc        models.Descriptor
	health      models.ResourceHealth
	nextQuery   string
	defaultRate int

	limiter   *Limiter
	fetcher   adapter.Fetcher
	extractor adapter.Extractor
	scorer    *ranking.Scorer
	now       func() time.Time
}

// New cria um resource a partir do descritor
func New(desc models.Descriptor, opts ...Option) (*Resource, error) {
	if desc.ID == "" {
		return nil, search.Configuration("resource sem identificador")
	}
	if strings.HasPrefix(desc.APITemplate, "file") {
		return nil, search.Configuration("apitemplate 'file' não permitido em %s", desc.ID)
	}

	r := &Resource{
		desc:        copyDescriptor(desc),
		defaultRate: DefaultRate,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = adapter.NewHTTPFetcher(adapter.DefaultTimeout)
	}
	if r.extractor == nil {
		r.extractor = adapter.NewDocumentExtractor()
	}
	if r.scorer == nil {
		r.scorer = ranking.NewScorer(nil)
	}
	if r.desc.MimeType == "" {
		r.desc.MimeType = models.MimeType
	}
	if r.desc.TestQuery == "" {
		r.desc.TestQuery = DefaultTestQuery
	}

	now := r.now()
	r.limiter = NewLimiter(r.rateOf(r.desc), r.now)
	r.health = models.ResourceHealth{UpSince: now, LastUpdated: now}
	return r, nil
}

// NewTombstone cria o marcador de um resource removido
func NewTombstone(id string, opts ...Option) (*Resource, error) {
	return New(models.Descriptor{ID: id, Deleted: true}, opts...)
}

func copyDescriptor(d models.Descriptor) models.Descriptor {
	d.Extractors = maps.Clone(d.Extractors)
	d.Headers = maps.Clone(d.Headers)
	d.PrivateParameters = maps.Clone(d.PrivateParameters)
	d.ResultTypes = slices.Clone(d.ResultTypes)
	if d.Prior != nil {
		p := *d.Prior
		d.Prior = &p
	}
	return d
}

func (r *Resource) rateOf(d models.Descriptor) int {
	if d.MaxQueriesPerDay > 0 {
		return d.MaxQueriesPerDay
	}
	return r.defaultRate
}

func (r *Resource) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.desc.ID
}

// Descriptor devolve uma cópia do descritor, com parâmetros privados
func (r *Resource) Descriptor() models.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyDescriptor(r.desc)
}

// Public devolve o descritor que pode ser compartilhado com outros nós
func (r *Resource) Public() models.Descriptor {
	return r.Descriptor().Public()
}

func (r *Resource) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.desc.Name
}

func (r *Resource) Prior() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.desc.Prior == nil {
		return 0
	}
	return *r.desc.Prior
}

func (r *Resource) IsDeleted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.desc.Deleted
}

func (r *Resource) Rerank() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.desc.Rerank
}

// IsFederated indica se o resource fala o protocolo de federação
func (r *Resource) IsFederated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.desc.MimeType == models.MimeType
}

// HasType indica se o resource declara o tipo de resultado informado
func (r *Resource) HasType(t string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.desc.ResultTypes, t)
}

// HasPrivateParameters indica se há segredos a persistir
func (r *Resource) HasPrivateParameters() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.desc.PrivateParameters) > 0
}

// Allowance expõe a cota atual do limiter
func (r *Resource) Allowance() float64 { return r.limiter.Allowance() }

// Search executa a consulta no resource. Falhas são registradas na saúde
// e devolvidas com a mensagem higienizada; o limite de cota não conta
// como falha.
func (r *Resource) Search(ctx context.Context, q string) (*models.SearchResult, error) {
	desc := r.Descriptor()
	if desc.Deleted {
		return nil, search.Gone("resource %s foi removido", desc.ID)
	}
	if !r.limiter.Allow() {
		return nil, search.RateLimited("limite de consultas atingido para %s", desc.ID)
	}

	result, err := r.search(ctx, desc, q)
	if err != nil {
		return nil, r.fail(desc, err)
	}
	r.succeed()
	return result, nil
}

func (r *Resource) search(ctx context.Context, desc models.Descriptor, q string) (*models.SearchResult, error) {
	target, err := fillTemplate(desc.APITemplate, url.QueryEscape(q), desc.PrivateParameters)
	if err != nil {
		return nil, err
	}
	var body string
	if desc.Post != "" {
		body, err = fillTemplate(desc.Post, encodePostQuery(q, desc.PostEncode), desc.PrivateParameters)
		if err != nil {
			return nil, err
		}
	}

	page, err := r.fetch(ctx, desc, target, body)
	if err != nil {
		return nil, err
	}
	result, err := r.parse(page, desc, target)
	if err != nil {
		return nil, err
	}
	if desc.Rerank != "" && q != "" {
		r.scorer.ScoreReranking(result, q, desc.Rerank)
	}
	result.Query = q
	return result, nil
}

func (r *Resource) fetch(ctx context.Context, desc models.Descriptor, target, body string) ([]byte, error) {
	headers, err := fillHeaders(desc.Headers, desc.PrivateParameters)
	if err != nil {
		return nil, err
	}
	contentType := ""
	if body != "" {
		contentType = desc.PostEncode
	}
	return r.fetcher.Fetch(ctx, adapter.Request{
		URL:         target,
		DisplayURL:  sanitize(target, desc.PrivateParameters),
		Body:        body,
		ContentType: contentType,
		Headers:     headers,
		MimeType:    desc.MimeType,
	})
}

func (r *Resource) parse(page []byte, desc models.Descriptor, baseURL string) (*models.SearchResult, error) {
	if desc.MimeType == models.MimeType {
		result := models.NewSearchResult()
		if err := json.Unmarshal(page, result); err != nil {
			return nil, search.Unavailable(err, "resposta inválida: %v", err)
		}
		return result, nil
	}
	hits, err := r.extractor.Extract(page, desc, baseURL)
	if err != nil {
		return nil, search.Unavailable(err, "falha na extração: %v", err)
	}
	return models.NewSearchResult(hits...), nil
}

// SearchWithoutQuery busca o envelope do resource sem consulta; usado
// para obter o descritor da mother.
func (r *Resource) SearchWithoutQuery(ctx context.Context) (*models.SearchResult, error) {
	desc := r.Descriptor()
	if desc.MimeType != models.MimeType {
		return nil, search.Configuration("resource %s não fala o protocolo de federação", desc.ID)
	}
	if !r.limiter.Allow() {
		return nil, search.RateLimited("limite de consultas atingido para %s", desc.ID)
	}

	target, err := fillTemplate(desc.APITemplate, "", desc.PrivateParameters)
	if err == nil {
		var page []byte
		if page, err = r.fetch(ctx, desc, target, ""); err == nil {
			var result *models.SearchResult
			if result, err = r.parse(page, desc, target); err == nil {
				r.succeed()
				return result, nil
			}
		}
	}
	return nil, r.fail(desc, err)
}

// SearchResource pede a este resource o descritor de outro. Uma resposta
// 410 vira um tombstone.
func (r *Resource) SearchResource(ctx context.Context, id string) (*models.Descriptor, error) {
	desc := r.Descriptor()
	if desc.MimeType != models.MimeType {
		return nil, search.Configuration("resource %s não fala o protocolo de federação", desc.ID)
	}
	template, ok := replaceLastID(desc.APITemplate, desc.ID, id)
	if !ok {
		return nil, search.NotFound("nenhum resource disponível em %s", desc.ID)
	}
	if !r.limiter.Allow() {
		return nil, search.RateLimited("limite de consultas atingido para %s", desc.ID)
	}

	target, err := fillTemplate(template, "", desc.PrivateParameters)
	if err != nil {
		return nil, r.fail(desc, err)
	}
	page, err := r.fetch(ctx, desc, target, "")
	if err != nil {
		if search.KindOf(err) == search.KindGone {
			r.succeed()
			return &models.Descriptor{ID: id, Deleted: true}, nil
		}
		return nil, r.fail(desc, err)
	}

	var env models.Envelope
	if err := json.Unmarshal(page, &env); err != nil {
		return nil, r.fail(desc, search.Unavailable(err, "resposta inválida: %v", err))
	}
	r.succeed()
	if env.Resource == nil {
		return nil, search.NotFound("resource %s desconhecido em %s", id, desc.ID)
	}
	return env.Resource, nil
}

// RandomSearch executa a próxima consulta de amostragem e sorteia a
// seguinte a partir dos hits. Se a consulta de teste falha, o resource é
// considerado indisponível.
func (r *Resource) RandomSearch(ctx context.Context) (*models.SearchResult, error) {
	r.mu.Lock()
	q := r.nextQuery
	if q == "" {
		q = r.desc.TestQuery
	}
	isTest := q == r.desc.TestQuery
	r.nextQuery = ""
	r.mu.Unlock()

	result, err := r.Search(ctx, q)
	if err != nil {
		if search.KindOf(err) != search.KindRateLimit && isTest {
			return nil, search.Unavailable(nil, "consulta de teste falhou em %s: %s", r.ID(), err.Error())
		}
		return nil, err
	}

	next := r.scorer.RandomTerm(result, q)
	r.mu.Lock()
	r.nextQuery = next
	r.mu.Unlock()
	return result, nil
}

// NextQuery é a consulta que a próxima amostragem vai usar
func (r *Resource) NextQuery() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.nextQuery == "" {
		return r.desc.TestQuery
	}
	return r.nextQuery
}

func (r *Resource) succeed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health.OK++
	r.health.LastSuccess = r.now()
}

func (r *Resource) fail(desc models.Descriptor, err error) error {
	msg := sanitize(err.Error(), desc.PrivateParameters)

	r.mu.Lock()
	r.health.Errors++
	r.health.LastError = r.now()
	r.health.LastMessage = msg
	r.mu.Unlock()

	switch search.KindOf(err) {
	case search.KindGone:
		return search.Gone("%s", msg)
	case search.KindConfiguration:
		return search.Configuration("%s", msg)
	}
	return search.Unavailable(nil, "%s", msg)
}

// UpdateWith substitui todos os campos descritivos pelos de fresh. Se algo
// mudou, o resource é tratado como uma nova encarnação e a saúde é
// zerada. Trocar o id é erro de programação.
func (r *Resource) UpdateWith(fresh *Resource) bool {
	if fresh.ID() != r.ID() {
		panic("resource: UpdateWith com id diferente: " + fresh.ID() + " != " + r.ID())
	}
	fd := fresh.Descriptor()

	r.mu.Lock()
	defer r.mu.Unlock()
	changed := !r.descriptorEqual(r.desc, fd) || !maps.Equal(r.desc.PrivateParameters, fd.PrivateParameters)
	r.desc = fd
	r.limiter.setRate(r.rateOf(fd))
	now := r.now()
	if changed {
		r.health.OK = 0
		r.health.Errors = 0
		r.health.LastMessage = ""
		r.health.UpSince = now
	}
	r.health.LastUpdated = now
	return changed
}

// Equal compara os campos descritivos; parâmetros privados, saúde e
// estado do limiter não contam.
func (r *Resource) Equal(other *Resource) bool {
	if other == nil {
		return false
	}
	if r == other {
		return true
	}
	return r.descriptorEqual(r.Descriptor(), other.Descriptor())
}

func (r *Resource) descriptorEqual(a, b models.Descriptor) bool {
	if a.ID != b.ID || a.Name != b.Name || a.MimeType != b.MimeType ||
		a.Rerank != b.Rerank || a.Favicon != b.Favicon || a.Banner != b.Banner ||
		a.Post != b.Post || a.PostEncode != b.PostEncode || a.TestQuery != b.TestQuery ||
		a.ItemPath != b.ItemPath || a.APITemplate != b.APITemplate ||
		a.URLTemplate != b.URLTemplate || a.SuggestTemplate != b.SuggestTemplate ||
		a.Deleted != b.Deleted {
		return false
	}
	if r.rateOf(a) != r.rateOf(b) {
		return false
	}
	if math.Abs(priorOf(a)-priorOf(b)) > priorTolerance {
		return false
	}
	return maps.Equal(a.Extractors, b.Extractors) &&
		maps.Equal(a.Headers, b.Headers) &&
		slices.Equal(a.ResultTypes, b.ResultTypes)
}

func priorOf(d models.Descriptor) float64 {
	if d.Prior == nil {
		return 0
	}
	return *d.Prior
}

// Score pontua o nome e o id do resource contra a consulta
func (r *Resource) Score(q string) float64 {
	r.mu.RLock()
	name, id := r.desc.Name, r.desc.ID
	r.mu.RUnlock()
	if name == "" || q == "" {
		return 0
	}

	terms := map[string]bool{strings.ToLower(id): true}
	for _, t := range query.Tokenize(name) {
		terms[t] = true
	}
	score := 0.0
	for _, t := range query.Tokenize(q) {
		if terms[t] {
			score += nameMatchScore
		}
	}
	return score
}

// Health devolve uma cópia do estado de saúde
func (r *Resource) Health() models.ResourceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health
}

// RestoreHealth recupera a saúde persistida
func (r *Resource) RestoreHealth(h models.ResourceHealth) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = h
}

// IsHealthy é falso quando o último contato terminou em erro
func (r *Resource) IsHealthy() bool {
	h := r.Health()
	return h.Errors == 0 || h.LastSuccess.After(h.LastError)
}

// LastUpdated é o instante da última atualização do descritor
func (r *Resource) LastUpdated() time.Time {
	return r.Health().LastUpdated
}

// Stored devolve o registro durável, com parâmetros privados
func (r *Resource) Stored() models.StoredResource {
	h := r.Health()
	return models.StoredResource{
		Resource: r.Descriptor(),
		Health:   &h,
		Searsia:  models.StoreVersion,
	}
}
