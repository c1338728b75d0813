package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search"
	"github.com/prefeitura-rio/searsia-node/internal/search/ranking"
	"github.com/prefeitura-rio/searsia-node/internal/search/resource"
)

// Option configura o Registry
type Option func(*Registry)

// WithSelfFile define onde o descritor deste nó é gravado
func WithSelfFile(path string) Option {
	return func(r *Registry) { r.selfPath = path }
}

// WithMotherFile define onde o último descritor da mother é gravado
func WithMotherFile(path string) Option {
	return func(r *Registry) { r.motherPath = path }
}

// WithResourceOptions são aplicadas a todo resource criado pelo registro
func WithResourceOptions(opts ...resource.Option) Option {
	return func(r *Registry) { r.resourceOpts = append(r.resourceOpts, opts...) }
}

func WithRandom(rnd ranking.Random) Option {
	return func(r *Registry) { r.rnd = rnd }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// Registry é o mapa durável de resources conhecidos, com a mother e o
// próprio nó em posições separadas. Escritas são serializadas; leituras
// podem ver um estado alguns instantes defasado.
type Registry struct {
	writeMu sync.Mutex

	mu        sync.RWMutex
	resources map[string]*resource.Resource
	ids       []string
	mother    *resource.Resource
	self      *resource.Resource

	store        Store
	selfPath     string
	motherPath   string
	resourceOpts []resource.Option
	rnd          ranking.Random
	logger       *zap.Logger
}

// HealthSummary resume a saúde dos resources ativos e da mother
type HealthSummary struct {
	OK          int     `json:"enginesok"`
	Errors      int     `json:"engineserr"`
	LastMessage string  `json:"lastmessage,omitempty"`
	MaxPrior    float64 `json:"maxprior"`
}

func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		resources: make(map[string]*resource.Resource),
		store:     store,
		rnd:       ranking.DefaultRandom,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewResource cria um resource com as opções do registro
func (r *Registry) NewResource(desc models.Descriptor) (*resource.Resource, error) {
	return resource.New(desc, r.resourceOpts...)
}

// Load lê os resources persistidos e o descritor deste nó. Registros
// corrompidos são registrados em log e ignorados.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.store.LoadAll(ctx)
	if err != nil && records == nil {
		return err
	}
	if err != nil {
		r.logger.Warn("Registros de resources ignorados", zap.Error(err))
	}

	r.mu.Lock()
	for _, rec := range records {
		res, err := r.NewResource(rec.Resource)
		if err != nil {
			r.logger.Warn("Resource persistido inválido", zap.String("id", rec.Resource.ID), zap.Error(err))
			continue
		}
		if rec.Health != nil {
			res.RestoreHealth(*rec.Health)
		}
		r.insertLocked(res)
	}
	r.mu.Unlock()

	self, err := r.loadDescriptor(r.selfPath)
	if err != nil {
		return err
	}
	mother, err := r.loadDescriptor(r.motherPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if self != nil {
		r.self = self
	}
	if mother != nil && (self == nil || self.ID() != mother.ID()) {
		if _, known := r.resources[mother.ID()]; !known {
			r.mother = mother
		}
	}
	return nil
}

// loadDescriptor lê um descritor avulso; arquivo ilegível vira log
func (r *Registry) loadDescriptor(path string) (*resource.Resource, error) {
	if path == "" {
		return nil, nil
	}
	desc, err := readDescriptorFile(path)
	if err != nil {
		r.logger.Warn("Descritor ilegível", zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	if desc == nil {
		return nil, nil
	}
	return r.NewResource(*desc)
}

func (r *Registry) insertLocked(res *resource.Resource) {
	id := res.ID()
	if _, ok := r.resources[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.resources[id] = res
}

// checkReservedLocked falha se id pertence à mother ou a este nó
func (r *Registry) checkReservedLocked(id string) error {
	if r.mother != nil && r.mother.ID() == id {
		return search.Configuration("id %s conflita com a mother", id)
	}
	if r.self != nil && r.self.ID() == id {
		return search.Configuration("id %s conflita com o id local", id)
	}
	return nil
}

// Put inclui ou atualiza um resource. Um resource existente é atualizado
// no lugar, preservando limiter e amostragem; a escrita durável só ocorre
// quando algo mudou.
func (r *Registry) Put(ctx context.Context, res *resource.Resource) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	id := res.ID()
	r.mu.RLock()
	err := r.checkReservedLocked(id)
	old := r.resources[id]
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	target := res
	if old != nil {
		if !old.UpdateWith(res) {
			return nil
		}
		target = old
	}
	if err := r.store.Save(ctx, target.Stored()); err != nil {
		return err
	}
	if old == nil {
		r.mu.Lock()
		r.insertLocked(res)
		r.mu.Unlock()
	}
	return nil
}

// Delete remove fisicamente um resource. Para propagar a remoção na rede
// use um tombstone.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if !r.Contains(id) {
		return search.NotFound("resource %s não encontrado", id)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resources, id)
	for i, v := range r.ids {
		if v == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Registry) Get(id string) *resource.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources[id]
}

func (r *Registry) Contains(id string) bool {
	return r.Get(id) != nil
}

func (r *Registry) Mother() *resource.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mother
}

func (r *Registry) Self() *resource.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.self
}

// Resolve procura o id entre os resources, a mother e este nó
func (r *Registry) Resolve(id string) *resource.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if res, ok := r.resources[id]; ok {
		return res
	}
	if r.mother != nil && r.mother.ID() == id {
		return r.mother
	}
	if r.self != nil && r.self.ID() == id {
		return r.self
	}
	return nil
}

// PutMother define a mother ou atualiza a atual. A mother nunca muda de id.
func (r *Registry) PutMother(mother *resource.Resource) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	id := mother.ID()
	if _, ok := r.resources[id]; ok {
		return search.Configuration("id da mother %s já é um resource conhecido", id)
	}
	if r.self != nil && r.self.ID() == id {
		return search.Configuration("id da mother %s conflita com o id local", id)
	}
	switch {
	case r.mother == nil:
		r.mother = mother
	case r.mother.ID() != id:
		return search.ProtocolMismatch("mother mudou de id: %s != %s", id, r.mother.ID())
	default:
		r.mother.UpdateWith(mother)
	}
	if r.motherPath != "" {
		if err := writeDescriptorFile(r.motherPath, r.mother.Descriptor()); err != nil {
			r.logger.Error("Falha ao gravar descritor da mother", zap.String("path", r.motherPath), zap.Error(err))
		}
	}
	return nil
}

// PutMyself define o descritor deste nó e o grava em disco
func (r *Registry) PutMyself(self *resource.Resource) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	id := self.ID()
	if _, ok := r.resources[id]; ok {
		return search.Configuration("id local %s já é um resource conhecido", id)
	}
	if r.mother != nil && r.mother.ID() == id {
		return search.Configuration("id local %s conflita com a mother", id)
	}
	if r.self != nil && r.self.ID() == id {
		r.self.UpdateWith(self)
	} else {
		r.self = self
	}
	if r.selfPath != "" {
		if err := writeDescriptorFile(r.selfPath, r.self.Descriptor()); err != nil {
			r.logger.Error("Falha ao gravar descritor local", zap.String("path", r.selfPath), zap.Error(err))
		}
	}
	return nil
}

// TopValuesNotDeleted ordena os resources ativos por afinidade do nome com
// a consulta mais o prior, mantendo só os max melhores. Empates favorecem
// o maior id.
func (r *Registry) TopValuesNotDeleted(q, typeFilter string, max int) *models.ScoredIDs {
	out := models.NewScoredIDs()
	if max <= 0 {
		return out
	}

	type entry struct {
		id    string
		score float64
	}
	top := make([]entry, 0, max)
	better := func(a, b entry) bool {
		return a.score > b.score || (a.score == b.score && a.id > b.id)
	}

	for _, res := range r.snapshot() {
		if res.IsDeleted() {
			continue
		}
		if typeFilter != "" && !res.HasType(typeFilter) {
			continue
		}
		e := entry{id: res.ID(), score: res.Score(q) + res.Prior()}
		if len(top) == max && !better(e, top[len(top)-1]) {
			continue
		}
		i := sort.Search(len(top), func(i int) bool { return better(e, top[i]) })
		if len(top) < max {
			top = append(top, entry{})
		}
		copy(top[i+1:], top[i:len(top)-1])
		top[i] = e
	}

	for _, e := range top {
		out.Add(e.id, e.score)
	}
	return out
}

// Lookup expõe prior e tombstone de um id para o scorer
func (r *Registry) Lookup(id string) (float64, bool, bool) {
	res := r.Resolve(id)
	if res == nil {
		return 0, false, false
	}
	return res.Prior(), res.IsDeleted(), true
}

// GetRandom sorteia entre todos os resources conhecidos, incluindo a
// mother e este nó. Devolve nil se não há nenhum.
func (r *Registry) GetRandom() *resource.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pool := make([]*resource.Resource, 0, len(r.ids)+2)
	if r.mother != nil {
		pool = append(pool, r.mother)
	}
	if r.self != nil {
		pool = append(pool, r.self)
	}
	for _, id := range r.ids {
		pool = append(pool, r.resources[id])
	}
	if len(pool) == 0 {
		return nil
	}
	return pool[r.rnd.IntN(len(pool))]
}

// MaxPrior é o maior prior entre os resources conhecidos
func (r *Registry) MaxPrior() float64 {
	max := 0.0
	for _, res := range r.snapshot() {
		if p := res.Prior(); p > max {
			max = p
		}
	}
	return max
}

// Health conta resources ativos saudáveis e com erro, incluindo a mother
func (r *Registry) Health() HealthSummary {
	summary := HealthSummary{MaxPrior: r.MaxPrior()}
	for _, res := range r.snapshot() {
		if res.IsDeleted() {
			continue
		}
		h := res.Health()
		if res.IsHealthy() {
			summary.OK++
			if summary.Errors == 0 && summary.LastMessage == "" && h.LastMessage != "" {
				summary.LastMessage = res.ID() + ": " + h.LastMessage
			}
		} else {
			summary.Errors++
			summary.LastMessage = res.ID() + ": " + h.LastMessage
		}
	}
	if mother := r.Mother(); mother != nil {
		if mother.IsHealthy() {
			summary.OK++
		} else {
			summary.Errors++
			summary.LastMessage = mother.ID() + " (mother): " + mother.Health().LastMessage
		}
	}
	return summary
}

// All devolve os resources conhecidos (sem mother e sem este nó), por id
func (r *Registry) All() []*resource.Resource {
	out := r.snapshot()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Flush grava o estado de saúde de todos os resources
func (r *Registry) Flush(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var errs []error
	for _, res := range r.snapshot() {
		if err := r.store.Save(ctx, res.Stored()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) snapshot() []*resource.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*resource.Resource, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.resources[id])
	}
	return out
}

var _ ranking.Catalog = (*Registry)(nil)
