package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
	"github.com/prefeitura-rio/searsia-node/internal/search/resource"
	"go.uber.org/zap"
)

var (
	// ErrInvalidDescriptor indica um payload de update malformado
	ErrInvalidDescriptor = errors.New("descritor inválido")
	// ErrTestQueryFailed indica que a consulta de teste não trouxe hits utilizáveis
	ErrTestQueryFailed = errors.New("consulta de teste sem resultados utilizáveis")
)

// UpdateService aplica updates de operadores no registro
type UpdateService struct {
	registry  *registry.Registry
	validator *validator.Validate
	logger    *zap.Logger
}

func NewUpdateService(reg *registry.Registry, logger *zap.Logger) *UpdateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UpdateService{
		registry:  reg,
		validator: validator.New(),
		logger:    logger,
	}
}

// Put valida o descritor, roda a consulta de teste e só então registra o
// resource. Com ErrTestQueryFailed o resultado do teste também é devolvido.
func (s *UpdateService) Put(ctx context.Context, id string, desc models.Descriptor) (*models.SearchResult, error) {
	if desc.ID != id {
		return nil, fmt.Errorf("%w: ids conflitantes %q e %q", ErrInvalidDescriptor, id, desc.ID)
	}
	if err := s.validator.Struct(desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if m := s.registry.Mother(); m != nil && m.ID() == id {
		return nil, search.Configuration("id %s pertence à mother", id)
	}
	if me := s.registry.Self(); me != nil && me.ID() == id {
		return nil, search.Configuration("id %s pertence a este nó", id)
	}

	engine, err := s.registry.NewResource(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	engine = s.completeFromPeer(ctx, engine)

	testQuery := engine.Descriptor().TestQuery
	result, err := engine.Search(ctx, testQuery)
	if err != nil {
		return nil, err
	}
	public := engine.Public()
	result.Resource = &public
	result.Version = models.ProtocolVersion

	if len(result.Hits) == 0 {
		return result, fmt.Errorf("%w: nenhum resultado para %q", ErrTestQueryFailed, testQuery)
	}
	if result.Hits[0].Title() == "" {
		return result, fmt.Errorf("%w: resultado sem título para %q", ErrTestQueryFailed, testQuery)
	}

	if err := s.registry.Put(ctx, engine); err != nil {
		return nil, err
	}
	s.logger.Info("resource atualizado", zap.String("resource_id", id))
	return result, nil
}

// completeFromPeer preenche campos vazios com o descritor que o próprio
// peer anuncia. Falhas mantêm o resource como veio.
func (s *UpdateService) completeFromPeer(ctx context.Context, engine *resource.Resource) *resource.Resource {
	if !engine.IsFederated() {
		return engine
	}
	env, err := engine.SearchWithoutQuery(ctx)
	if err != nil || env.Resource == nil {
		return engine
	}
	desc := engine.Descriptor()
	peer := env.Resource
	if peer.APITemplate != "" {
		desc.APITemplate = peer.APITemplate
	}
	if desc.Name == "" {
		desc.Name = peer.Name
	}
	if desc.Banner == "" {
		desc.Banner = peer.Banner
	}
	if desc.Favicon == "" {
		desc.Favicon = peer.Favicon
	}
	if desc.Rerank == "" {
		desc.Rerank = peer.Rerank
	}
	if desc.TestQuery == resource.DefaultTestQuery && peer.TestQuery != "" {
		desc.TestQuery = peer.TestQuery
	}
	completed, err := s.registry.NewResource(desc)
	if err != nil {
		return engine
	}
	return completed
}

// Delete remove o resource do registro
func (s *UpdateService) Delete(ctx context.Context, id string) error {
	if err := s.registry.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("resource removido", zap.String("resource_id", id))
	return nil
}
