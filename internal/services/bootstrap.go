package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
	"github.com/prefeitura-rio/searsia-node/internal/utils"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// motherBootstrapID identifica o resource temporário usado só para a primeira
// conexão com a mother
const motherBootstrapID = "mother"

// BootstrapOptions descreve como o nó se apresenta à federação
type BootstrapOptions struct {
	MotherURL     string
	MyURI         string
	MyID          string
	ResourcesFile string
}

// resourcesFile é o formato do arquivo YAML de resources iniciais
type resourcesFile struct {
	Resources []map[string]any `yaml:"resources"`
}

// Bootstrap conecta o nó à mother e define o descritor local. Sem conexão
// o nó segue com a mother e o descritor persistidos. Só conflitos de
// identidade são fatais.
func Bootstrap(ctx context.Context, reg *registry.Registry, opts BootstrapOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	announced, err := connectMother(ctx, reg, opts.MotherURL)
	switch {
	case err == nil:
		mother, err := reg.NewResource(announced)
		if err != nil {
			return err
		}
		if err := reg.PutMother(mother); err != nil {
			return fmt.Errorf("registrar mother: %w", err)
		}
	case opts.MotherURL == "":
		logger.Info("Nó sem mother configurada")
	default:
		logger.Warn("Conexão com a mother falhou", zap.String("mother_url", opts.MotherURL), zap.Error(err))
	}

	if err := putMyself(reg, opts); err != nil {
		return err
	}
	if m := reg.Mother(); m != nil {
		logger.Info("Mother", zap.String("resource_id", m.ID()), zap.String("name", m.Name()))
	}
	logger.Info("Nó local", zap.String("resource_id", reg.Self().ID()), zap.String("api_template", reg.Self().Descriptor().APITemplate))

	if opts.ResourcesFile == "" {
		return nil
	}
	return SeedResources(ctx, reg, opts.ResourcesFile, logger)
}

// connectMother busca o descritor que a mother anuncia sobre si mesma
func connectMother(ctx context.Context, reg *registry.Registry, motherURL string) (models.Descriptor, error) {
	if motherURL == "" {
		return models.Descriptor{}, errors.New("mother não configurada")
	}
	candidate, err := reg.NewResource(models.Descriptor{
		ID:          motherBootstrapID,
		APITemplate: motherURL,
		MimeType:    models.MimeType,
	})
	if err != nil {
		return models.Descriptor{}, err
	}
	result, err := candidate.SearchWithoutQuery(ctx)
	if err != nil {
		return models.Descriptor{}, err
	}
	if result.Resource == nil || result.Resource.ID == "" {
		return models.Descriptor{}, search.ProtocolMismatch("mother em %s não se identificou", motherURL)
	}
	desc := *result.Resource
	if desc.APITemplate == "" {
		desc.APITemplate = motherURL
	}
	if desc.MimeType == "" {
		desc.MimeType = models.MimeType
	}
	return desc, nil
}

// putMyself deriva o descritor local: cópia pública da mother (ou do
// descritor persistido) com o id e o template deste nó
func putMyself(reg *registry.Registry, opts BootstrapOptions) error {
	var desc models.Descriptor
	switch {
	case reg.Mother() != nil:
		desc = reg.Mother().Public()
	case reg.Self() != nil:
		desc = reg.Self().Descriptor()
	}
	desc.ID = opts.MyID
	desc.APITemplate = utils.URIToTemplate(opts.MyURI)
	desc.MimeType = models.MimeType
	desc.PrivateParameters = nil

	self, err := reg.NewResource(desc)
	if err != nil {
		return fmt.Errorf("descritor local: %w", err)
	}
	if err := reg.PutMyself(self); err != nil {
		return fmt.Errorf("registrar descritor local: %w", err)
	}
	return nil
}

// LoadResourcesFile lê descritores de um arquivo YAML. As chaves seguem
// os nomes do formato JSON do protocolo (apitemplate, testquery, ...).
func LoadResourcesFile(path string) ([]models.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ler %s: %w", path, err)
	}
	var file resourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("arquivo %s inválido: %w", path, err)
	}

	out := make([]models.Descriptor, 0, len(file.Resources))
	for i, raw := range file.Resources {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("resource %d em %s: %w", i, path, err)
		}
		var desc models.Descriptor
		if err := json.Unmarshal(encoded, &desc); err != nil {
			return nil, fmt.Errorf("resource %d em %s: %w", i, path, err)
		}
		out = append(out, desc)
	}
	return out, nil
}

// SeedResources registra os resources do arquivo que ainda não são
// conhecidos. Descritores inválidos são ignorados; colisões com a mother
// ou com o nó local são fatais.
func SeedResources(ctx context.Context, reg *registry.Registry, path string, logger *zap.Logger) error {
	descs, err := LoadResourcesFile(path)
	if err != nil {
		return err
	}
	seeded := 0
	for _, desc := range descs {
		if desc.ID != "" && reg.Contains(desc.ID) {
			continue
		}
		engine, err := reg.NewResource(desc)
		if err != nil {
			logger.Warn("Resource inicial ignorado", zap.String("resource_id", desc.ID), zap.Error(err))
			continue
		}
		if err := reg.Put(ctx, engine); err != nil {
			if search.KindOf(err) == search.KindConfiguration {
				return err
			}
			logger.Error("Resource inicial não registrado", zap.String("resource_id", desc.ID), zap.Error(err))
			continue
		}
		seeded++
	}
	logger.Info("Resources iniciais carregados", zap.String("path", path), zap.Int("count", seeded))
	return nil
}
