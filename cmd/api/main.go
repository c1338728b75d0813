package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/prefeitura-rio/searsia-node/docs"
	"github.com/prefeitura-rio/searsia-node/internal/api/handlers"
	"github.com/prefeitura-rio/searsia-node/internal/api/routes"
	"github.com/prefeitura-rio/searsia-node/internal/config"
	"github.com/prefeitura-rio/searsia-node/internal/observability"
	"github.com/prefeitura-rio/searsia-node/internal/search/archive"
	"github.com/prefeitura-rio/searsia-node/internal/search/cache"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
	"github.com/prefeitura-rio/searsia-node/internal/search/resource"
	"github.com/prefeitura-rio/searsia-node/internal/services"
	"github.com/prefeitura-rio/searsia-node/internal/storage"
	"github.com/prefeitura-rio/searsia-node/internal/typesense"
)

// @title           Searsia Node API
// @version         v1.1.0
// @description     Nó de busca federada: responde do próprio cache, repassa consultas a resources e amostra a federação.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

const shutdownTimeout = 10 * time.Second

func main() {
	testMode := flag.Bool("test", false, "Testa a mother com a consulta de teste e sai")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Erro ao carregar configuração: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	if err := run(cfg, logger, *testMode); err != nil {
		logger.Fatal("Nó encerrado com erro", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, testMode bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer := observability.InitTracer(cfg, cfg.MyID, logger)
	defer tracer.Shutdown()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(promReg)

	db, err := storage.Open(cfg.IndexFile(".db"), registry.Schema, archive.Schema)
	if err != nil {
		return err
	}
	defer db.Close()
	checks := map[string]handlers.CheckFunc{"sqlite": db.PingContext}

	reg := registry.New(registry.NewSQLiteStore(db),
		registry.WithSelfFile(cfg.IndexFile(".json")),
		registry.WithMotherFile(cfg.IndexFile(".mother.json")),
		registry.WithResourceOptions(resource.WithDefaultRate(cfg.DefaultRate)),
		registry.WithLogger(logger),
	)
	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("carregar resources: %w", err)
	}

	if err := services.Bootstrap(ctx, reg, services.BootstrapOptions{
		MotherURL:     cfg.MotherURL,
		MyURI:         cfg.MyURI,
		MyID:          cfg.MyID,
		ResourcesFile: cfg.ResourcesFile,
	}, logger); err != nil {
		return err
	}
	if testMode {
		return testMother(ctx, reg, logger)
	}

	arch, err := openArchive(ctx, cfg, db, checks)
	if err != nil {
		return err
	}
	exact, err := openExactStore(ctx, cfg, logger, checks)
	if err != nil {
		return err
	}
	rc, err := cache.Open(ctx, arch, cfg.CacheSize,
		cache.WithExactStore(exact),
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("abrir cache: %w", err)
	}

	searchService := services.NewSearchService(reg, rc,
		services.WithCensor(cfg.CensorQueryResourceID),
		services.WithSearchLogger(logger),
		services.WithSearchMetrics(metrics),
	)
	updateService := services.NewUpdateService(reg, logger)
	daemon := services.NewFederationDaemon(reg, rc, cfg.PollDuration(),
		services.WithDaemonLogger(logger),
		services.WithDaemonMetrics(metrics),
	)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.SetupRouter(ctx, routes.Dependencies{
		Config:        cfg,
		Logger:        logger,
		Metrics:       metrics,
		Gatherer:      promReg,
		Registry:      reg,
		SearchService: searchService,
		UpdateService: updateService,
		Checks:        checks,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Servidor iniciado",
			zap.String("port", cfg.ServerPort),
			zap.String("api_template", reg.Self().Descriptor().APITemplate))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("servidor: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return daemon.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	runErr := g.Wait()

	logger.Info("Encerrando: descarregando cache e saúde dos resources")
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rc.Close(flushCtx); err != nil {
		logger.Error("Falha na descarga final do cache", zap.Error(err))
	}
	if err := reg.Flush(flushCtx); err != nil {
		logger.Error("Falha ao gravar saúde dos resources", zap.Error(err))
	}
	return runErr
}

// openArchive escolhe onde os hits ficam indexados
func openArchive(ctx context.Context, cfg *config.Config, db *sql.DB, checks map[string]handlers.CheckFunc) (archive.Archive, error) {
	if cfg.ArchiveBackend != config.ArchiveTypesense {
		return archive.NewSQLiteArchive(db), nil
	}
	client := typesense.NewClient(cfg, "searsia_"+cfg.IndexName())
	if err := client.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("collection do typesense: %w", err)
	}
	checks["typesense"] = client.Ping
	return client, nil
}

// openExactStore usa o Redis quando configurado; senão um LRU em memória
func openExactStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, checks map[string]handlers.CheckFunc) (cache.ExactStore, error) {
	if cfg.RedisURL == "" {
		return cache.NewLRUStore(cfg.CacheSize, cfg.ExactCacheTTL), nil
	}
	store, err := cache.NewRedisStore(cfg.RedisURL, cfg.ExactCacheTTL, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	checks["redis"] = store.Ping
	return store, nil
}

// testMother roda a consulta de teste na mother, como o modo de teste do
// nó: sucesso quando há ao menos um hit
func testMother(ctx context.Context, reg *registry.Registry, logger *zap.Logger) error {
	mother := reg.Mother()
	if mother == nil {
		return errors.New("teste: mother indisponível")
	}
	testQuery := mother.Descriptor().TestQuery
	result, err := mother.Search(ctx, testQuery)
	if err != nil {
		return fmt.Errorf("teste: %w", err)
	}
	if len(result.Hits) == 0 {
		return fmt.Errorf("teste: nenhum resultado para %q", testQuery)
	}
	logger.Info("Teste ok", zap.String("resource_id", mother.ID()), zap.Int("hits", len(result.Hits)))
	return nil
}
