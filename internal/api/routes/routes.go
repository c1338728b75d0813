package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/prefeitura-rio/searsia-node/internal/api/handlers"
	"github.com/prefeitura-rio/searsia-node/internal/config"
	middlewares "github.com/prefeitura-rio/searsia-node/internal/middleware"
	"github.com/prefeitura-rio/searsia-node/internal/observability"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
	"github.com/prefeitura-rio/searsia-node/internal/services"
)

// Dependencies reúne o que o roteador precisa
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Gatherer      prometheus.Gatherer
	Registry      *registry.Registry
	SearchService *services.SearchService
	UpdateService *services.UpdateService
	Checks        map[string]handlers.CheckFunc
}

// SetupRouter monta as rotas do nó sob /searsia. ctx limita a limpeza
// do rate limiter.
func SetupRouter(ctx context.Context, deps Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestTiming(deps.Metrics))
	r.Use(middlewares.RateLimiter(ctx, deps.Config.RateLimitRPS, deps.Config.RateLimitBurst, deps.Logger))

	searchHandler := handlers.NewSearchHandler(deps.SearchService, deps.Logger)
	updateHandler := handlers.NewUpdateHandler(deps.UpdateService, deps.Logger)
	openSearchHandler := handlers.NewOpenSearchHandler(deps.Registry, deps.Config.DontShare)
	healthHandler := handlers.NewHealthHandler(deps.Registry, deps.Checks)

	searsia := r.Group("/searsia")
	{
		searsia.GET("/search", searchHandler.Search)
		searsia.OPTIONS("/search", searchHandler.Options)

		update := searsia.Group("/update")
		update.OPTIONS("/:id", updateHandler.Options)
		update.Use(middlewares.OpenUpdates(deps.Config.OpenUpdates))
		{
			update.PUT("/:id", updateHandler.Put)
			update.DELETE("/:id", updateHandler.Delete)
		}

		searsia.GET("/opensearch/:id", openSearchHandler.Get)

		searsia.GET("/health", healthHandler.Health)
		searsia.GET("/health/live", healthHandler.Liveness)
		searsia.GET("/health/ready", healthHandler.Readiness)

		if deps.Gatherer != nil {
			searsia.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
		}

		searsia.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.NoRoute(handlers.NotFound)

	return r
}
