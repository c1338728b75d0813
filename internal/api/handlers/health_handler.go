package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
)

// CheckFunc verifica uma dependência externa
type CheckFunc func(ctx context.Context) error

// HealthHandler gerencia os endpoints de health check
type HealthHandler struct {
	registry *registry.Registry
	checks   map[string]CheckFunc
}

// NewHealthHandler cria um novo handler de health check. checks são
// executados na readiness e no health completo.
func NewHealthHandler(reg *registry.Registry, checks map[string]CheckFunc) *HealthHandler {
	return &HealthHandler{
		registry: reg,
		checks:   checks,
	}
}

// HealthResponse representa a resposta do health check
type HealthResponse struct {
	Status    string                  `json:"status"`
	Checks    map[string]string       `json:"checks,omitempty"`
	Resources *registry.HealthSummary `json:"resources,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Searsia   string                  `json:"searsia"`
	Timestamp int64                   `json:"timestamp"`
}

// Liveness godoc
// @Summary Liveness check endpoint
// @Description Verifica se a aplicação está viva (sem checagem de dependências externas)
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /searsia/health/live [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Searsia:   models.ProtocolVersion,
		Timestamp: time.Now().Unix(),
	})
}

// Readiness godoc
// @Summary Readiness check endpoint
// @Description Verifica se o nó tem descritor local e se o arquivo de resultados responde
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /searsia/health/ready [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	response := h.run(ctx, "ready", "not_ready")
	c.JSON(statusOf(response, "not_ready"), response)
}

// Health godoc
// @Summary Comprehensive health check endpoint
// @Description Saúde das dependências e contagem de resources ativos e com falha
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /searsia/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := h.run(ctx, "healthy", "unhealthy")
	summary := h.registry.Health()
	response.Resources = &summary
	c.JSON(statusOf(response, "unhealthy"), response)
}

func (h *HealthHandler) run(ctx context.Context, ok, failed string) HealthResponse {
	response := HealthResponse{
		Status:    ok,
		Checks:    make(map[string]string),
		Searsia:   models.ProtocolVersion,
		Timestamp: time.Now().Unix(),
	}

	if h.registry.Self() == nil {
		response.Checks["self"] = "failed"
		response.Status = failed
		response.Error = "descritor local ausente"
	} else {
		response.Checks["self"] = "ok"
	}

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			response.Checks[name] = "failed"
			response.Status = failed
			response.Error = name + ": " + err.Error()
			continue
		}
		response.Checks[name] = "ok"
	}
	return response
}

func statusOf(response HealthResponse, failed string) int {
	if response.Status == failed {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
