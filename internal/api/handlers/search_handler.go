package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	middlewares "github.com/prefeitura-rio/searsia-node/internal/middleware"
	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/services"
)

// SearchHandler atende as consultas do protocolo
type SearchHandler struct {
	searchService *services.SearchService
	logger        *zap.Logger
}

// NewSearchHandler cria um novo handler de busca
func NewSearchHandler(searchService *services.SearchService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		logger:        logger,
	}
}

// Search godoc
// @Summary Busca federada
// @Description Sem r (ou com o id local) responde do cache e da seleção de resources; com r repassa a consulta ao resource. Sem q devolve só o descritor.
// @Tags search
// @Produce json
// @Param q query string false "Texto da busca"
// @Param r query string false "Identificador do resource"
// @Param page query int false "Página da seleção de resources (mínimo: 1)" default(1)
// @Success 200 {object} models.Envelope
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /searsia/search [get]
func (h *SearchHandler) Search(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	rid := c.Query("r")

	result, err := h.searchService.Search(c.Request.Context(), rid, c.Query("q"), page)
	if err != nil {
		h.logger.Warn("consulta falhou",
			zap.String("resource_id", rid),
			zap.String("request_id", middlewares.RequestIDFrom(c)),
			zap.Error(err))
		writeError(c, statusFor(err), err)
		return
	}
	if result.Version == "" {
		result.Version = models.ProtocolVersion
	}
	writeSearsia(c, http.StatusOK, result)
}

// Options responde o preflight CORS da busca
func (h *SearchHandler) Options(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET")
	c.Status(http.StatusNoContent)
}
