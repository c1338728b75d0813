package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search"
	"github.com/prefeitura-rio/searsia-node/internal/services"
)

// UpdateHandler expõe o registro de resources para operadores
type UpdateHandler struct {
	updateService *services.UpdateService
	logger        *zap.Logger
}

func NewUpdateHandler(updateService *services.UpdateService, logger *zap.Logger) *UpdateHandler {
	return &UpdateHandler{
		updateService: updateService,
		logger:        logger,
	}
}

type updateRequest struct {
	Resource *models.Descriptor `json:"resource"`
}

// Put godoc
// @Summary Cria ou atualiza um resource
// @Description Valida o descritor, roda a consulta de teste e registra o resource. Responde 405 com o resultado do teste quando ele não traz hits com título.
// @Tags update
// @Accept json
// @Produce json
// @Param id path string true "Identificador do resource"
// @Success 200 {object} models.Envelope
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 405 {object} models.Envelope
// @Failure 409 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /searsia/update/{id} [put]
func (h *UpdateHandler) Put(c *gin.Context) {
	id := c.Param("id")

	mediaType, _, _ := mime.ParseMediaType(c.ContentType())
	if mediaType != models.MimeType && mediaType != "application/json" {
		writeError(c, http.StatusBadRequest, fmt.Errorf("content-type não suportado: %q", c.ContentType()))
		return
	}
	var req updateRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("JSON inválido: %w", err))
		return
	}
	if req.Resource == nil {
		writeError(c, http.StatusBadRequest, errors.New("campo resource ausente"))
		return
	}

	result, err := h.updateService.Put(c.Request.Context(), id, *req.Resource)
	switch {
	case err == nil:
		writeSearsia(c, http.StatusOK, result)
	case errors.Is(err, services.ErrTestQueryFailed):
		_ = c.Error(err)
		writeSearsia(c, http.StatusMethodNotAllowed, models.Envelope{
			Hits:     result.Hits,
			Resource: result.Resource,
			Searsia:  models.ProtocolVersion,
			Error:    err.Error(),
		})
	case errors.Is(err, services.ErrInvalidDescriptor):
		writeError(c, http.StatusBadRequest, err)
	case search.KindOf(err) == search.KindConfiguration:
		writeError(c, http.StatusConflict, err)
	default:
		h.logger.Warn("update falhou", zap.String("resource_id", id), zap.Error(err))
		writeError(c, http.StatusServiceUnavailable, fmt.Errorf("resource indisponível: %w", err))
	}
}

// Delete godoc
// @Summary Remove um resource
// @Tags update
// @Produce json
// @Param id path string true "Identificador do resource"
// @Success 200 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /searsia/update/{id} [delete]
func (h *UpdateHandler) Delete(c *gin.Context) {
	if err := h.updateService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		status := http.StatusBadRequest
		if search.KindOf(err) == search.KindNotFound {
			status = http.StatusNotFound
		}
		writeError(c, status, err)
		return
	}
	writeSearsia(c, http.StatusOK, gin.H{"searsia": models.ProtocolVersion})
}

// Options responde o preflight CORS do update
func (h *UpdateHandler) Options(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "DELETE, PUT")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Status(http.StatusNoContent)
}
