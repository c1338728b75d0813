package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search"
)

// writeSearsia serializa v no formato do protocolo, liberando CORS
func writeSearsia(c *gin.Context, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(models.NewErrorResponse(err.Error()))
	}
	c.Header("Access-Control-Allow-Origin", "*")
	c.Data(status, models.MimeTypeEncoding, data)
}

func writeError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	writeSearsia(c, status, models.NewErrorResponse(err.Error()))
}

// statusFor traduz o tipo do erro de busca no status HTTP
func statusFor(err error) int {
	switch search.KindOf(err) {
	case search.KindNotFound:
		return http.StatusNotFound
	case search.KindGone:
		return http.StatusGone
	case search.KindConfiguration:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// NotFound responde rotas desconhecidas no formato do protocolo
func NotFound(c *gin.Context) {
	writeSearsia(c, http.StatusNotFound, models.NewErrorResponse("Not found"))
}
