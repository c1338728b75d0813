package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prefeitura-rio/searsia-node/internal/models"
)

// OpenUpdates só deixa passar as rotas de update quando o nó aceita
// updates de operadores
func OpenUpdates(open bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !open {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewErrorResponse("Updates not allowed"))
			return
		}
		c.Next()
	}
}
