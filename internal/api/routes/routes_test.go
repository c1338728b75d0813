package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "github.com/prefeitura-rio/searsia-node/docs"
	"github.com/prefeitura-rio/searsia-node/internal/config"
	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/observability"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
	"github.com/prefeitura-rio/searsia-node/internal/services"
	"github.com/prefeitura-rio/searsia-node/internal/storage"
)

func newRouter(t *testing.T, openUpdates bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.Open(":memory:", registry.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	reg := registry.New(registry.NewSQLiteStore(db))
	self, err := reg.NewResource(models.Descriptor{ID: "me"})
	require.NoError(t, err)
	require.NoError(t, reg.PutMyself(self))

	promReg := prometheus.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return SetupRouter(ctx, Dependencies{
		Config: &config.Config{
			OpenUpdates:    openUpdates,
			RateLimitRPS:   100,
			RateLimitBurst: 100,
		},
		Logger:        zap.NewNop(),
		Metrics:       observability.NewMetrics(promReg),
		Gatherer:      promReg,
		Registry:      reg,
		UpdateService: services.NewUpdateService(reg, nil),
	})
}

func get(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestUpdatesClosedByDefault(t *testing.T) {
	r := newRouter(t, false)
	assert.Equal(t, http.StatusUnauthorized, get(r, http.MethodDelete, "/searsia/update/x").Code)
	assert.Equal(t, http.StatusNoContent, get(r, http.MethodOptions, "/searsia/update/x").Code)

	open := newRouter(t, true)
	assert.Equal(t, http.StatusNotFound, get(open, http.MethodDelete, "/searsia/update/x").Code)
}

func TestRouterServesMetricsAndHealth(t *testing.T) {
	r := newRouter(t, false)

	w := get(r, http.MethodGet, "/searsia/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = get(r, http.MethodGet, "/searsia/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "searsia_request_duration_seconds")

	assert.Equal(t, http.StatusNotFound, get(r, http.MethodGet, "/nothing").Code)
}

func TestRouterServesSwagger(t *testing.T) {
	r := newRouter(t, false)

	w := get(r, http.MethodGet, "/searsia/swagger/index.html")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(r, http.MethodGet, "/searsia/swagger/doc.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/searsia/search")
	assert.Contains(t, w.Body.String(), "Searsia Node API")
}
