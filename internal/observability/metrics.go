package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "searsia"

// Metrics agrupa os coletores do nó. Um *Metrics nil é válido e não
// registra nada.
type Metrics struct {
	queriesTotal     *prometheus.CounterVec
	resourceSearches *prometheus.CounterVec
	cacheFlushes     prometheus.Counter
	cacheDropped     prometheus.Counter
	requestDuration  *prometheus.HistogramVec
	resources        *prometheus.GaugeVec
}

// NewMetrics registra os coletores em reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Consultas recebidas, por caminho (local ou remoto)",
		}, []string{"path"}),
		resourceSearches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_searches_total",
			Help:      "Buscas feitas em resources, por resultado",
		}, []string{"outcome"}),
		cacheFlushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_flushes_total",
			Help:      "Descargas da fila do cache para o arquivo",
		}),
		cacheDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_dropped_total",
			Help:      "Resultados descartados com a fila cheia",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duração das requisições HTTP",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		resources: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resources",
			Help:      "Resources conhecidos, por estado",
		}, []string{"state"}),
	}
}

func (m *Metrics) QueryServed(path string) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(path).Inc()
}

func (m *Metrics) ResourceSearched(outcome string) {
	if m == nil {
		return
	}
	m.resourceSearches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheFlushed() {
	if m == nil {
		return
	}
	m.cacheFlushes.Inc()
}

func (m *Metrics) CacheDropped() {
	if m == nil {
		return
	}
	m.cacheDropped.Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

// SetResources atualiza o gauge com as contagens de saúde do registro
func (m *Metrics) SetResources(ok, failing, deleted int) {
	if m == nil {
		return
	}
	m.resources.WithLabelValues("ok").Set(float64(ok))
	m.resources.WithLabelValues("error").Set(float64(failing))
	m.resources.WithLabelValues("deleted").Set(float64(deleted))
}
