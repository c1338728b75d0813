package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/prefeitura-rio/searsia-node/internal/config"
	"github.com/prefeitura-rio/searsia-node/internal/models"
)

// Tracer guarda o provider criado por InitTracer. O valor zero é um
// tracer desligado.
type Tracer struct {
	provider *sdktrace.TracerProvider
	logger   *zap.Logger
}

// InitTracer inicializa o OpenTelemetry com exportador OTLP gRPC. Falhas
// deixam o tracing desligado e são só registradas em log.
func InitTracer(cfg *config.Config, nodeID string, logger *zap.Logger) *Tracer {
	t := &Tracer{logger: logger}
	if !cfg.TracingEnabled {
		logger.Info("Tracing desabilitado")
		return t
	}

	ctx := context.Background()

	client := otlptracegrpc.NewClient(
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(cfg.TracingEndpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		logger.Error("Falha ao criar exportador OTLP", zap.Error(err))
		return t
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("searsia-node"),
			semconv.ServiceVersionKey.String(models.ProtocolVersion),
			semconv.ServiceInstanceIDKey.String(nodeID),
		),
	)
	if err != nil {
		logger.Error("Falha ao criar resource do tracer", zap.Error(err))
		return t
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithBatchTimeout(time.Second*10),
			sdktrace.WithMaxQueueSize(2048),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Tracer inicializado", zap.String("endpoint", cfg.TracingEndpoint))
	return t
}

// Shutdown descarrega os spans pendentes
func (t *Tracer) Shutdown() {
	if t == nil || t.provider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := t.provider.Shutdown(ctx); err != nil {
		t.logger.Error("Falha ao encerrar tracer", zap.Error(err))
	}
}
