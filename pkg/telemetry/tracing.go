package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const shutdownTimeout = 5 * time.Second

// Options configura a exportação de spans
type Options struct {
	ServiceName   string
	Version       string
	Environment   string // padrão: FG_ENVIRONMENT ou development
	Endpoint      string // host:porta do coletor OTLP/gRPC
	SamplingRatio float64
}

// TracerProvider mantém o provedor global e a conexão com o coletor
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	conn     *grpc.ClientConn
	logger   *zap.Logger
}

// NewTracerProvider registra um provedor global que exporta em lote para o
// coletor. A conexão é estabelecida sob demanda: um coletor indisponível não
// impede a inicialização do gateway.
func NewTracerProvider(ctx context.Context, opts Options, logger *zap.Logger) (*TracerProvider, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("endpoint do coletor OTLP não configurado")
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "fastgate"
	}
	if opts.Environment == "" {
		opts.Environment = environment()
	}

	conn, err := grpc.NewClient(opts.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("endereço do coletor inválido %s: %w", opts.Endpoint, err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("falha ao criar exportador OTLP: %w", err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(opts.ServiceName),
		semconv.DeploymentEnvironmentKey.String(opts.Environment),
	}
	if opts.Version != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(opts.Version))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		conn.Close()
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SamplingRatio))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Rastreamento OpenTelemetry habilitado",
		zap.String("endpoint", opts.Endpoint),
		zap.String("environment", opts.Environment),
		zap.Float64("sampling_ratio", opts.SamplingRatio))

	return &TracerProvider{provider: tp, conn: conn, logger: logger}, nil
}

// Shutdown descarrega os spans pendentes e fecha a conexão
func (tp *TracerProvider) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := tp.provider.Shutdown(ctx); err != nil {
		tp.logger.Warn("Spans pendentes não foram exportados", zap.Error(err))
	}
	if err := tp.conn.Close(); err != nil {
		tp.logger.Debug("Falha ao fechar conexão com o coletor", zap.Error(err))
	}
}

func environment() string {
	if env := os.Getenv("FG_ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
