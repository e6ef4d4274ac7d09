package telemetry_test

import (
	"context"
	"testing"

	"github.com/diillson/fastgate/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap/zaptest"
)

func TestNewTracerProvider_RequiresEndpoint(t *testing.T) {
	_, err := telemetry.NewTracerProvider(context.Background(), telemetry.Options{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNewTracerProvider_RegistersGlobals(t *testing.T) {
	prevProvider, prevPropagator := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})

	// nenhum coletor escutando: a inicialização não depende dele
	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.Options{
		Endpoint:      "127.0.0.1:1",
		SamplingRatio: 0,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	assert.False(t, span.SpanContext().IsSampled(), "ratio 0 keeps spans out of the exporter")
	span.End()

	carrier := propagation.HeaderCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))
}
