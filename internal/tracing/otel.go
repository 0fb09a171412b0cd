package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// NewOTelProvider builds an OTLP/HTTP-exporting TracerProvider pointed at
// endpoint (host:port, no scheme). It is optional: a Tracer mirrors onto
// OTel only after SetOTel attaches a tracer. serve attaches none and the
// config has no collector endpoint, so by default only the in-process
// Tracer/journal record ticks.
func NewOTelProvider(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: otlp exporter: %w", err)
	}
	res := resource.NewSchemaless(attribute.String("service.name", "sinain-hud"))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return tp, nil
}

// SetOTel attaches an OTel tracer that mirrors every tick's spans as real
// OTel spans, in addition to the rolling window and journal this package
// already maintains. Pass nil to disable.
func (t *Tracer) SetOTel(tr oteltrace.Tracer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.otel = tr
}

func attrsToOTel(attrs map[string]interface{}) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		default:
			out = append(out, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return out
}

func statusToOTel(status string, errMsg string) (codes.Code, string) {
	if status == "error" {
		if errMsg == "" {
			errMsg = "span failed"
		}
		return codes.Error, errMsg
	}
	return codes.Ok, ""
}
