package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
)

func TestSamplerFromEnv(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"unset", "", trace.AlwaysSample().Description()},
		{"valid ratio", "0.25", trace.ParentBased(trace.TraceIDRatioBased(0.25)).Description()},
		{"not a number", "lots", trace.AlwaysSample().Description()},
		{"out of range", "1.5", trace.AlwaysSample().Description()},
		{"negative", "-0.1", trace.AlwaysSample().Description()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CLINIC_TRACE_SAMPLE_RATIO", tc.raw)
			if got := samplerFromEnv().Description(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSetupNoEndpointIsNoop(t *testing.T) {
	t.Setenv("CLINIC_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown := Setup("clinicd")
	if shutdown == nil {
		t.Fatal("expected a shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}
