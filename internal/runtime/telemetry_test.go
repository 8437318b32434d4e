package runtime

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/lumina/config"
)

func TestSetupTelemetryDisabled(t *testing.T) {
	tel, meter, tracer, err := SetupTelemetry(context.Background(), config.TelemetryConfig{}, TelemetryOptions{}, nil)
	if err != nil {
		t.Fatalf("SetupTelemetry: %v", err)
	}
	if meter == nil || tracer == nil {
		t.Fatalf("expected global meter and tracer")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSetupTelemetryPrometheusOnly(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel, meter, _, err := SetupTelemetry(context.Background(), config.TelemetryConfig{Enabled: true}, TelemetryOptions{ServiceName: "lumina-test"}, reg)
	if err != nil {
		t.Fatalf("SetupTelemetry: %v", err)
	}
	defer tel.Shutdown(context.Background())

	counter, err := meter.Int64Counter("lumina_test_events")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(context.Background(), 2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "lumina_test_events_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("otel counter not exported to registry")
	}
	if tel.metrics != nil {
		t.Fatalf("no standalone listener without a metrics port")
	}
}
