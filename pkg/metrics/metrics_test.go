package metrics

import (
	"context"
	"testing"

	"github.com/strandhealth/podctl/internal/config"
)

func TestNewRecorderDisabledDoesNotDialCollector(t *testing.T) {
	t.Parallel()
	cfg := config.MetricsConfig{
		Enabled:      false,
		OTLPEndpoint: "invalid-host:9999",
		ServiceName:  "podctl-test",
	}

	r, err := NewRecorder(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRecorder with Enabled=false should not error, got: %v", err)
	}
	if r == nil {
		t.Fatal("expected a non-nil Recorder even when disabled")
	}
}

func TestRecorderMethodsDoNotPanicWhenDisabled(t *testing.T) {
	t.Parallel()
	cfg := config.MetricsConfig{Enabled: false, ServiceName: "podctl-test"}
	r, err := NewRecorder(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	ctx := context.Background()
	r.RecordExchange(ctx, "status", "success", 12.5)
	r.RecordNonceResync(ctx)
	r.RecordBolusCancellation(ctx, true)
	r.RecordBolusCancellation(ctx, false)
	r.RecordPollWait(ctx, "bolus_wait", 500)

	if err := r.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestRecorderCachesInstrumentsAcrossCalls(t *testing.T) {
	t.Parallel()
	cfg := config.MetricsConfig{Enabled: false, ServiceName: "podctl-test"}
	r, err := NewRecorder(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	ctx := context.Background()
	r.RecordExchange(ctx, "bolus", "success", 1)
	r.RecordExchange(ctx, "bolus", "failure", 2)

	count := 0
	r.counters.Range(func(_, _ any) bool { count++; return true })
	if count != 1 {
		t.Errorf("expected exactly one cached counter for repeated RecordExchange calls, got %d", count)
	}
}
