package postgres

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/strandhealth/podctl/internal/config"
	"github.com/strandhealth/podctl/internal/pod"
)

var (
	pgFlagPtrs    = config.RegisterPostgresFlags()
	cacheFlagPtrs = config.RegisterCacheFlags()
	redisFlagPtrs = config.RegisterRedisFlags()
)

// TestPostgresIntegration_SaveAndLatestResult exercises Save/LatestResult
// against a real PostgreSQL instance. Start one with:
//
//	docker run --rm -d --name podctl-postgres -p 5432:5432 \
//	  -e POSTGRES_USER=podctl -e POSTGRES_PASSWORD=podctl -e POSTGRES_DB=podctl postgres:15.1
//
// and run the test with PODCTL_POSTGRES_PASSWORD=podctl set.
func TestPostgresIntegration_SaveAndLatestResult(t *testing.T) {
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := New(ctx, pgFlagPtrs.ToPostgresConfig(), cacheFlagPtrs.ToCacheConfig(), redisFlagPtrs.ToRedisConfig(), logger)
	if err != nil {
		t.Fatalf("Failed to create postgres repository: %v\n"+
			"Make sure PostgreSQL is running with:\n"+
			"  docker run --rm -d --name podctl-postgres -p 5432:5432 \\\n"+
			"    -e POSTGRES_USER=podctl -e POSTGRES_PASSWORD=podctl -e POSTGRES_DB=podctl postgres:15.1\n"+
			"and PODCTL_POSTGRES_PASSWORD=podctl set", err)
	}
	defer repo.Close()

	state := &pod.State{RadioAddress: 0xABCDEF}
	now := time.Now().UTC()
	result := pod.ExchangeResult{
		RequestTime:   now,
		ResultTime:    now.Add(2 * time.Second),
		Success:       true,
		BasalSchedule: []float64{0.5, 0.5, 1.0},
	}

	if err := repo.Save(ctx, state, result); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := repo.LatestResult(ctx, state.RadioAddress)
	if err != nil {
		t.Fatalf("LatestResult: %v", err)
	}
	if !ok {
		t.Fatal("expected a result to be found")
	}
	if !got.Success {
		t.Error("expected Success to be true")
	}
	if len(got.BasalSchedule) != 3 {
		t.Errorf("expected 3 basal schedule entries, got %d", len(got.BasalSchedule))
	}
}
