// Package repository defines the durable-store contract the Pod Manager
// consumes to persist exchange outcomes, plus concrete adapters:
// repository/postgres (durable, LRU-cached) and repository/memory
// (in-memory, used by tests).
package repository

import (
	"context"

	"github.com/strandhealth/podctl/internal/pod"
)

// Repository persists one exchange outcome per call. Save is invoked
// exactly once per exchange, from performExchange's finalization path,
// including failure and exception paths.
type Repository interface {
	Save(ctx context.Context, state *pod.State, result pod.ExchangeResult) error

	// LatestResult returns the most recently saved result for the pod
	// identified by radioAddress, if any. The Pod Manager and the CLI do
	// not call it; the Postgres integration test reads a saved result back
	// through it.
	LatestResult(ctx context.Context, radioAddress uint32) (pod.ExchangeResult, bool, error)
}
