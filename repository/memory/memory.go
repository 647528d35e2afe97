// Package memory implements repository.Repository without any external
// store. It is the adapter every Pod Manager unit test uses, favoring a
// real in-memory implementation over a generated mock.
package memory

import (
	"context"
	"sync"

	"github.com/strandhealth/podctl/internal/pod"
)

// Repository is a sync.Mutex-guarded in-memory Repository adapter.
type Repository struct {
	mu      sync.Mutex
	latest  map[uint32]pod.ExchangeResult
	history map[uint32][]pod.ExchangeResult
}

// New returns an empty in-memory Repository.
func New() *Repository {
	return &Repository{
		latest:  make(map[uint32]pod.ExchangeResult),
		history: make(map[uint32][]pod.ExchangeResult),
	}
}

func (r *Repository) Save(_ context.Context, state *pod.State, result pod.ExchangeResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[state.RadioAddress] = result
	r.history[state.RadioAddress] = append(r.history[state.RadioAddress], result)
	return nil
}

func (r *Repository) LatestResult(_ context.Context, radioAddress uint32) (pod.ExchangeResult, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.latest[radioAddress]
	return result, ok, nil
}

// History returns every result saved for radioAddress, in save order. Test
// helper only — not part of the Repository contract.
func (r *Repository) History(radioAddress uint32) []pod.ExchangeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pod.ExchangeResult, len(r.history[radioAddress]))
	copy(out, r.history[radioAddress])
	return out
}
