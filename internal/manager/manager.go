// Package manager implements the Pod Manager: the orchestrator that owns
// one pod's conversation mutex, composes the message builder, exchange
// parameters, and a transport.Exchange into therapy operations, enforces
// preconditions, drives status-poll loops, reacts to nonce-sync requests,
// and persists exchange results.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/strandhealth/podctl/internal/conversation"
	"github.com/strandhealth/podctl/internal/message"
	"github.com/strandhealth/podctl/internal/nonce"
	"github.com/strandhealth/podctl/internal/pod"
	"github.com/strandhealth/podctl/internal/transport"
	"github.com/strandhealth/podctl/repository"
)

// Metrics is the subset of pkg/metrics.Recorder the manager calls. Kept as
// a small interface here (rather than importing pkg/metrics directly) so
// unit tests can supply a no-op and cmd/podctl can wire the real OTel
// recorder without the manager depending on OTel types.
type Metrics interface {
	RecordExchange(ctx context.Context, opcode string, outcome string, durationMS float64)
	RecordNonceResync(ctx context.Context)
	RecordBolusCancellation(ctx context.Context, succeeded bool)
	RecordPollWait(ctx context.Context, operation string, waitMS float64)
}

// HeartbeatReporter is the subset of pkg/progress.Writer the manager calls
// during long poll loops, so an external watchdog can distinguish "still
// legitimately waiting on pod delivery" from "process hung".
type HeartbeatReporter interface {
	ReportProgress() error
}

type noopMetrics struct{}

func (noopMetrics) RecordExchange(context.Context, string, string, float64) {}
func (noopMetrics) RecordNonceResync(context.Context)                      {}
func (noopMetrics) RecordBolusCancellation(context.Context, bool)          {}
func (noopMetrics) RecordPollWait(context.Context, string, float64)        {}

// Manager is the orchestrator bound to exactly one Pod State Record and
// one transport.Provider.
type Manager struct {
	state    *pod.State
	provider transport.Provider
	repo     repository.Repository
	nonceGen *nonce.Generator
	mutex    *conversation.Mutex

	logger    *slog.Logger
	metrics   Metrics
	heartbeat HeartbeatReporter
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithLogger sets the manager's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the manager's metrics recorder. Defaults to a no-op.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithHeartbeat sets the heartbeat reporter used during long poll loops.
// Defaults to nil (no heartbeat reporting).
func WithHeartbeat(hb HeartbeatReporter) Option {
	return func(m *Manager) { m.heartbeat = hb }
}

// New binds a Manager to one pod record and one transport provider.
func New(state *pod.State, provider transport.Provider, repo repository.Repository, nonceGen *nonce.Generator, opts ...Option) *Manager {
	m := &Manager{
		state:    state,
		provider: provider,
		repo:     repo,
		nonceGen: nonceGen,
		mutex:    conversation.NewMutex(),
		logger:   slog.Default(),
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartConversation acquires the pod's conversation mutex and returns a new
// Conversation holding it. timeout of zero waits unboundedly; otherwise it
// returns (nil, false) if the mutex is not acquired within timeout.
func (m *Manager) StartConversation(ctx context.Context, timeout time.Duration, source conversation.RequestSource) (*conversation.Conversation, bool) {
	ok, err := m.mutex.TryAcquire(ctx, timeout)
	if err != nil || !ok {
		return nil, false
	}

	id := podID(m.state)
	m.state.ActiveConversationID = id
	conv := conversation.New(ctx, id, source, m.mutex, func() {
		m.state.ActiveConversationID = ""
	})
	return conv, true
}

func podID(state *pod.State) string {
	return fmt.Sprintf("pod-%d", state.RadioAddress)
}

// GetStandardParameters returns the default ExchangeParameters used by
// every therapy operation that does not override address/power/sequence.
func (m *Manager) GetStandardParameters() message.ExchangeParameters {
	return message.StandardParameters(m.nonceGen)
}

// State exposes the bound Pod State Record for read-only inspection by
// callers (e.g. the CLI printing status after an operation).
func (m *Manager) State() *pod.State { return m.state }
