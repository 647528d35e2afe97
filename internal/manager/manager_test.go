package manager_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/strandhealth/podctl/internal/conversation"
	"github.com/strandhealth/podctl/internal/manager"
	"github.com/strandhealth/podctl/internal/message"
	"github.com/strandhealth/podctl/internal/nonce"
	"github.com/strandhealth/podctl/internal/pod"
	"github.com/strandhealth/podctl/internal/transport"
	"github.com/strandhealth/podctl/repository/memory"
)

// step describes the outcome of one scripted radio exchange: the status
// the fake parser installs, an optional nonce-resync hint, and an optional
// failure at any of initialize/send/parse.
type step struct {
	status        *pod.Status
	nonceSyncHint *uint16

	initErr  error
	sendErr  error
	parseErr error
}

// scriptedProvider plays back a fixed sequence of steps, one per exchange
// attempt (including nonce-resync retries — each retry consumes its own
// step). It is the hand-written test double for transport.Provider used
// by every manager test.
type scriptedProvider struct {
	mu       sync.Mutex
	steps    []step
	idx      int
	sequence uint8

	capturedParams   []message.ExchangeParameters
	capturedRequests []message.Opcode
}

func newScriptedProvider(steps ...step) *scriptedProvider {
	return &scriptedProvider{steps: steps}
}

func (p *scriptedProvider) GetMessageExchange(_ context.Context, params message.ExchangeParameters, _ *pod.State) (transport.Exchange, error) {
	p.mu.Lock()
	p.capturedParams = append(p.capturedParams, params)
	p.mu.Unlock()
	return &scriptedExchange{provider: p}, nil
}

// remaining reports how many scripted steps were never consumed, so tests
// can assert an operation did not issue more exchanges than expected.
func (p *scriptedProvider) remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps) - p.idx
}

type scriptedExchange struct {
	provider *scriptedProvider
}

func (e *scriptedExchange) InitializeExchange(_ context.Context, _ *conversation.ExchangeProgress) error {
	e.provider.mu.Lock()
	defer e.provider.mu.Unlock()
	if e.provider.idx >= len(e.provider.steps) {
		return errors.New("scriptedProvider: no more steps")
	}
	return e.provider.steps[e.provider.idx].initErr
}

func (e *scriptedExchange) GetResponse(_ context.Context, req message.Request, _ *conversation.ExchangeProgress) (message.Response, error) {
	e.provider.mu.Lock()
	defer e.provider.mu.Unlock()
	e.provider.capturedRequests = append(e.provider.capturedRequests, req.Opcode)
	s := e.provider.steps[e.provider.idx]
	if s.sendErr != nil {
		return message.Response{}, s.sendErr
	}
	e.provider.sequence = (e.provider.sequence + 1) % 16
	return message.Response{Sequence: e.provider.sequence}, nil
}

func (e *scriptedExchange) ParseResponse(_ context.Context, _ message.Response, state *pod.State, _ *conversation.ExchangeProgress) error {
	e.provider.mu.Lock()
	s := e.provider.steps[e.provider.idx]
	e.provider.idx++
	e.provider.mu.Unlock()

	if s.parseErr != nil {
		return s.parseErr
	}
	if s.status != nil {
		state.LastStatus = s.status
	}
	state.RuntimeVariables.NonceSync = s.nonceSyncHint
	return nil
}

func newTestManager(t *testing.T, provider *scriptedProvider) (*manager.Manager, *memory.Repository) {
	t.Helper()
	lot, serial := uint32(12345), uint32(67890)
	state := &pod.State{
		RadioAddress: 0xABCD1234,
		Lot:          &lot,
		Serial:       &serial,
	}
	repo := memory.New()
	gen := nonce.New(lot, serial)
	return manager.New(state, provider, repo, gen), repo
}

func statusAt(progress pod.Progress) *pod.Status {
	return &pod.Status{Progress: progress}
}

func TestStartConversationSerializesAccess(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, newScriptedProvider())

	conv, ok := m.StartConversation(context.Background(), 0, conversation.SourceUser)
	if !ok {
		t.Fatal("expected first StartConversation to succeed")
	}

	_, ok = m.StartConversation(context.Background(), 20*time.Millisecond, conversation.SourceUser)
	if ok {
		t.Fatal("expected second concurrent StartConversation to time out")
	}

	conv.Release()

	conv2, ok := m.StartConversation(context.Background(), 0, conversation.SourceUser)
	if !ok {
		t.Fatal("expected StartConversation to succeed after release")
	}
	conv2.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, newScriptedProvider())

	conv, ok := m.StartConversation(context.Background(), 0, conversation.SourceUser)
	if !ok {
		t.Fatal("expected StartConversation to succeed")
	}
	conv.Release()
	conv.Release() // must not panic or double-release the mutex

	conv2, ok := m.StartConversation(context.Background(), 10*time.Millisecond, conversation.SourceUser)
	if !ok {
		t.Fatal("expected mutex to be available after idempotent release")
	}
	conv2.Release()
}
