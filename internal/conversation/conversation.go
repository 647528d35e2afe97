// Package conversation implements the scoped, mutually-exclusive session a
// caller holds on one pod while it runs therapy operations.
package conversation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strandhealth/podctl/internal/message"
)

// RequestSource identifies who opened the conversation, for audit/logging.
type RequestSource int

const (
	SourceUser RequestSource = iota
	SourceScheduledTask
	SourceSystem
)

func (s RequestSource) String() string {
	switch s {
	case SourceUser:
		return "user"
	case SourceScheduledTask:
		return "scheduled_task"
	case SourceSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ExchangeProgress tracks one in-flight or completed exchange: the request
// it carries, its timing, and its terminal outcome. perform_exchange
// allocates one per exchange (or accepts a pre-allocated one carrying
// operation-specific context — e.g. InjectAndStart attaches the basal
// schedule and pod date it is installing; performExchange copies the basal
// schedule into the persisted result, the pod date is not persisted).
type ExchangeProgress struct {
	Request     message.Request
	RequestTime time.Time
	ResultTime  time.Time
	Running     bool
	Success     bool
	Exception   error

	// Attachment carries operation-specific context a caller pre-allocated
	// the progress with — InjectAndStart and SetBasalSchedule use it to
	// carry the basal schedule alongside the raw exchange outcome.
	Attachment any
}

// Conversation is an exclusive session against one pod. It owns the
// cancellation token long poll loops observe, the current exchange handle,
// and the terminal outcome flags a caller inspects after each operation.
type Conversation struct {
	PodID         string
	RequestSource RequestSource
	Started       time.Time

	mu             sync.Mutex
	currentExchange *ExchangeProgress
	exception       error

	canceled    atomic.Bool
	failed      atomic.Bool
	cancelFailed atomic.Bool

	cancelCtx context.Context
	cancel    context.CancelFunc

	mutex    *Mutex
	released atomic.Bool
	onRelease func()
}

// New constructs a Conversation holding podMutex's single permit (the
// caller must already have acquired it — see manager.StartConversation)
// and a fresh cancellation token derived from ctx. onRelease, if non-nil,
// runs exactly once when Release frees the mutex, after the mutex permit
// itself is returned; callers use it to clear any per-pod bookkeeping they
// set up when the conversation was opened. It may be nil.
func New(ctx context.Context, podID string, source RequestSource, podMutex *Mutex, onRelease func()) *Conversation {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Conversation{
		PodID:         podID,
		RequestSource: source,
		Started:       time.Now().UTC(),
		cancelCtx:     cancelCtx,
		cancel:        cancel,
		mutex:         podMutex,
		onRelease:     onRelease,
	}
}

// NewExchange allocates a progress object, links it as CurrentExchange,
// and records the request it carries.
func (c *Conversation) NewExchange(req message.Request) *ExchangeProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &ExchangeProgress{Request: req}
	c.currentExchange = p
	return p
}

// CurrentExchange returns the conversation's current (or most recently
// completed) exchange progress, if any.
func (c *Conversation) CurrentExchange() *ExchangeProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentExchange
}

// Context returns the conversation's cancellation token. Long poll loops
// (bolus wait, purge wait, priming wait) select on Context().Done()
// between delays.
func (c *Conversation) Context() context.Context {
	return c.cancelCtx
}

// RequestCancel signals the cancellation token. It does not by itself mark
// the conversation canceled — only a successful cancel_bolus (or a future
// analogous cancellable operation) does that, via MarkCanceled.
func (c *Conversation) RequestCancel() {
	c.cancel()
}

// MarkCanceled records that the in-flight cancellable operation completed
// cancellation successfully. Monotonic: once set, stays set.
func (c *Conversation) MarkCanceled() {
	c.canceled.Store(true)
}

// Canceled reports whether the conversation was successfully canceled.
func (c *Conversation) Canceled() bool { return c.canceled.Load() }

// MarkFailed records that the conversation's operation failed outright
// (distinct from a failed cancellation attempt). Monotonic.
func (c *Conversation) MarkFailed() {
	c.failed.Store(true)
}

// Failed reports whether the conversation's operation failed.
func (c *Conversation) Failed() bool { return c.failed.Load() }

// CancelFailed marks the conversation as "cancel attempted but failed".
// This is distinct from MarkFailed: it specifically means the
// bolus-cancel path could not confirm the pod stopped delivering.
func (c *Conversation) CancelFailed() {
	c.cancelFailed.Store(true)
	c.failed.Store(true)
}

// CancelDidFail reports whether a cancellation attempt failed.
func (c *Conversation) CancelDidFail() bool { return c.cancelFailed.Load() }

// SetException records the operation's terminal error. Therapy operations
// catch every error at their boundary and assign it here rather than
// propagating it to the caller.
func (c *Conversation) SetException(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		return
	}
	c.exception = err
	c.failed.Store(true)
}

// Exception returns the operation's terminal error, if any.
func (c *Conversation) Exception() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exception
}

// Release frees the pod's conversation mutex exactly once, regardless of
// how many times Release is called or which exit path reached it. Callers
// invoke it via a defer immediately after StartConversation succeeds.
func (c *Conversation) Release() {
	if c.released.CompareAndSwap(false, true) {
		c.cancel()
		c.mutex.Release()
		if c.onRelease != nil {
			c.onRelease()
		}
	}
}
