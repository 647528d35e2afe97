// Package transport defines the external contract the Pod Manager consumes
// to perform one radio exchange. Nothing in this package talks to real
// hardware — the on-air packet codec and radio driver live entirely in a
// separate radio-gateway process; concrete adapters living under the
// top-level transport/ directory implement this contract over a gRPC or
// WebSocket link to that process.
package transport

import (
	"context"

	"github.com/strandhealth/podctl/internal/conversation"
	"github.com/strandhealth/podctl/internal/message"
	"github.com/strandhealth/podctl/internal/pod"
)

// Provider yields a configured MessageExchange for one radio exchange,
// bound to the given exchange parameters and current pod state.
type Provider interface {
	GetMessageExchange(ctx context.Context, params message.ExchangeParameters, state *pod.State) (Exchange, error)
}

// Exchange performs one initialize -> send -> receive -> parse cycle
// against the radio. Implementations report progress via the
// ExchangeProgress the manager passes in.
type Exchange interface {
	// InitializeExchange performs best-effort radio/channel setup.
	InitializeExchange(ctx context.Context, progress *conversation.ExchangeProgress) error

	// GetResponse sends req and blocks for the reply.
	GetResponse(ctx context.Context, req message.Request, progress *conversation.ExchangeProgress) (message.Response, error)

	// ParseResponse updates state.LastStatus from resp, and may set
	// state.RuntimeVariables.NonceSync to request nonce renegotiation.
	ParseResponse(ctx context.Context, resp message.Response, state *pod.State, progress *conversation.ExchangeProgress) error
}
