// Package wsexchange implements transport.Provider over a
// gorilla/websocket connection to a radio-gateway process, for
// deployments where the controller talks to a local companion process
// instead of a gRPC gateway. Reconnection on a dropped socket uses the
// same exponential-backoff-with-jitter helper as the gRPC adapter.
package wsexchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strandhealth/podctl/internal/conversation"
	"github.com/strandhealth/podctl/internal/message"
	"github.com/strandhealth/podctl/internal/pod"
	"github.com/strandhealth/podctl/internal/poderr"
	"github.com/strandhealth/podctl/internal/transport"
	"github.com/strandhealth/podctl/pkg/backoff"
	"github.com/strandhealth/podctl/transport/wireutil"
)

// Config configures the WebSocket transport.
type Config struct {
	URL                 string
	DialTimeout         time.Duration
	RequestTimeout      time.Duration
	MaxReconnectBackoff time.Duration
}

// Provider is a transport.Provider backed by one persistent WebSocket
// connection to the radio-gateway, reconnected with exponential backoff.
// gorilla/websocket forbids concurrent writes (and concurrent reads) on
// one connection, so every exchange round trip is serialized under mu —
// acceptable because the conversation mutex already limits one pod to one
// in-flight exchange at a time.
type Provider struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	retryCount int
}

// New returns a Provider that dials lazily on the first exchange.
func New(cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{cfg: cfg, logger: logger}
}

// GetMessageExchange returns an Exchange bound to the provider's shared
// connection.
func (p *Provider) GetMessageExchange(_ context.Context, params message.ExchangeParameters, _ *pod.State) (transport.Exchange, error) {
	return &Exchange{provider: p, params: params}, nil
}

// Close releases the underlying WebSocket connection.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Provider) ensureConnected(ctx context.Context) (*websocket.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		p.retryCount = 0
		return p.conn, nil
	}

	if p.retryCount > 0 {
		d := backoff.Calculate(p.retryCount, p.cfg.MaxReconnectBackoff)
		p.logger.Warn("backing off before radio-gateway reconnect", "attempt", p.retryCount, "delay", d)
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, p.cfg.URL, nil)
	if err != nil {
		p.retryCount++
		return nil, fmt.Errorf("failed to dial radio-gateway at %s: %w", p.cfg.URL, err)
	}

	// The close handler runs inside ReadMessage, which GetResponse only
	// calls while holding p.mu, so it must not take the lock itself.
	conn.SetCloseHandler(func(code int, text string) error {
		p.conn = nil
		return nil
	})

	p.conn = conn
	p.retryCount = 0
	p.logger.Info("connected to radio-gateway", "url", p.cfg.URL)
	return conn, nil
}

func (p *Provider) dropConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Exchange implements transport.Exchange over the provider's shared
// WebSocket connection.
type Exchange struct {
	provider *Provider
	params   message.ExchangeParameters
}

// InitializeExchange ensures a live WebSocket connection exists.
func (e *Exchange) InitializeExchange(ctx context.Context, _ *conversation.ExchangeProgress) error {
	_, err := e.provider.ensureConnected(ctx)
	if err != nil {
		return poderr.Wrap(poderr.KindRadioGeneric, err, "failed to connect to radio-gateway")
	}
	return nil
}

// GetResponse sends req as a JSON binary frame and blocks for the
// gateway's response frame, serialized under the provider's write/read
// lock.
func (e *Exchange) GetResponse(ctx context.Context, req message.Request, _ *conversation.ExchangeProgress) (message.Response, error) {
	e.provider.mu.Lock()
	conn := e.provider.conn
	defer e.provider.mu.Unlock()

	if conn == nil {
		return message.Response{}, poderr.New(poderr.KindInternalError, "exchange connection not initialized")
	}

	if deadline, ok := deadlineFromTimeout(e.provider.cfg.RequestTimeout); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	payload, err := json.Marshal(wireRequest{
		Opcode:                  req.Opcode.String(),
		RadioAddress:            req.RadioAddress,
		Lot:                     req.Lot,
		Serial:                  req.Serial,
		BasalSchedule:           req.BasalSchedule,
		TempBasalRate:           req.TempBasalRate,
		TempBasalHours:          req.TempBasalHours,
		BolusAmount:             req.BolusAmount,
		AlertAckMask:            req.AlertAckMask,
		StatusType:              req.StatusType,
		AddressOverride:         e.params.AddressOverride,
		MessageSequenceOverride: e.params.MessageSequenceOverride,
	})
	if err != nil {
		return message.Response{}, poderr.Wrap(poderr.KindInternalError, err, "failed to frame request")
	}

	// e.provider.mu is already held here, so the connection is dropped
	// inline rather than through dropConnection, which takes the lock.
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		_ = conn.Close()
		e.provider.conn = nil
		return message.Response{}, poderr.Wrap(poderr.KindRadioSendTimeout, err, "failed to send exchange frame")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		e.provider.conn = nil
		return message.Response{}, poderr.Wrap(poderr.KindRadioRecvTimeout, err, "failed to receive exchange frame")
	}

	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return message.Response{}, poderr.Wrap(poderr.KindPodResponseUnexpected, err, "failed to parse exchange response frame")
	}

	return message.Response{Sequence: wire.Sequence, Fields: wire.Fields}, nil
}

// ParseResponse copies the gateway-decoded status fields into
// state.LastStatus, mirroring the gRPC adapter.
func (e *Exchange) ParseResponse(_ context.Context, resp message.Response, state *pod.State, _ *conversation.ExchangeProgress) error {
	return wireutil.ApplyResponseFields(resp, state)
}

func deadlineFromTimeout(d time.Duration) (time.Time, bool) {
	if d <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(d), true
}

type wireRequest struct {
	Opcode                  string    `json:"opcode"`
	RadioAddress            uint32    `json:"radio_address"`
	Lot                     uint32    `json:"lot,omitempty"`
	Serial                  uint32    `json:"serial,omitempty"`
	BasalSchedule           []float64 `json:"basal_schedule,omitempty"`
	TempBasalRate           float64   `json:"temp_basal_rate,omitempty"`
	TempBasalHours          float64   `json:"temp_basal_hours,omitempty"`
	BolusAmount             float64   `json:"bolus_amount,omitempty"`
	AlertAckMask            uint8     `json:"alert_ack_mask,omitempty"`
	StatusType              int       `json:"status_type,omitempty"`
	AddressOverride         *uint32   `json:"address_override,omitempty"`
	MessageSequenceOverride *uint8    `json:"message_sequence_override,omitempty"`
}

type wireResponse struct {
	Sequence uint8          `json:"sequence"`
	Fields   map[string]any `json:"fields"`
}
