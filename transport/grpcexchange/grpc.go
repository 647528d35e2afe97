// Package grpcexchange implements transport.Provider over a long-lived
// gRPC connection to a radio-gateway process. It never interprets pod
// opcodes: requests and responses cross the wire as opaque framed bytes,
// leaving the radio PHY and codec entirely to the gateway process. The
// RawMessage/rawCodec pair carries frames as raw bytes instead of
// marshaling them through protobuf: outgoing bytes are passed through
// as is, incoming bytes are copied out of gRPC's buffer.
package grpcexchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"

	"github.com/strandhealth/podctl/internal/conversation"
	"github.com/strandhealth/podctl/internal/message"
	"github.com/strandhealth/podctl/internal/pod"
	"github.com/strandhealth/podctl/internal/poderr"
	"github.com/strandhealth/podctl/internal/transport"
	"github.com/strandhealth/podctl/pkg/backoff"
	"github.com/strandhealth/podctl/transport/wireutil"
)

const (
	codecName  = "podctl-raw"
	methodName = "/podctl.radio.v1.RadioGateway/Exchange"
)

// RawMessage carries an opaque frame through gRPC without protobuf
// reflection. rawCodec's Marshal hands the byte slice straight through;
// Unmarshal copies the received bytes into Raw.
type RawMessage struct {
	Raw []byte
}

type rawCodec struct{}

func (rawCodec) Name() string { return codecName }

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case RawMessage:
		return m.Raw, nil
	case *RawMessage:
		return m.Raw, nil
	default:
		return nil, fmt.Errorf("podctl raw codec cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	raw, ok := v.(*RawMessage)
	if !ok {
		return fmt.Errorf("podctl raw codec cannot unmarshal into %T", v)
	}
	raw.Raw = make([]byte, len(data))
	copy(raw.Raw, data)
	return nil
}

func init() {
	encoding.RegisterCodec(rawCodec{})
}

var exchangeStreamDesc = grpc.StreamDesc{
	StreamName:    "Exchange",
	ClientStreams: true,
	ServerStreams: true,
}

// Config configures the gRPC transport.
type Config struct {
	Address             string
	DialTimeout         time.Duration
	RequestTimeout      time.Duration
	MaxReconnectBackoff time.Duration
	Insecure            bool
}

// Provider is a transport.Provider backed by one long-lived gRPC
// connection, reconnected with exponential backoff on failure.
type Provider struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	conn       *grpc.ClientConn
	retryCount int
}

// New dials the radio-gateway lazily: the first InitializeExchange call
// establishes the connection.
func New(cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{cfg: cfg, logger: logger}
}

// GetMessageExchange returns an Exchange bound to the provider's shared
// connection. Of params, only AddressOverride and MessageSequenceOverride
// are forwarded, in the request frame rather than the gRPC dial target;
// the other parameters are not sent to the gateway.
func (p *Provider) GetMessageExchange(_ context.Context, params message.ExchangeParameters, _ *pod.State) (transport.Exchange, error) {
	return &Exchange{provider: p, params: params}, nil
}

// Close releases the underlying gRPC connection.
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

func (p *Provider) ensureConnected(ctx context.Context) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		state := p.conn.GetState()
		if state.String() != "SHUTDOWN" && state.String() != "TRANSIENT_FAILURE" {
			p.retryCount = 0
			return p.conn, nil
		}
		_ = p.conn.Close()
		p.conn = nil
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

	var creds credentials.TransportCredentials
	if p.cfg.Insecure {
		creds = insecure.NewCredentials()
	} else {
		creds = credentials.NewTLS(nil)
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, p.cfg.Address,
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		p.retryCount++
		return nil, fmt.Errorf("failed to dial radio-gateway at %s: %w", p.cfg.Address, err)
	}

	p.conn = conn
	p.retryCount = 0
	p.logger.Info("connected to radio-gateway", "address", p.cfg.Address)
	return conn, nil
}

// Exchange implements transport.Exchange over a single gRPC bidi stream
// opened for the lifetime of one perform_exchange attempt.
type Exchange struct {
	provider *Provider
	params   message.ExchangeParameters

	stream grpc.ClientStream
}

// InitializeExchange ensures a live gRPC connection and opens the stream
// used for this attempt's single request/response round trip.
func (e *Exchange) InitializeExchange(ctx context.Context, _ *conversation.ExchangeProgress) error {
	conn, err := e.provider.ensureConnected(ctx)
	if err != nil {
		return poderr.Wrap(poderr.KindRadioGeneric, err, "failed to connect to radio-gateway")
	}

	stream, err := conn.NewStream(ctx, &exchangeStreamDesc, methodName)
	if err != nil {
		return poderr.Wrap(poderr.KindRadioGeneric, err, "failed to open exchange stream")
	}
	e.stream = stream
	return nil
}

// GetResponse sends req as a framed JSON payload and blocks for the
// gateway's response frame. JSON is a deliberately simple interim framing;
// the gateway process owns translating these frames to and from real
// radio packets.
func (e *Exchange) GetResponse(ctx context.Context, req message.Request, _ *conversation.ExchangeProgress) (message.Response, error) {
	if e.stream == nil {
		return message.Response{}, poderr.New(poderr.KindInternalError, "exchange stream not initialized")
	}

	reqCtx := ctx
	if e.provider.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, e.provider.cfg.RequestTimeout)
		defer cancel()
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

	if err := e.stream.SendMsg(RawMessage{Raw: payload}); err != nil {
		return message.Response{}, poderr.Wrap(poderr.KindRadioSendTimeout, err, "failed to send exchange frame")
	}

	var resp RawMessage
	recvDone := make(chan error, 1)
	go func() { recvDone <- e.stream.RecvMsg(&resp) }()

	select {
	case err := <-recvDone:
		if err != nil {
			return message.Response{}, poderr.Wrap(poderr.KindRadioRecvTimeout, err, "failed to receive exchange frame")
		}
	case <-reqCtx.Done():
		return message.Response{}, poderr.Wrap(poderr.KindRadioRecvTimeout, reqCtx.Err(), "timed out waiting for exchange response")
	}

	var wire wireResponse
	if err := json.Unmarshal(resp.Raw, &wire); err != nil {
		return message.Response{}, poderr.Wrap(poderr.KindPodResponseUnexpected, err, "failed to parse exchange response frame")
	}

	return message.Response{Sequence: wire.Sequence, Fields: wire.Fields}, nil
}

// ParseResponse copies the gateway-decoded status fields the response
// frame carried into state.LastStatus, and sets NonceSync when the
// gateway reports the pod requested nonce renegotiation.
func (e *Exchange) ParseResponse(_ context.Context, resp message.Response, state *pod.State, _ *conversation.ExchangeProgress) error {
	return wireutil.ApplyResponseFields(resp, state)
}

type wireRequest struct {
	Opcode                  string   `json:"opcode"`
	RadioAddress            uint32   `json:"radio_address"`
	Lot                     uint32   `json:"lot,omitempty"`
	Serial                  uint32   `json:"serial,omitempty"`
	BasalSchedule           []float64 `json:"basal_schedule,omitempty"`
	TempBasalRate           float64  `json:"temp_basal_rate,omitempty"`
	TempBasalHours          float64  `json:"temp_basal_hours,omitempty"`
	BolusAmount             float64  `json:"bolus_amount,omitempty"`
	AlertAckMask            uint8    `json:"alert_ack_mask,omitempty"`
	StatusType              int      `json:"status_type,omitempty"`
	AddressOverride         *uint32  `json:"address_override,omitempty"`
	MessageSequenceOverride *uint8   `json:"message_sequence_override,omitempty"`
}

type wireResponse struct {
	Sequence uint8          `json:"sequence"`
	Fields   map[string]any `json:"fields"`
}
