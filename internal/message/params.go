package message

import "github.com/strandhealth/podctl/internal/pod"

// NonceSource supplies the next per-message nonce. It is satisfied by
// *nonce.Generator; kept as an interface here so the message package does
// not import nonce (avoiding an import cycle with internal/manager, which
// wires both together).
type NonceSource interface {
	Next() uint32
}

// ExchangeParameters controls one radio exchange: address overrides,
// transmit power, sequence override, auto-level-adjust flag, and the
// critical/repeat flags that tell the transport how aggressively to retry
// at the link layer.
type ExchangeParameters struct {
	Nonce NonceSource

	AllowAutoLevelAdjustment bool

	AddressOverride           *uint32
	AckAddressOverride        *uint32
	TransmissionLevelOverride *pod.TxPower
	MessageSequenceOverride   *uint8

	RepeatFirstPacket            bool
	CriticalWithFollowupRequired bool
}

// StandardParameters returns the default ExchangeParameters used by every
// therapy operation that does not override address/power/sequence:
// { nonce: current, allow_auto_level_adjustment: true }.
func StandardParameters(nonce NonceSource) ExchangeParameters {
	return ExchangeParameters{
		Nonce:                    nonce,
		AllowAutoLevelAdjustment: true,
	}
}
