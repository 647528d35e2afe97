// Package wireutil holds the response-frame field mapping shared by the
// gRPC and WebSocket transport adapters, so both interpret the same
// gateway-decoded status keys identically instead of drifting apart.
package wireutil

import (
	"fmt"

	"github.com/strandhealth/podctl/internal/message"
	"github.com/strandhealth/podctl/internal/pod"
)

// ApplyResponseFields copies the well-known status keys a radio-gateway
// response frame carries into state.LastStatus, and sets
// state.RuntimeVariables.NonceSync when the gateway reports the pod
// requested nonce renegotiation (clearing it otherwise). Unrecognized keys
// are ignored: the gateway may carry additional diagnostic fields this
// module never needs.
func ApplyResponseFields(resp message.Response, state *pod.State) error {
	state.RuntimeVariables.NonceSync = nil
	if resp.Fields == nil {
		return nil
	}

	status := state.LastStatus
	if status == nil {
		status = &pod.Status{}
	}

	if v, ok := resp.Fields["progress"]; ok {
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("progress field: %w", err)
		}
		status.Progress = pod.Progress(n)
	}
	if v, ok := resp.Fields["basal_state"]; ok {
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("basal_state field: %w", err)
		}
		status.BasalState = pod.BasalState(n)
	}
	if v, ok := resp.Fields["bolus_state"]; ok {
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("bolus_state field: %w", err)
		}
		status.BolusState = pod.BolusState(n)
	}
	if v, ok := resp.Fields["alert_mask"]; ok {
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("alert_mask field: %w", err)
		}
		status.AlertMask = uint8(n)
	}
	if v, ok := resp.Fields["delivered_insulin"]; ok {
		f, err := asFloat(v)
		if err != nil {
			return fmt.Errorf("delivered_insulin field: %w", err)
		}
		status.DeliveredInsulin = f
	}
	if v, ok := resp.Fields["not_delivered_insulin"]; ok {
		f, err := asFloat(v)
		if err != nil {
			return fmt.Errorf("not_delivered_insulin field: %w", err)
		}
		status.NotDeliveredInsulin = f
	}
	if v, ok := resp.Fields["reservoir"]; ok {
		f, err := asFloat(v)
		if err != nil {
			return fmt.Errorf("reservoir field: %w", err)
		}
		status.Reservoir = f
	}
	status.MessageSequence = resp.Sequence

	state.LastStatus = status

	if v, ok := resp.Fields["nonce_sync"]; ok {
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("nonce_sync field: %w", err)
		}
		hint := uint16(n)
		state.RuntimeVariables.NonceSync = &hint
	}

	return nil
}

func asInt(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", v)
	}
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", v)
	}
}
