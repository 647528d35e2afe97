package wireutil

import (
	"testing"

	"github.com/strandhealth/podctl/internal/message"
	"github.com/strandhealth/podctl/internal/pod"
)

func TestApplyResponseFieldsPopulatesStatus(t *testing.T) {
	t.Parallel()

	state := &pod.State{}
	resp := message.Response{
		Sequence: 7,
		Fields: map[string]any{
			"progress":              float64(pod.Running),
			"basal_state":           float64(pod.BasalScheduled),
			"bolus_state":           float64(pod.BolusInactive),
			"alert_mask":            float64(0x03),
			"delivered_insulin":     1.5,
			"not_delivered_insulin": 0.25,
			"reservoir":             180.0,
		},
	}

	if err := ApplyResponseFields(resp, state); err != nil {
		t.Fatalf("ApplyResponseFields: %v", err)
	}

	if state.LastStatus == nil {
		t.Fatal("expected LastStatus to be populated")
	}
	if state.LastStatus.Progress != pod.Running {
		t.Errorf("Progress = %v, want Running", state.LastStatus.Progress)
	}
	if state.LastStatus.MessageSequence != 7 {
		t.Errorf("MessageSequence = %v, want 7", state.LastStatus.MessageSequence)
	}
	if state.LastStatus.NotDeliveredInsulin != 0.25 {
		t.Errorf("NotDeliveredInsulin = %v, want 0.25", state.LastStatus.NotDeliveredInsulin)
	}
	if state.RuntimeVariables.NonceSync != nil {
		t.Error("expected NonceSync to remain nil when not present in fields")
	}
}

func TestApplyResponseFieldsSetsNonceSyncHint(t *testing.T) {
	t.Parallel()

	state := &pod.State{}
	resp := message.Response{
		Fields: map[string]any{"nonce_sync": float64(42)},
	}

	if err := ApplyResponseFields(resp, state); err != nil {
		t.Fatalf("ApplyResponseFields: %v", err)
	}

	if state.RuntimeVariables.NonceSync == nil {
		t.Fatal("expected NonceSync to be set")
	}
	if *state.RuntimeVariables.NonceSync != 42 {
		t.Errorf("NonceSync = %v, want 42", *state.RuntimeVariables.NonceSync)
	}
}

func TestApplyResponseFieldsPreservesExistingStatusOnEmptyFields(t *testing.T) {
	t.Parallel()

	existing := &pod.Status{Progress: pod.PairingSuccess}
	state := &pod.State{LastStatus: existing}

	if err := ApplyResponseFields(message.Response{}, state); err != nil {
		t.Fatalf("ApplyResponseFields: %v", err)
	}
	if state.LastStatus != existing {
		t.Error("expected LastStatus to be left untouched when Fields is nil")
	}
}

func TestApplyResponseFieldsRejectsNonNumericField(t *testing.T) {
	t.Parallel()

	state := &pod.State{}
	resp := message.Response{Fields: map[string]any{"progress": "not a number"}}

	if err := ApplyResponseFields(resp, state); err == nil {
		t.Error("expected an error for a non-numeric progress field")
	}
}
