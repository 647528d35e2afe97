package manager_test

import (
	"context"
	"testing"
	"time"

	"github.com/strandhealth/podctl/internal/conversation"
	"github.com/strandhealth/podctl/internal/message"
	"github.com/strandhealth/podctl/internal/pod"
	"github.com/strandhealth/podctl/internal/poderr"
)

func withConversation(t *testing.T, m interface {
	StartConversation(context.Context, time.Duration, conversation.RequestSource) (*conversation.Conversation, bool)
}) *conversation.Conversation {
	t.Helper()
	conv, ok := m.StartConversation(context.Background(), 0, conversation.SourceUser)
	if !ok {
		t.Fatal("expected StartConversation to succeed")
	}
	t.Cleanup(conv.Release)
	return conv
}

// Scenario 1: pair from scratch.
func TestPairFromScratch(t *testing.T) {
	t.Parallel()
	provider := newScriptedProvider(
		step{status: statusAt(pod.TankFillCompleted)},
		step{status: statusAt(pod.PairingSuccess)},
	)
	m, _ := newTestManager(t, provider)
	conv := withConversation(t, m)

	m.Pair(context.Background(), conv, 0)

	if err := conv.Exception(); err != nil {
		t.Fatalf("expected no exception, got %v", err)
	}
	if provider.remaining() != 0 {
		t.Fatalf("expected both scripted exchanges to be consumed, %d remain", provider.remaining())
	}
	if len(provider.capturedParams) != 2 {
		t.Fatalf("expected exactly two exchanges, got %d", len(provider.capturedParams))
	}
	second := provider.capturedParams[1]
	if second.MessageSequenceOverride == nil || *second.MessageSequenceOverride != 1 {
		t.Fatalf("expected setup_pod to override message_sequence to 1, got %+v", second.MessageSequenceOverride)
	}
	if m.State().ActivationDate == nil {
		t.Fatal("expected activation_date to be set")
	}
}

// Scenario 2: bolus waits to finish.
func TestBolusWaitsToFinish(t *testing.T) {
	t.Parallel()
	provider := newScriptedProvider(
		step{status: &pod.Status{Progress: pod.Running, BolusState: pod.BolusInactive, NotDeliveredInsulin: 0}},
		step{status: &pod.Status{Progress: pod.Running, BolusState: pod.BolusImmediate, NotDeliveredInsulin: 0}},
		step{status: &pod.Status{Progress: pod.Running, BolusState: pod.BolusInactive, NotDeliveredInsulin: 0}},
	)
	m, _ := newTestManager(t, provider)
	conv := withConversation(t, m)

	m.Bolus(context.Background(), conv, 0.50, true)

	if err := conv.Exception(); err != nil {
		t.Fatalf("expected no exception, got %v", err)
	}
	if conv.Canceled() || conv.Failed() {
		t.Fatal("expected neither canceled nor failed")
	}
	if m.State().LastStatus.NotDeliveredInsulin != 0 {
		t.Fatalf("expected not_delivered_insulin == 0, got %v", m.State().LastStatus.NotDeliveredInsulin)
	}
	if provider.remaining() != 0 {
		t.Fatalf("expected all three scripted exchanges to be consumed, %d remain", provider.remaining())
	}
}

// Scenario 3: bolus canceled mid-delivery.
func TestBolusCanceledMidDelivery(t *testing.T) {
	t.Parallel()
	provider := newScriptedProvider(
		step{status: &pod.Status{Progress: pod.Running, BolusState: pod.BolusInactive, NotDeliveredInsulin: 0}},
		step{status: &pod.Status{Progress: pod.Running, BolusState: pod.BolusImmediate, NotDeliveredInsulin: 0.30}},
		step{status: &pod.Status{Progress: pod.Running, BolusState: pod.BolusInactive, NotDeliveredInsulin: 0}},
	)
	m, _ := newTestManager(t, provider)
	conv := withConversation(t, m)

	done := make(chan struct{})
	go func() {
		m.Bolus(context.Background(), conv, 0.50, true)
		close(done)
	}()

	conv.RequestCancel()
	<-done

	if !conv.Canceled() {
		t.Fatalf("expected conversation to be canceled, cancel_failed=%v failed=%v exception=%v", conv.CancelDidFail(), conv.Failed(), conv.Exception())
	}
	if provider.remaining() != 0 {
		t.Fatalf("expected cancel_bolus exchange to be issued, %d scripted steps unconsumed", provider.remaining())
	}
	last := provider.capturedRequests[len(provider.capturedRequests)-1]
	if last != message.OpCancelBolus {
		t.Fatalf("expected last request to be cancel_bolus, got %v", last)
	}
}

// Scenario 4: invalid basal schedule.
func TestSetBasalScheduleRejectsWrongLength(t *testing.T) {
	t.Parallel()
	provider := newScriptedProvider(
		step{status: &pod.Status{Progress: pod.Running, BasalState: pod.BasalScheduled}},
	)
	m, _ := newTestManager(t, provider)
	m.State().LastStatus = &pod.Status{Progress: pod.Running, BasalState: pod.BasalScheduled}
	conv := withConversation(t, m)

	schedule := make([]float64, 47)
	for i := range schedule {
		schedule[i] = 0.05
	}

	m.SetBasalSchedule(context.Background(), conv, schedule, 0)

	err := conv.Exception()
	if err == nil {
		t.Fatal("expected an exception")
	}
	if poderr.KindOf(err) != poderr.KindInvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", poderr.KindOf(err))
	}
	if provider.remaining() != 1 {
		t.Fatalf("expected no radio exchange to be issued, but %d of 1 scripted steps were consumed", 1-provider.remaining())
	}
	if len(provider.capturedRequests) != 0 {
		t.Fatalf("expected zero exchanges, got %d", len(provider.capturedRequests))
	}
}

// Scenario 5: nonce resync succeeds on the single permitted retry.
func TestUpdateStatusResyncsNonceOnce(t *testing.T) {
	t.Parallel()
	hint := uint16(0xBEEF)
	provider := newScriptedProvider(
		step{status: statusAt(pod.Running), nonceSyncHint: &hint},
		step{status: statusAt(pod.Running)},
	)
	m, _ := newTestManager(t, provider)
	conv := withConversation(t, m)

	m.UpdateStatus(context.Background(), conv)

	if err := conv.Exception(); err != nil {
		t.Fatalf("expected no exception, got %v", err)
	}
	if m.State().RuntimeVariables.NonceSync != nil {
		t.Fatal("expected nonce_sync to be cleared after the retry")
	}
	if len(provider.capturedParams) != 2 {
		t.Fatalf("expected exactly one retry (two exchanges total), got %d", len(provider.capturedParams))
	}
}

// Nonce resync that never clears fails permanently after the one retry.
func TestUpdateStatusNonceResyncFailsPermanently(t *testing.T) {
	t.Parallel()
	hint := uint16(0xBEEF)
	provider := newScriptedProvider(
		step{status: statusAt(pod.Running), nonceSyncHint: &hint},
		step{status: statusAt(pod.Running), nonceSyncHint: &hint},
	)
	m, _ := newTestManager(t, provider)
	conv := withConversation(t, m)

	m.UpdateStatus(context.Background(), conv)

	err := conv.Exception()
	if err == nil {
		t.Fatal("expected an exception")
	}
	if poderr.KindOf(err) != poderr.KindPodResponseUnexpected {
		t.Fatalf("expected PodResponseUnexpected, got %v", poderr.KindOf(err))
	}
	if len(provider.capturedParams) != 2 {
		t.Fatalf("expected exactly one retry attempt, got %d exchanges", len(provider.capturedParams))
	}
}

// Scenario 6: temp basal replaced.
func TestSetTempBasalReplacesExisting(t *testing.T) {
	t.Parallel()
	provider := newScriptedProvider(
		step{status: &pod.Status{Progress: pod.Running, BasalState: pod.BasalTemporary}},
		step{status: &pod.Status{Progress: pod.Running, BasalState: pod.BasalScheduled}},
		step{status: &pod.Status{Progress: pod.Running, BasalState: pod.BasalTemporary}},
	)
	m, _ := newTestManager(t, provider)
	conv := withConversation(t, m)

	m.SetTempBasal(context.Background(), conv, 0.8, 1.0)

	if err := conv.Exception(); err != nil {
		t.Fatalf("expected no exception, got %v", err)
	}
	if m.State().LastStatus.BasalState != pod.BasalTemporary {
		t.Fatalf("expected BasalState == Temporary, got %v", m.State().LastStatus.BasalState)
	}
	if m.State().LastTempBasalResult == nil || !m.State().LastTempBasalResult.Success {
		t.Fatal("expected last_temp_basal_result to be recorded as successful")
	}
	wantOps := []message.Opcode{message.OpStatus, message.OpCancelTempBasal, message.OpTempBasal}
	if len(provider.capturedRequests) != len(wantOps) {
		t.Fatalf("expected %d exchanges, got %d", len(wantOps), len(provider.capturedRequests))
	}
	for i, op := range wantOps {
		if provider.capturedRequests[i] != op {
			t.Fatalf("exchange %d: expected opcode %v, got %v", i, op, provider.capturedRequests[i])
		}
	}
}

// CancelTempBasal is a no-op when the pod is already on a scheduled rate.
func TestCancelTempBasalNoopWhenAlreadyScheduled(t *testing.T) {
	t.Parallel()
	provider := newScriptedProvider(
		step{status: &pod.Status{Progress: pod.Running, BasalState: pod.BasalScheduled}},
	)
	m, _ := newTestManager(t, provider)
	conv := withConversation(t, m)

	m.CancelTempBasal(context.Background(), conv)

	if err := conv.Exception(); err != nil {
		t.Fatalf("expected no exception, got %v", err)
	}
	if len(provider.capturedRequests) != 1 || provider.capturedRequests[0] != message.OpStatus {
		t.Fatalf("expected only the status refresh, got %v", provider.capturedRequests)
	}
}

func TestDeactivateRequiresPairing(t *testing.T) {
	t.Parallel()
	provider := newScriptedProvider()
	m, _ := newTestManager(t, provider)
	conv := withConversation(t, m)

	m.Deactivate(context.Background(), conv)

	err := conv.Exception()
	if err == nil {
		t.Fatal("expected an exception")
	}
	if poderr.KindOf(err) != poderr.KindPodStateInvalidForCommand {
		t.Fatalf("expected PodStateInvalidForCommand, got %v", poderr.KindOf(err))
	}
}

func TestReservedOperationsAreNotImplemented(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, newScriptedProvider())

	tests := []struct {
		name string
		run  func(*conversation.Conversation)
	}{
		{"ConfigureAlerts", func(c *conversation.Conversation) { m.ConfigureAlerts(context.Background(), c) }},
		{"StartExtendedBolus", func(c *conversation.Conversation) { m.StartExtendedBolus(context.Background(), c) }},
		{"CancelExtendedBolus", func(c *conversation.Conversation) { m.CancelExtendedBolus(context.Background(), c) }},
		{"SuspendBasal", func(c *conversation.Conversation) { m.SuspendBasal(context.Background(), c) }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			conv, ok := m.StartConversation(context.Background(), 0, conversation.SourceUser)
			if !ok {
				t.Fatal("expected StartConversation to succeed")
			}
			defer conv.Release()

			tt.run(conv)

			if poderr.KindOf(conv.Exception()) != poderr.KindNotImplemented {
				t.Fatalf("expected NotImplemented, got %v", conv.Exception())
			}
		})
	}
}
