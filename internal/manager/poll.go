package manager

import (
	"context"
	"time"

	"github.com/strandhealth/podctl/internal/conversation"
	"github.com/strandhealth/podctl/internal/pod"
)

// purgeOrPrimeDelay is the tick-based delay formula used while polling
// through Purging (Activate) and Priming (InjectAndStart): (not_delivered /
// 0.05) * 1000 + 200 ms.
func purgeOrPrimeDelay(notDeliveredInsulin float64) time.Duration {
	ticks := notDeliveredInsulin / 0.05
	return time.Duration(ticks*1000+200) * time.Millisecond
}

// bolusWaitDelay is Bolus's wait-for-finish delay formula: (not_delivered /
// 0.05) * 2000 + 500 ms.
func bolusWaitDelay(notDeliveredInsulin float64) time.Duration {
	ticks := notDeliveredInsulin / 0.05
	return time.Duration(ticks*2000+500) * time.Millisecond
}

// currentProgress reads the pod's current lifecycle state, treating an
// absent status as InitialState.
func (m *Manager) currentProgress() pod.Progress {
	if m.state.LastStatus == nil {
		return pod.InitialState
	}
	return m.state.LastStatus.Progress
}

// sleepCancelable waits for d, or for the conversation's cancellation token
// to fire, whichever happens first. It reports a heartbeat and a poll-wait
// metric on the non-canceled path, matching what a long poll loop's caller
// needs to distinguish "still legitimately waiting" from "process hung".
// Returns true if the wait was interrupted by cancellation.
func (m *Manager) sleepCancelable(ctx context.Context, conv *conversation.Conversation, operation string, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		m.metrics.RecordPollWait(ctx, operation, d.Seconds()*1000)
		if m.heartbeat != nil {
			if err := m.heartbeat.ReportProgress(); err != nil {
				m.logger.Warn("heartbeat report failed", "operation", operation, "error", err)
			}
		}
		return false
	case <-conv.Context().Done():
		return true
	}
}
