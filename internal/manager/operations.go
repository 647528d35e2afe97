package manager

import (
	"context"
	"time"

	"github.com/strandhealth/podctl/internal/conversation"
	"github.com/strandhealth/podctl/internal/message"
	"github.com/strandhealth/podctl/internal/pod"
	"github.com/strandhealth/podctl/internal/poderr"
)

// pairingOverrides returns the address/power overrides shared by both of
// Pair's exchanges: the pod has no assigned address yet, so every message
// is broadcast and acknowledged on the pod's eventual radio address at
// reduced power.
func (m *Manager) pairingOverrides() message.ExchangeParameters {
	addrOverride := uint32(0xFFFFFFFF)
	ackOverride := m.state.RadioAddress
	txPower := pod.A3_BelowNormal

	params := m.GetStandardParameters()
	params.AddressOverride = &addrOverride
	params.AckAddressOverride = &ackOverride
	params.TransmissionLevelOverride = &txPower
	params.AllowAutoLevelAdjustment = false
	return params
}

// Pair performs the two-exchange pairing handshake: assign_address, then
// setup_pod once the pod reports itself filled.
func (m *Manager) Pair(ctx context.Context, conv *conversation.Conversation, utcOffsetMinutes int) {
	if err := assertNotPaired(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}

	status := m.state.LastStatus
	if status == nil || status.Progress <= pod.TankFillCompleted {
		params := m.pairingOverrides()
		if _, err := m.performExchange(ctx, conv, message.AssignAddress(m.state.RadioAddress), params, nil); err != nil {
			conv.SetException(err)
			return
		}

		status = m.state.LastStatus
		if status == nil {
			conv.SetException(poderr.New(poderr.KindRadioRecvTimeout, "no status returned"))
			return
		}
		if status.Progress < pod.TankFillCompleted {
			conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "not filled"))
			return
		}
	}

	if status.Progress < pod.PairingSuccess {
		now := time.Now().UTC()
		m.state.ActivationDate = &now
		podDate := message.ToPodDate(now.Add(time.Duration(utcOffsetMinutes) * time.Minute))

		seqOverride := uint8(1)
		params := m.pairingOverrides()
		params.MessageSequenceOverride = &seqOverride

		lot, serial := uint32(0), uint32(0)
		if m.state.Lot != nil {
			lot = *m.state.Lot
		}
		if m.state.Serial != nil {
			serial = *m.state.Serial
		}

		req := message.SetupPod(lot, serial, m.state.RadioAddress, podDate)
		if _, err := m.performExchange(ctx, conv, req, params, nil); err != nil {
			conv.SetException(err)
			return
		}
	}

	if err := assertPaired(m.state.LastStatus); err != nil {
		conv.SetException(err)
	}
}

// Activate runs alert setup, delivery flags, and cannula priming, then
// polls until the pod reports it has finished purging.
func (m *Manager) Activate(ctx context.Context, conv *conversation.Conversation) {
	if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
		conv.SetException(err)
		return
	}

	status := m.state.LastStatus
	if status != nil && status.Progress > pod.ReadyForInjection {
		conv.SetException(poderr.New(poderr.KindPodStateInvalidForCommand, "pod already past activation"))
		return
	}

	if status != nil && status.Progress == pod.PairingSuccess {
		seqOverride := uint8(2)
		params := m.GetStandardParameters()
		params.MessageSequenceOverride = &seqOverride

		alertReq := message.AlertSetup(message.AlertSlot{
			Index:             7,
			Activate:          true,
			AlertAfterMinutes: 5,
			AlertDuration:     55,
			Beep:              message.BipBeepFourTimes,
			Repeat:            message.OnceEveryFiveMinutes,
		})
		if _, err := m.performExchange(ctx, conv, alertReq, params, nil); err != nil {
			conv.SetException(err)
			return
		}
		if _, err := m.performExchange(ctx, conv, message.DeliveryFlags(0, 0), m.GetStandardParameters(), nil); err != nil {
			conv.SetException(err)
			return
		}
		if _, err := m.performExchange(ctx, conv, message.PrimeCannula(), m.GetStandardParameters(), nil); err != nil {
			conv.SetException(err)
			return
		}
		if m.currentProgress() != pod.Purging {
			conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "expected Purging after prime_cannula"))
			return
		}
	}

	for m.currentProgress() == pod.Purging {
		if m.sleepCancelable(ctx, conv, "activate_purge", purgeOrPrimeDelay(m.state.LastStatus.NotDeliveredInsulin)) {
			conv.SetException(context.Canceled)
			return
		}
		if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
			conv.SetException(err)
			return
		}
	}

	if m.currentProgress() != pod.ReadyForInjection {
		conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "expected ReadyForInjection"))
	}
}

// InjectAndStart installs the basal schedule, primes the cannula via
// insert_cannula, and polls until the pod starts running.
func (m *Manager) InjectAndStart(ctx context.Context, conv *conversation.Conversation, schedule []float64, utcOffsetMinutes int) {
	if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
		conv.SetException(err)
		return
	}

	status := m.state.LastStatus
	if status == nil {
		conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "no status returned"))
		return
	}
	if status.Progress >= pod.Running {
		return
	}
	if status.Progress < pod.ReadyForInjection {
		conv.SetException(poderr.New(poderr.KindPodStateInvalidForCommand, "pod not ready for injection"))
		return
	}

	if status.Progress == pod.ReadyForInjection {
		if err := assertBasalScheduleValid(schedule); err != nil {
			conv.SetException(err)
			return
		}

		now := time.Now().UTC()
		podDate := message.ToPodDate(now.Add(time.Duration(utcOffsetMinutes) * time.Minute))

		params := m.GetStandardParameters()
		params.RepeatFirstPacket = true
		params.CriticalWithFollowupRequired = true

		progress := conv.NewExchange(message.BasalScheduleRequest(schedule))
		progress.Attachment = ScheduleAttachment{
			BasalSchedule: schedule,
			PodDate:       podDate,
			UTCOffset:     time.Duration(utcOffsetMinutes) * time.Minute,
		}
		if _, err := m.performExchange(ctx, conv, progress.Request, params, progress); err != nil {
			conv.SetException(err)
			return
		}
		if m.currentProgress() != pod.BasalScheduleSet {
			conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "expected BasalScheduleSet"))
			return
		}

		slots := message.AlertSetup(
			message.AlertSlot{Index: 7, Activate: false},
			message.AlertSlot{
				Index:             0,
				Activate:          true,
				TriggerAutoOff:    true,
				AlertAfterMinutes: 15,
				Beep:              message.BipBeepFourTimes,
				Repeat:            message.OnceEveryMinuteForFifteenMinutes,
			},
		)
		if _, err := m.performExchange(ctx, conv, slots, m.GetStandardParameters(), nil); err != nil {
			conv.SetException(err)
			return
		}
		if _, err := m.performExchange(ctx, conv, message.InsertCannula(), m.GetStandardParameters(), nil); err != nil {
			conv.SetException(err)
			return
		}
		if m.currentProgress() != pod.Priming {
			conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "expected Priming after insert_cannula"))
			return
		}

		insertionTime := time.Now().UTC()
		m.state.InsertionDate = &insertionTime
	}

	for m.currentProgress() == pod.Priming {
		if m.sleepCancelable(ctx, conv, "inject_and_start_prime", purgeOrPrimeDelay(m.state.LastStatus.NotDeliveredInsulin)) {
			conv.SetException(context.Canceled)
			return
		}
		if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
			conv.SetException(err)
			return
		}
	}

	if m.currentProgress() != pod.Running {
		conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "expected Running"))
		return
	}

	if m.state.LastStatus != nil {
		delivered := m.state.LastStatus.DeliveredInsulin
		m.state.ReservoirUsedForPriming = &delivered
	}
}

// UpdateStatus refreshes pod.last_status at standard detail.
func (m *Manager) UpdateStatus(ctx context.Context, conv *conversation.Conversation) {
	if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
		conv.SetException(err)
	}
}

// AcknowledgeAlerts clears the bits in mask that the pod currently has set.
func (m *Manager) AcknowledgeAlerts(ctx context.Context, conv *conversation.Conversation, mask uint8) {
	if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
		conv.SetException(err)
		return
	}

	status := m.state.LastStatus
	if err := assertImmediateBolusInactive(status); err != nil {
		conv.SetException(err)
		return
	}
	if status == nil || status.Progress < pod.PairingSuccess || status.Progress >= pod.ErrorShuttingDown || status.Progress == pod.AlertExpiredShuttingDown {
		conv.SetException(poderr.New(poderr.KindPodStateInvalidForCommand, "pod not in an alert-acknowledgeable state"))
		return
	}
	if status.AlertMask&mask != mask {
		conv.SetException(poderr.New(poderr.KindPodStateInvalidForCommand, "requested alerts are not currently active"))
		return
	}

	if _, err := m.performExchange(ctx, conv, message.AcknowledgeAlerts(mask), m.GetStandardParameters(), nil); err != nil {
		conv.SetException(err)
		return
	}

	if m.state.LastStatus != nil && m.state.LastStatus.AlertMask&mask != 0 {
		conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "acknowledged alerts did not clear"))
	}
}

// cancelAnyTempBasal cancels an in-progress temporary basal rate, if any,
// and confirms the pod left Temporary state. Shared preamble for
// SetTempBasal, CancelTempBasal, and SetBasalSchedule.
func (m *Manager) cancelAnyTempBasal(ctx context.Context, conv *conversation.Conversation) error {
	if m.state.LastStatus == nil || m.state.LastStatus.BasalState != pod.BasalTemporary {
		return nil
	}
	if _, err := m.performExchange(ctx, conv, message.CancelTempBasal(), m.GetStandardParameters(), nil); err != nil {
		return err
	}
	if m.state.LastStatus != nil && m.state.LastStatus.BasalState == pod.BasalTemporary {
		return poderr.New(poderr.KindPodResponseUnexpected, "temp basal still active after cancel")
	}
	return nil
}

// SetTempBasal cancels any running temp basal, then installs a new one.
func (m *Manager) SetTempBasal(ctx context.Context, conv *conversation.Conversation, rate, hours float64) {
	if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
		conv.SetException(err)
		return
	}
	if err := assertRunningStatus(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}
	if err := assertImmediateBolusInactive(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}
	if err := m.cancelAnyTempBasal(ctx, conv); err != nil {
		conv.SetException(err)
		return
	}

	progress := conv.NewExchange(message.TempBasalRequest(rate, hours))
	if _, err := m.performExchange(ctx, conv, progress.Request, m.GetStandardParameters(), progress); err != nil {
		conv.SetException(err)
		return
	}

	if m.state.LastStatus == nil || m.state.LastStatus.BasalState != pod.BasalTemporary {
		conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "expected temp basal to be active"))
		return
	}

	result := pod.ExchangeResult{
		RequestTime: progress.RequestTime,
		ResultTime:  progress.ResultTime,
		Success:     progress.Success,
		Exception:   progress.Exception,
	}
	m.state.LastTempBasalResult = &result
}

// CancelTempBasal cancels an in-progress temp basal and confirms the pod
// returned to its scheduled basal rate.
func (m *Manager) CancelTempBasal(ctx context.Context, conv *conversation.Conversation) {
	if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
		conv.SetException(err)
		return
	}
	if err := assertRunningStatus(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}
	if err := assertImmediateBolusInactive(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}
	if err := m.cancelAnyTempBasal(ctx, conv); err != nil {
		conv.SetException(err)
		return
	}

	if m.state.LastStatus == nil || m.state.LastStatus.BasalState != pod.BasalScheduled {
		conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "expected scheduled basal after cancel"))
		return
	}
	m.state.LastTempBasalResult = nil
}

// SetBasalSchedule cancels any running temp basal, then installs a new
// 48-slot basal schedule.
func (m *Manager) SetBasalSchedule(ctx context.Context, conv *conversation.Conversation, schedule []float64, utcOffsetMinutes int) {
	if err := assertBasalScheduleValid(schedule); err != nil {
		conv.SetException(err)
		return
	}
	if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
		conv.SetException(err)
		return
	}
	if err := assertRunningStatus(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}
	if err := assertImmediateBolusInactive(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}
	if err := m.cancelAnyTempBasal(ctx, conv); err != nil {
		conv.SetException(err)
		return
	}

	now := time.Now().UTC()
	podDate := message.ToPodDate(now.Add(time.Duration(utcOffsetMinutes) * time.Minute))

	params := m.GetStandardParameters()
	params.CriticalWithFollowupRequired = false

	progress := conv.NewExchange(message.BasalScheduleRequest(schedule))
	progress.Attachment = ScheduleAttachment{
		BasalSchedule: schedule,
		PodDate:       podDate,
		UTCOffset:     time.Duration(utcOffsetMinutes) * time.Minute,
	}
	if _, err := m.performExchange(ctx, conv, progress.Request, params, progress); err != nil {
		conv.SetException(err)
	}
}

// Bolus delivers an immediate bolus and, when waitForFinish is set, blocks
// until delivery completes or the conversation's cancellation token fires.
func (m *Manager) Bolus(ctx context.Context, conv *conversation.Conversation, amount float64, waitForFinish bool) {
	if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
		conv.SetException(err)
		return
	}
	if err := assertRunningStatus(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}
	if err := assertImmediateBolusInactive(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}
	if err := pod.ValidateBolusAmount(amount); err != nil {
		conv.SetException(err)
		return
	}

	if _, err := m.performExchange(ctx, conv, message.BolusRequest(amount), m.GetStandardParameters(), nil); err != nil {
		conv.SetException(err)
		return
	}
	if m.state.LastStatus == nil || m.state.LastStatus.BolusState != pod.BolusImmediate {
		conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "expected bolus delivery to start"))
		return
	}

	if !waitForFinish {
		return
	}

	for m.state.LastStatus != nil && m.state.LastStatus.BolusState == pod.BolusImmediate {
		if m.sleepCancelable(ctx, conv, "bolus_wait", bolusWaitDelay(m.state.LastStatus.NotDeliveredInsulin)) {
			_, cancelErr := m.performExchange(ctx, conv, message.CancelBolus(), m.GetStandardParameters(), nil)
			stillImmediate := m.state.LastStatus != nil && m.state.LastStatus.BolusState == pod.BolusImmediate
			if cancelErr != nil || stillImmediate {
				conv.CancelFailed()
				m.metrics.RecordBolusCancellation(ctx, false)
			} else {
				conv.MarkCanceled()
				m.metrics.RecordBolusCancellation(ctx, true)
			}
			return
		}

		if _, err := m.updateStatusInternal(ctx, conv, pod.StatusStandard); err != nil {
			conv.SetException(err)
			return
		}
	}

	if !conv.Canceled() && !conv.Failed() {
		if m.state.LastStatus == nil || m.state.LastStatus.NotDeliveredInsulin != 0 {
			conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "bolus did not fully deliver"))
		}
	}
}

// CancelBolus stops an in-progress immediate bolus outright, independent of
// Bolus's own wait loop (e.g. for a caller that chose wait_for_finish=false).
func (m *Manager) CancelBolus(ctx context.Context, conv *conversation.Conversation) {
	if err := assertRunningStatus(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}
	if err := assertImmediateBolusActive(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}

	if _, err := m.performExchange(ctx, conv, message.CancelBolus(), m.GetStandardParameters(), nil); err != nil {
		conv.SetException(err)
		return
	}
	if m.state.LastStatus == nil || m.state.LastStatus.BolusState != pod.BolusInactive {
		conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "expected bolus to be inactive"))
	}
}

// Deactivate retires the pod permanently.
func (m *Manager) Deactivate(ctx context.Context, conv *conversation.Conversation) {
	if err := assertPaired(m.state.LastStatus); err != nil {
		conv.SetException(err)
		return
	}
	if m.state.LastStatus.Progress >= pod.Inactive {
		return
	}

	if _, err := m.performExchange(ctx, conv, message.Deactivate(), m.GetStandardParameters(), nil); err != nil {
		conv.SetException(err)
		return
	}
	if m.currentProgress() != pod.Inactive {
		conv.SetException(poderr.New(poderr.KindPodResponseUnexpected, "expected Inactive"))
	}
}

// Reserved surface: documented in the external interface but not yet
// implemented against any pod firmware revision this module targets.

func (m *Manager) ConfigureAlerts(_ context.Context, conv *conversation.Conversation) {
	conv.SetException(poderr.New(poderr.KindNotImplemented, "ConfigureAlerts is not implemented"))
}

func (m *Manager) StartExtendedBolus(_ context.Context, conv *conversation.Conversation) {
	conv.SetException(poderr.New(poderr.KindNotImplemented, "StartExtendedBolus is not implemented"))
}

func (m *Manager) CancelExtendedBolus(_ context.Context, conv *conversation.Conversation) {
	conv.SetException(poderr.New(poderr.KindNotImplemented, "CancelExtendedBolus is not implemented"))
}

func (m *Manager) SuspendBasal(_ context.Context, conv *conversation.Conversation) {
	conv.SetException(poderr.New(poderr.KindNotImplemented, "SuspendBasal is not implemented"))
}
