package manager

import (
	"github.com/strandhealth/podctl/internal/pod"
	"github.com/strandhealth/podctl/internal/poderr"
)

// assertBasalScheduleValid validates a schedule before any radio exchange is
// issued for it.
func assertBasalScheduleValid(schedule []float64) error {
	return pod.ValidateBasalSchedule(schedule)
}

// assertImmediateBolusInactive fails if a bolus is currently being
// delivered.
func assertImmediateBolusInactive(status *pod.Status) error {
	if status != nil && status.BolusState == pod.BolusImmediate {
		return poderr.New(poderr.KindPodStateInvalidForCommand, "bolus in progress")
	}
	return nil
}

// assertImmediateBolusActive is the inverse of assertImmediateBolusInactive.
func assertImmediateBolusActive(status *pod.Status) error {
	if status == nil || status.BolusState != pod.BolusImmediate {
		return poderr.New(poderr.KindPodStateInvalidForCommand, "no bolus in progress")
	}
	return nil
}

// assertNotPaired fails if the pod has already progressed past pairing.
func assertNotPaired(status *pod.Status) error {
	if status != nil && status.Progress >= pod.PairingSuccess {
		return poderr.New(poderr.KindPodStateInvalidForCommand, "pod already paired")
	}
	return nil
}

// assertPaired fails if the pod has not yet completed pairing.
func assertPaired(status *pod.Status) error {
	if status == nil || status.Progress < pod.PairingSuccess {
		return poderr.New(poderr.KindPodStateInvalidForCommand, "pod not paired")
	}
	return nil
}

// assertRunningStatus fails unless the pod is in Running or RunningLow.
func assertRunningStatus(status *pod.Status) error {
	if status == nil || status.Progress < pod.Running || status.Progress > pod.RunningLow {
		return poderr.New(poderr.KindPodStateInvalidForCommand, "pod is not running")
	}
	return nil
}
