package pod

import (
	"math"

	"github.com/strandhealth/podctl/internal/poderr"
)

// BasalScheduleSlots is the number of half-hour slots in a 24h basal
// schedule (spec invariant: exactly 48 entries).
const BasalScheduleSlots = 48

const (
	basalSlotStep = 0.05
	basalSlotMax  = 30.0
	// epsilon guards against float64 accumulation when checking that an
	// entry is a clean multiple of basalSlotStep.
	basalSlotEpsilon = 1e-9
)

// ValidateBasalSchedule enforces the spec's exactly-48-slots,
// non-negative-multiple-of-0.05-in-[0.05,30.0] rule. No radio exchange may
// be issued for a schedule that fails this check.
func ValidateBasalSchedule(schedule []float64) error {
	if len(schedule) != BasalScheduleSlots {
		return poderr.Newf(poderr.KindInvalidParameter,
			"basal schedule must have exactly %d entries, got %d", BasalScheduleSlots, len(schedule))
	}
	for i, entry := range schedule {
		if entry < basalSlotStep-basalSlotEpsilon || entry > basalSlotMax+basalSlotEpsilon {
			return poderr.Newf(poderr.KindInvalidParameter,
				"basal schedule entry %d (%.2f U) out of range [%.2f, %.2f]", i, entry, basalSlotStep, basalSlotMax)
		}
		steps := entry / basalSlotStep
		if math.Abs(steps-math.Round(steps)) > basalSlotEpsilon {
			return poderr.Newf(poderr.KindInvalidParameter,
				"basal schedule entry %d (%.2f U) is not a multiple of %.2f U", i, entry, basalSlotStep)
		}
	}
	return nil
}

// ValidateBolusAmount enforces the spec's 0.05 U granularity, minimum, and
// maximum for a single bolus request.
func ValidateBolusAmount(amount float64) error {
	const minBolus = 0.05
	const maxBolus = 30.0
	if amount < minBolus-basalSlotEpsilon {
		return poderr.Newf(poderr.KindInvalidParameter, "bolus amount %.2f U is below the minimum of %.2f U", amount, minBolus)
	}
	if amount > maxBolus+basalSlotEpsilon {
		return poderr.Newf(poderr.KindInvalidParameter, "bolus amount %.2f U exceeds the maximum of %.2f U", amount, maxBolus)
	}
	steps := amount / basalSlotStep
	if math.Abs(steps-math.Round(steps)) > basalSlotEpsilon {
		return poderr.Newf(poderr.KindInvalidParameter, "bolus amount %.2f U is not a multiple of %.2f U", amount, basalSlotStep)
	}
	return nil
}
