package message

// Opcode identifies the therapy-level request a Message carries. The wire
// encoding of each opcode is the radio codec's concern (out of scope for
// this module); here an Opcode only drives which parameters the Builder
// expects and how the manager names the exchange in logs and metrics.
type Opcode int

const (
	OpAssignAddress Opcode = iota
	OpSetupPod
	OpAlertSetup
	OpDeliveryFlags
	OpPrimeCannula
	OpInsertCannula
	OpBasalSchedule
	OpTempBasal
	OpCancelTempBasal
	OpBolus
	OpCancelBolus
	OpAcknowledgeAlerts
	OpDeactivate
	OpStatus
)

func (o Opcode) String() string {
	switch o {
	case OpAssignAddress:
		return "assign_address"
	case OpSetupPod:
		return "setup_pod"
	case OpAlertSetup:
		return "alert_setup"
	case OpDeliveryFlags:
		return "delivery_flags"
	case OpPrimeCannula:
		return "prime_cannula"
	case OpInsertCannula:
		return "insert_cannula"
	case OpBasalSchedule:
		return "basal_schedule"
	case OpTempBasal:
		return "temp_basal"
	case OpCancelTempBasal:
		return "cancel_temp_basal"
	case OpBolus:
		return "bolus"
	case OpCancelBolus:
		return "cancel_bolus"
	case OpAcknowledgeAlerts:
		return "acknowledge_alerts"
	case OpDeactivate:
		return "deactivate"
	case OpStatus:
		return "status"
	default:
		return "unknown"
	}
}

// BeepPattern names one of the pod's alert beep sequences.
type BeepPattern int

const (
	BeepNone BeepPattern = iota
	BipBeepFourTimes
)

// RepeatPattern names one of the pod's alert repetition schedules.
type RepeatPattern int

const (
	RepeatNone RepeatPattern = iota
	OnceEveryFiveMinutes
	OnceEveryMinuteForFifteenMinutes
)

// AlertSlot configures one of the pod's eight alert slots.
type AlertSlot struct {
	Index            int
	Activate         bool
	AlertAfterMinutes int
	AlertDuration    int
	Beep             BeepPattern
	Repeat           RepeatPattern
	TriggerAutoOff   bool
}
