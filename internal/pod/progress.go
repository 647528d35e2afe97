package pod

// Progress is the pod's ordered lifecycle state. Comparisons between
// Progress values are meaningful: the protocol never walks a pod backwards,
// so every precondition in the manager package is expressed as a
// comparison against one of these constants rather than an equality set.
type Progress int

const (
	InitialState Progress = iota
	TankPowerActivated
	TankFillCompleted
	PairingSuccess
	Purging
	ReadyForInjection
	BasalScheduleSet
	Priming
	Running
	RunningLow
	ErrorShuttingDown
	AlertExpiredShuttingDown
	Inactive
)

func (p Progress) String() string {
	switch p {
	case InitialState:
		return "InitialState"
	case TankPowerActivated:
		return "TankPowerActivated"
	case TankFillCompleted:
		return "TankFillCompleted"
	case PairingSuccess:
		return "PairingSuccess"
	case Purging:
		return "Purging"
	case ReadyForInjection:
		return "ReadyForInjection"
	case BasalScheduleSet:
		return "BasalScheduleSet"
	case Priming:
		return "Priming"
	case Running:
		return "Running"
	case RunningLow:
		return "RunningLow"
	case ErrorShuttingDown:
		return "ErrorShuttingDown"
	case AlertExpiredShuttingDown:
		return "AlertExpiredShuttingDown"
	case Inactive:
		return "Inactive"
	default:
		return "Unknown"
	}
}

// BasalState is the pod's current basal delivery mode.
type BasalState int

const (
	BasalOff BasalState = iota
	BasalScheduled
	BasalTemporary
)

func (b BasalState) String() string {
	switch b {
	case BasalOff:
		return "Off"
	case BasalScheduled:
		return "Scheduled"
	case BasalTemporary:
		return "Temporary"
	default:
		return "Unknown"
	}
}

// BolusState is the pod's current bolus delivery mode.
type BolusState int

const (
	BolusInactive BolusState = iota
	BolusExtended
	BolusImmediate
)

func (b BolusState) String() string {
	switch b {
	case BolusInactive:
		return "Inactive"
	case BolusExtended:
		return "Extended"
	case BolusImmediate:
		return "Immediate"
	default:
		return "Unknown"
	}
}

// TxPower is the radio transmit power level used for one exchange. The full
// eight-step ladder is retained even though only A3_BelowNormal is named by
// any operation today; the remaining levels are a protocol-defined
// extension point, not speculative scope.
type TxPower int

const (
	A0_Normal TxPower = iota
	A1_SlightlyBelowNormal
	A2_BelowNormal
	A3_BelowNormal
	A4_LowerThanA3
	A5_LowerThanA4
	A6_LowerThanA5
	A7_LowestPower
)

// StatusRequestType selects the level of detail a status(type) request asks
// the pod for.
type StatusRequestType int

const (
	StatusStandard StatusRequestType = iota
	StatusExtraDetail
)
