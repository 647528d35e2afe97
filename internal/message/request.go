package message

import "time"

// PodDate is the UTC-plus-offset time decomposed into the fields the pod's
// wire format expects.
type PodDate struct {
	Year, Month, Day, Hour, Minute, Second int
}

// ToPodDate decomposes a local (UTC+offset) instant into the pod's
// expected field set.
func ToPodDate(t time.Time) PodDate {
	return PodDate{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// Request is the typed request message a Builder produces: an opcode plus
// whatever parameters that opcode needs. The radio codec (out of scope)
// is responsible for turning this into wire bytes.
type Request struct {
	Opcode Opcode

	RadioAddress uint32

	// setup_pod / assign_address
	Lot    uint32
	Serial uint32
	Date   PodDate

	// alert_setup
	AlertSlots []AlertSlot

	// delivery_flags
	ExtraFlagA, ExtraFlagB int

	// basal_schedule / temp_basal
	BasalSchedule []float64
	TempBasalRate float64
	TempBasalHours float64

	// bolus
	BolusAmount float64

	// acknowledge_alerts
	AlertAckMask uint8

	// status
	StatusType int
}
