package message

// Builder fluently assembles a therapy intent into a Request. Each method
// returns the Builder so call sites can chain exactly the fields one
// opcode needs; Build() is the single join point that finalizes the
// Request.
type Builder struct {
	req Request
}

// NewBuilder starts a Request for the given opcode.
func NewBuilder(op Opcode) *Builder {
	return &Builder{req: Request{Opcode: op}}
}

func (b *Builder) RadioAddress(addr uint32) *Builder {
	b.req.RadioAddress = addr
	return b
}

func (b *Builder) PodIdentity(lot, serial uint32) *Builder {
	b.req.Lot = lot
	b.req.Serial = serial
	return b
}

func (b *Builder) Date(d PodDate) *Builder {
	b.req.Date = d
	return b
}

func (b *Builder) AlertSlots(slots ...AlertSlot) *Builder {
	b.req.AlertSlots = slots
	return b
}

func (b *Builder) DeliveryFlags(a, b2 int) *Builder {
	b.req.ExtraFlagA = a
	b.req.ExtraFlagB = b2
	return b
}

func (b *Builder) BasalSchedule(schedule []float64) *Builder {
	b.req.BasalSchedule = schedule
	return b
}

func (b *Builder) TempBasal(rate, hours float64) *Builder {
	b.req.TempBasalRate = rate
	b.req.TempBasalHours = hours
	return b
}

func (b *Builder) Bolus(amount float64) *Builder {
	b.req.BolusAmount = amount
	return b
}

func (b *Builder) AlertAckMask(mask uint8) *Builder {
	b.req.AlertAckMask = mask
	return b
}

func (b *Builder) StatusType(t int) *Builder {
	b.req.StatusType = t
	return b
}

// Build finalizes the assembled Request.
func (b *Builder) Build() Request {
	return b.req
}

// Convenience constructors, one per pod command message.

func AssignAddress(radioAddress uint32) Request {
	return NewBuilder(OpAssignAddress).RadioAddress(radioAddress).Build()
}

func SetupPod(lot, serial, radioAddress uint32, date PodDate) Request {
	return NewBuilder(OpSetupPod).PodIdentity(lot, serial).RadioAddress(radioAddress).Date(date).Build()
}

func AlertSetup(slots ...AlertSlot) Request {
	return NewBuilder(OpAlertSetup).AlertSlots(slots...).Build()
}

func DeliveryFlags(a, b int) Request {
	return NewBuilder(OpDeliveryFlags).DeliveryFlags(a, b).Build()
}

func PrimeCannula() Request {
	return NewBuilder(OpPrimeCannula).Build()
}

func InsertCannula() Request {
	return NewBuilder(OpInsertCannula).Build()
}

func BasalScheduleRequest(schedule []float64) Request {
	return NewBuilder(OpBasalSchedule).BasalSchedule(schedule).Build()
}

func TempBasalRequest(rate, hours float64) Request {
	return NewBuilder(OpTempBasal).TempBasal(rate, hours).Build()
}

func CancelTempBasal() Request {
	return NewBuilder(OpCancelTempBasal).Build()
}

func BolusRequest(amount float64) Request {
	return NewBuilder(OpBolus).Bolus(amount).Build()
}

func CancelBolus() Request {
	return NewBuilder(OpCancelBolus).Build()
}

func AcknowledgeAlerts(mask uint8) Request {
	return NewBuilder(OpAcknowledgeAlerts).AlertAckMask(mask).Build()
}

func Deactivate() Request {
	return NewBuilder(OpDeactivate).Build()
}

func Status(statusType int) Request {
	return NewBuilder(OpStatus).StatusType(statusType).Build()
}
