package message

// Response is the minimal shape the manager needs from a parsed reply: the
// message sequence number the pod echoed back (needed for the nonce-resync
// retry's `(response.sequence + 15) mod 16` computation) plus whatever
// opaque fields the radio codec produced. Everything else about the wire
// format is the codec's concern, not this module's.
type Response struct {
	Sequence uint8
	Fields   map[string]any
}

// NextSequenceAfterReject computes the message_sequence_override used by
// performExchange's single nonce-resync retry: (response.sequence + 15)
// mod 16.
func NextSequenceAfterReject(seq uint8) uint8 {
	return uint8((int(seq) + 15) % 16)
}
