package protocol

const (
	// eotMarker terminates a transfer on the known hardware.
	eotMarker = 0x04
	// longTransferBytes is the buffered-byte threshold after which a
	// short packet is taken as a trailing final fragment.
	longTransferBytes = 1000
	// shortTailMax is the exclusive length bound for such a fragment.
	shortTailMax = 20
)

// EOTRule is one end-of-transmission predicate. Match receives the
// latest packet and the total bytes buffered so far (including that
// packet) and reports whether the transfer is complete.
type EOTRule struct {
	Name  string
	Match func(packet []byte, buffered int) bool
}

// DefaultEOTRules returns the completion heuristics for the known
// hardware. These are guesses against an undocumented protocol; a
// verified dialect should replace them.
func DefaultEOTRules() []EOTRule {
	return []EOTRule{
		{
			Name: "eot-marker",
			Match: func(packet []byte, _ int) bool {
				return len(packet) > 0 && packet[len(packet)-1] == eotMarker
			},
		},
		{
			Name: "double-zero-trailer",
			Match: func(packet []byte, _ int) bool {
				n := len(packet)
				return n >= 2 && packet[n-1] == 0x00 && packet[n-2] == 0x00
			},
		},
		{
			Name: "short-tail",
			Match: func(packet []byte, buffered int) bool {
				return buffered > longTransferBytes && len(packet) < shortTailMax
			},
		},
	}
}

// EndOfTransmission reports whether any rule considers the transfer
// complete. Evaluated once per received packet, never retroactively.
func EndOfTransmission(rules []EOTRule, packet []byte, buffered int) bool {
	for _, r := range rules {
		if r.Match(packet, buffered) {
			return true
		}
	}
	return false
}
