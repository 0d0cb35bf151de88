package protocol

import "time"

// DateRange limits a download to activity between Start and End.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// EncodeDateRange encodes the range as 12 bytes:
// {YY,MM,DD,HH,MM,SS} for start then end, with the year truncated to
// two digits as the device expects.
func EncodeDateRange(rng DateRange) []byte {
	out := make([]byte, 0, 12)
	out = appendTimestamp(out, rng.Start)
	out = appendTimestamp(out, rng.End)
	return out
}

// SetDateRangeCommand builds the full 14-byte set-date-range command for
// the dialect: 2-byte opcode followed by the encoded range.
func SetDateRangeCommand(d Dialect, rng DateRange) Command {
	opcode := append([]byte{}, d.Commands.SetDateRange.Opcode...)
	return Command{
		Label:  d.Commands.SetDateRange.Label,
		Opcode: append(opcode, EncodeDateRange(rng)...),
	}
}

func appendTimestamp(buf []byte, t time.Time) []byte {
	return append(buf,
		byte(t.Year()%100),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	)
}
