package session

// TransferBuffer accumulates notified packets in arrival order during a
// download. It is owned exclusively by the running download; nothing
// reorders or deduplicates.
type TransferBuffer struct {
	data    []byte
	packets int
}

// Append adds one packet's bytes to the end of the buffer.
func (b *TransferBuffer) Append(packet []byte) {
	b.data = append(b.data, packet...)
	b.packets++
}

// Len returns the total bytes buffered so far.
func (b *TransferBuffer) Len() int {
	return len(b.data)
}

// Packets returns how many packets have been appended since the last
// reset.
func (b *TransferBuffer) Packets() int {
	return b.packets
}

// Reset discards all buffered data. Called at the start of every
// download so no residue from a previous transfer survives.
func (b *TransferBuffer) Reset() {
	b.data = b.data[:0]
	b.packets = 0
}

// Bytes returns a copy of the accumulated payload.
func (b *TransferBuffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}
