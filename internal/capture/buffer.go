package capture

import (
	"fmt"

	"firestige.xyz/udptrain/internal/core"
)

// LogBuffer accumulates formatted capture lines. A zero capacity grows
// without bound; a positive capacity is a hard limit and an append that
// would cross it fails without modifying the buffer.
type LogBuffer struct {
	buf      []byte
	scratch  []byte
	capacity int
}

// NewLogBuffer creates a buffer limited to capacity bytes (0 = unbounded).
func NewLogBuffer(capacity int) *LogBuffer {
	initial := 64 * 1024
	if capacity > 0 && capacity < initial {
		initial = capacity
	}
	return &LogBuffer{
		buf:      make([]byte, 0, initial),
		scratch:  make([]byte, 0, 64),
		capacity: capacity,
	}
}

// AppendRecord formats r onto the buffer.
func (b *LogBuffer) AppendRecord(r Record) error {
	b.scratch = AppendRecord(b.scratch[:0], r)
	return b.append(b.scratch)
}

// AppendDelimiter writes delimiter as its own line.
func (b *LogBuffer) AppendDelimiter(delimiter string) error {
	b.scratch = append(append(b.scratch[:0], delimiter...), '\n')
	return b.append(b.scratch)
}

func (b *LogBuffer) append(line []byte) error {
	if b.capacity > 0 && len(b.buf)+len(line) > b.capacity {
		return fmt.Errorf("%w: %d + %d bytes over limit %d",
			core.ErrBufferCapacityExceeded, len(b.buf), len(line), b.capacity)
	}
	b.buf = append(b.buf, line...)
	return nil
}

// Bytes returns the buffered contents. The slice is valid until the next
// append or Reset.
func (b *LogBuffer) Bytes() []byte { return b.buf }

func (b *LogBuffer) Len() int { return len(b.buf) }

// Reset empties the buffer, keeping its storage.
func (b *LogBuffer) Reset() { b.buf = b.buf[:0] }
