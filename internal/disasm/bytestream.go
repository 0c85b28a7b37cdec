package disasm

import "fmt"

// ByteStream is a cursor over a buffer of instruction bytes mapped at a
// base virtual address.
type ByteStream struct {
	buf  []byte
	base uint64
	off  int
}

// NewByteStream returns a stream positioned at the start of buf.
func NewByteStream(buf []byte, base uint64) *ByteStream {
	return &ByteStream{buf: buf, base: base}
}

// Addr is the virtual address of the cursor.
func (s *ByteStream) Addr() uint64 { return s.base + uint64(s.off) }

// Offset is the cursor position relative to the start of the buffer.
func (s *ByteStream) Offset() int { return s.off }

// Remaining is the number of bytes left after the cursor.
func (s *ByteStream) Remaining() int { return len(s.buf) - s.off }

// Done reports whether the cursor reached the end of the buffer.
func (s *ByteStream) Done() bool { return s.off >= len(s.buf) }

// Window returns at most n bytes starting at the cursor without moving it.
func (s *ByteStream) Window(n int) []byte {
	end := s.off + n
	if end > len(s.buf) || end < s.off {
		end = len(s.buf)
	}
	return s.buf[s.off:end]
}

// Advance moves the cursor n bytes forward.
func (s *ByteStream) Advance(n int) error {
	if n < 0 || n > s.Remaining() {
		return fmt.Errorf("advance %d bytes at %#x: only %d remaining", n, s.Addr(), s.Remaining())
	}
	s.off += n
	return nil
}
