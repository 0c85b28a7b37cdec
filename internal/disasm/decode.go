package disasm

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

const x86_64BitMode = 64

var (
	// ErrTruncatedInput means the encoding needs more bytes than were
	// supplied.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrUnsupportedEncoding means the bytes do not encode an instruction
	// of the supported subset.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

// DecodeError reports a failure to decode the instruction at Addr.
type DecodeError struct {
	Addr   uint64
	Bytes  []byte
	Reason string
	Err    error // ErrTruncatedInput or ErrUnsupportedEncoding
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %#x: %v", e.Addr, e.Err)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(addr uint64, code []byte, err error, format string, args ...interface{}) *DecodeError {
	n := len(code)
	if n > MaxInstructionLen {
		n = MaxInstructionLen
	}
	return &DecodeError{
		Addr:   addr,
		Bytes:  append([]byte(nil), code[:n]...),
		Reason: fmt.Sprintf(format, args...),
		Err:    err,
	}
}

// Decoder decodes instructions of the supported subset. The zero value is
// ready to use.
type Decoder struct{}

// NewDecoder creates a new Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes the single instruction at the start of code, located at
// addr. It never reads past len(code) and returns the same Instruction for
// the same inputs.
func (d *Decoder) Decode(code []byte, addr uint64) (Instruction, error) {
	return Decode(code, addr)
}

// DecodeDeclared decodes an instruction whose length the caller already
// knows. A declared length of 0 means unknown; otherwise nothing past the
// declared length is read. The returned Length may be shorter than
// declared.
func (d *Decoder) DecodeDeclared(code []byte, addr uint64, declared int) (Instruction, error) {
	switch {
	case declared < 0:
		return Instruction{}, decodeErr(addr, code, ErrTruncatedInput, "declared length %d", declared)
	case declared > len(code):
		return Instruction{}, decodeErr(addr, code, ErrTruncatedInput, "declared %d bytes, %d available", declared, len(code))
	case declared > 0:
		code = code[:declared]
	}
	return Decode(code, addr)
}

// Next decodes the instruction at the cursor of s and advances the cursor
// past it. On error the cursor is left unchanged.
func (d *Decoder) Next(s *ByteStream) (Instruction, error) {
	inst, err := Decode(s.Window(MaxInstructionLen), s.Addr())
	if err != nil {
		return Instruction{}, err
	}
	if err := s.Advance(inst.Length); err != nil {
		return Instruction{}, err
	}
	return inst, nil
}

// Decode decodes the single instruction at the start of code, located at
// addr.
func Decode(code []byte, addr uint64) (Instruction, error) {
	if len(code) == 0 {
		return Instruction{}, decodeErr(addr, code, ErrTruncatedInput, "no bytes")
	}

	inst, err := x86asm.Decode(code, x86_64BitMode)
	switch {
	case errors.Is(err, x86asm.ErrTruncated):
		return Instruction{}, decodeErr(addr, code, ErrTruncatedInput, "%d bytes available", len(code))
	case err != nil:
		return Instruction{}, decodeErr(addr, code, ErrUnsupportedEncoding, "%v", err)
	case inst.Op == 0:
		// x86asm reports a cut-off encoding as a lone prefix byte
		if n, ok := truncatedLen(code); ok {
			return Instruction{}, decodeErr(addr, code, ErrTruncatedInput, "%d of %d bytes available", len(code), n)
		}
		return Instruction{}, decodeErr(addr, code, ErrUnsupportedEncoding, "no opcode")
	case inst.Len <= 0 || inst.Len > len(code):
		return Instruction{}, decodeErr(addr, code, ErrTruncatedInput, "decoded length %d", inst.Len)
	}

	class, ops, err := classify(inst)
	if err != nil {
		return Instruction{}, decodeErr(addr, code, ErrUnsupportedEncoding, "%v", err)
	}

	return Instruction{
		Address:  addr,
		Bytes:    append([]byte(nil), code[:inst.Len]...),
		Length:   inst.Len,
		Class:    class,
		Mnemonic: strings.ToLower(inst.Op.String()),
		Text:     strings.ToLower(x86asm.IntelSyntax(inst, addr, nil)),
		Operands: ops,
	}, nil
}

// truncatedLen decodes code padded with zero bytes. It reports the length
// of the padded instruction when that instruction needs more bytes than
// code holds.
func truncatedLen(code []byte) (int, bool) {
	if len(code) >= MaxInstructionLen {
		return 0, false
	}
	padded := make([]byte, MaxInstructionLen)
	copy(padded, code)
	inst, err := x86asm.Decode(padded, x86_64BitMode)
	if err != nil || inst.Op == 0 || inst.Len <= len(code) {
		return 0, false
	}
	return inst.Len, true
}

// hasLock reports whether inst carries a LOCK prefix.
func hasLock(inst x86asm.Inst) bool {
	for _, p := range inst.Prefix {
		if p == 0 {
			break
		}
		if p&0xff == x86asm.PrefixLOCK {
			return true
		}
	}
	return false
}

// args trims the unused trailing slots of inst.Args.
func args(inst x86asm.Inst) []x86asm.Arg {
	a := inst.Args[:]
	for len(a) > 0 && a[len(a)-1] == nil {
		a = a[:len(a)-1]
	}
	return a
}

func classify(inst x86asm.Inst) (Class, []Operand, error) {
	if hasLock(inst) {
		return ClassInvalid, nil, fmt.Errorf("lock prefix on %s", strings.ToLower(inst.Op.String()))
	}
	a := args(inst)

	switch {
	case inst.Op == x86asm.MOV && len(a) == 2:
		dst, src := a[0], a[1]
		switch dst := dst.(type) {
		case x86asm.Reg:
			d, err := convertReg(dst)
			if err != nil {
				return ClassInvalid, nil, err
			}
			switch src := src.(type) {
			case x86asm.Mem:
				m, err := convertMem(inst, src, d.Width)
				if err != nil {
					return ClassInvalid, nil, err
				}
				return MovRegFromMem, []Operand{d, m}, nil
			case x86asm.Reg:
				s, err := convertReg(src)
				if err != nil {
					return ClassInvalid, nil, err
				}
				return MovRegFromReg, []Operand{d, s}, nil
			case x86asm.Imm:
				return MovRegFromImm, []Operand{d, ImmediateOperand{Value: int64(src), Width: d.Width}}, nil
			}
		case x86asm.Mem:
			s, ok := src.(x86asm.Reg)
			if !ok {
				break
			}
			sr, err := convertReg(s)
			if err != nil {
				return ClassInvalid, nil, err
			}
			m, err := convertMem(inst, dst, sr.Width)
			if err != nil {
				return ClassInvalid, nil, err
			}
			return MovMemFromReg, []Operand{m, sr}, nil
		}

	case inst.Op == x86asm.LEA && len(a) == 2:
		dst, ok := a[0].(x86asm.Reg)
		if !ok {
			break
		}
		src, ok := a[1].(x86asm.Mem)
		if !ok {
			break
		}
		d, err := convertReg(dst)
		if err != nil {
			return ClassInvalid, nil, err
		}
		m, err := convertMem(inst, src, d.Width)
		if err != nil {
			return ClassInvalid, nil, err
		}
		return LeaRegFromScaledAddr, []Operand{d, m}, nil

	case isConditionalJump(inst.Op) && len(a) == 1:
		rel, ok := a[0].(x86asm.Rel)
		if !ok {
			break
		}
		width := uint(inst.PCRel) * 8
		if width == 0 {
			width = 32
		}
		return JccConditional, []Operand{ImmediateOperand{Value: int64(rel), Width: width}}, nil
	}

	return ClassInvalid, nil, fmt.Errorf("%s is outside the supported subset", strings.ToLower(inst.Op.String()))
}

func convertReg(r x86asm.Reg) (RegisterOperand, error) {
	v, ok := registerView(r)
	if !ok {
		return RegisterOperand{}, fmt.Errorf("register %s is not modelled", r)
	}
	return v, nil
}

// convertMem builds a memory operand. width is the fallback access width
// in bits when the decoder reports no memory operand size.
func convertMem(inst x86asm.Inst, m x86asm.Mem, width uint) (MemoryOperand, error) {
	if m.Segment != 0 {
		return MemoryOperand{}, fmt.Errorf("segment override %s", m.Segment)
	}
	if inst.AddrSize != 0 && inst.AddrSize != x86_64BitMode {
		return MemoryOperand{}, fmt.Errorf("%d-bit addressing", inst.AddrSize)
	}

	op := MemoryOperand{Disp: m.Disp, Scale: 1, Size: uint(inst.MemBytes)}
	if op.Size == 0 {
		op.Size = width / 8
	}
	if m.Base != 0 {
		b, err := convertReg(m.Base)
		if err != nil {
			return MemoryOperand{}, err
		}
		op.Base = b
	}
	if m.Index != 0 {
		i, err := convertReg(m.Index)
		if err != nil {
			return MemoryOperand{}, err
		}
		op.Index = i
		switch m.Scale {
		case 1, 2, 4, 8:
			op.Scale = m.Scale
		default:
			return MemoryOperand{}, fmt.Errorf("invalid scale %d", m.Scale)
		}
	}
	return op, nil
}

func isConditionalJump(op x86asm.Op) bool {
	switch op {
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ,
		x86asm.JE, x86asm.JECXZ, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE,
		x86asm.JNE, x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP,
		x86asm.JRCXZ, x86asm.JS:
		return true
	}
	return false
}
