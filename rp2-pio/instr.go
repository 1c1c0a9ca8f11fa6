package pio

import "errors"

// InstrKind is a enum for the PIO instruction type. It only represents the kind of
// instruction. It cannot store the arguments.
type InstrKind uint8

const (
	InstrJMP InstrKind = iota
	InstrWAIT
	InstrIN
	InstrOUT
	InstrPUSH
	InstrPULL
	InstrMOV
	InstrIRQ
	InstrSET
)

// Major opcode bits of each instruction kind. PUSH and PULL share opcode 0b100
// and are told apart by bit 7.
const (
	_INSTR_BITS_JMP  = 0x0000
	_INSTR_BITS_WAIT = 0x2000
	_INSTR_BITS_IN   = 0x4000
	_INSTR_BITS_OUT  = 0x6000
	_INSTR_BITS_PUSH = 0x8000
	_INSTR_BITS_PULL = 0x8080
	_INSTR_BITS_MOV  = 0xa000
	_INSTR_BITS_IRQ  = 0xc000
	_INSTR_BITS_SET  = 0xe000

	// Bit mask for instruction code
	_INSTR_BITS_Msk = 0xe000
)

var instrBits = [...]uint16{
	InstrJMP:  _INSTR_BITS_JMP,
	InstrWAIT: _INSTR_BITS_WAIT,
	InstrIN:   _INSTR_BITS_IN,
	InstrOUT:  _INSTR_BITS_OUT,
	InstrPUSH: _INSTR_BITS_PUSH,
	InstrPULL: _INSTR_BITS_PULL,
	InstrMOV:  _INSTR_BITS_MOV,
	InstrIRQ:  _INSTR_BITS_IRQ,
	InstrSET:  _INSTR_BITS_SET,
}

// kindOf decodes the instruction kind from a 16 bit instruction word.
func kindOf(instr uint16) InstrKind {
	switch instr & _INSTR_BITS_Msk {
	case _INSTR_BITS_JMP:
		return InstrJMP
	case _INSTR_BITS_WAIT:
		return InstrWAIT
	case _INSTR_BITS_IN:
		return InstrIN
	case _INSTR_BITS_OUT:
		return InstrOUT
	case _INSTR_BITS_PUSH:
		if instr&0x80 != 0 {
			return InstrPULL
		}
		return InstrPUSH
	case _INSTR_BITS_MOV:
		return InstrMOV
	case _INSTR_BITS_IRQ:
		return InstrIRQ
	}
	return InstrSET
}

type JmpCond uint8

const (
	// No condition, always jumps.
	JmpAlways JmpCond = iota
	// Jump if X is zero.
	JmpXZero
	// Jump if X is not zero, prior to decrement of X.
	JmpXNZeroDec
	// Jump if Y is zero.
	JmpYZero
	// Jump if Y is not zero, prior to decrement of Y.
	JmpYNZeroDec
	// Jump if X is not equal to Y.
	JmpXNotEqualY
	// Jump if EXECCTRL_JMP_PIN (state machine configured) is high.
	JmpPinInput
	// Compares the bits shifted out since last pull with the shift count theshold
	// (configured by SHIFTCTRL_PULL_THRESH) and jumps if there are remaining bits to shift.
	JmpOSRNotEmpty
)

// OutDest is the destination of an OUT instruction.
type OutDest uint8

const (
	OutDestPins OutDest = iota
	OutDestX
	OutDestY
	OutDestNull
	OutDestPindirs
	OutDestPC
	OutDestISR
	OutDestExec
)

// SetDest is the destination of a SET instruction.
type SetDest uint8

const (
	SetDestPins    SetDest = 0
	SetDestX       SetDest = 1
	SetDestY       SetDest = 2
	SetDestPindirs SetDest = 4
)

// InSrc is the source of an IN instruction.
type InSrc uint8

const (
	InSrcPins InSrc = 0
	InSrcX    InSrc = 1
	InSrcY    InSrc = 2
	InSrcNull InSrc = 3
	InSrcISR  InSrc = 6
	InSrcOSR  InSrc = 7
)

// MovDest is the destination of a MOV instruction.
type MovDest uint8

const (
	MovDestPins MovDest = 0
	MovDestX    MovDest = 1
	MovDestY    MovDest = 2
	MovDestExec MovDest = 4
	MovDestPC   MovDest = 5
	MovDestISR  MovDest = 6
	MovDestOSR  MovDest = 7
)

// MovSrc is the source of a MOV instruction.
type MovSrc uint8

const (
	MovSrcPins   MovSrc = 0
	MovSrcX      MovSrc = 1
	MovSrcY      MovSrc = 2
	MovSrcNull   MovSrc = 3
	MovSrcStatus MovSrc = 5
	MovSrcISR    MovSrc = 6
	MovSrcOSR    MovSrc = 7
)

// MOV operations applied to the source before it is written.
const (
	movOpNone    = 0
	movOpInvert  = 1
	movOpReverse = 2
)

// Instruction is a single PIO instruction whose arguments are known but
// whose side-set/delay field and jump target may still be pending. Zero
// side-set and delay encode as the plain instruction.
type Instruction struct {
	Kind InstrKind
	// Arg1 is the 3 bit field at bits 7:5 (condition, destination, flags).
	Arg1 uint8
	// Arg2 is the 5 bit field at bits 4:0 (address, bit count, data, source).
	Arg2 uint8

	side    uint8
	hasSide bool
	delay   uint8
	target  *Label
}

// Side sets the side-set value asserted when the instruction starts.
func (in *Instruction) Side(value uint8) *Instruction {
	in.side = value
	in.hasSide = true
	return in
}

// Delay sets the number of idle cycles inserted after the instruction completes.
func (in *Instruction) Delay(cycles uint8) *Instruction {
	in.delay = cycles
	return in
}

// Cycles returns the number of state machine cycles the instruction takes
// when it does not stall: one plus the delay.
func (in *Instruction) Cycles() int { return 1 + int(in.delay) }

var (
	errSideMissing   = errors.New("pio: side-set value required by program")
	errSideOverflow  = errors.New("pio: side-set value too large")
	errDelayOverflow = errors.New("pio: delay too large for side-set configuration")
)

// Encode returns the instruction word without any side-set or delay, as used
// for immediate execution through [StateMachine.Exec].
func (in Instruction) Encode() uint16 {
	return instrBits[in.Kind] | uint16(in.Arg1&0b111)<<5 | uint16(in.Arg2&0x1f)
}

// encode packs the instruction with its delay/side-set field for a program
// with sidesetBits value bits, plus an enable bit if optional is set.
func (in Instruction) encode(sidesetBits uint8, optional bool) (uint16, error) {
	instr := in.Encode()
	used := sidesetBits
	if optional {
		used++
	}
	if in.delay > maxDelay(sidesetBits, optional) {
		return 0, errDelayOverflow
	}
	instr |= uint16(in.delay) << 8
	switch {
	case in.hasSide && in.side >= 1<<sidesetBits:
		return 0, errSideOverflow
	case in.hasSide && optional:
		instr |= 0x1000 | uint16(in.side)<<(13-used)
	case in.hasSide:
		instr |= uint16(in.side) << (13 - used)
	case sidesetBits > 0 && !optional:
		return 0, errSideMissing
	}
	return instr, nil
}

// maxDelay returns the largest delay that fits beside the side-set bits.
func maxDelay(sidesetBits uint8, optional bool) uint8 {
	used := sidesetBits
	if optional {
		used++
	}
	return 1<<(5-used) - 1
}

func boolAsU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Jmp returns a jump to an absolute address in PIO instruction memory.
func Jmp(addr uint8, cond JmpCond) Instruction {
	return Instruction{Kind: InstrJMP, Arg1: uint8(cond), Arg2: addr}
}

// WaitGPIO waits on an absolute GPIO level.
func WaitGPIO(polarity bool, pin uint8) Instruction {
	return Instruction{Kind: InstrWAIT, Arg1: boolAsU8(polarity) << 2, Arg2: pin}
}

// WaitPin waits on a GPIO relative to the IN pin base.
func WaitPin(polarity bool, pin uint8) Instruction {
	return Instruction{Kind: InstrWAIT, Arg1: boolAsU8(polarity)<<2 | 1, Arg2: pin}
}

// WaitIRQ waits on an IRQ flag.
func WaitIRQ(polarity, relative bool, irq uint8) Instruction {
	return Instruction{Kind: InstrWAIT, Arg1: boolAsU8(polarity)<<2 | 2, Arg2: boolAsU8(relative)<<4 | irq&0b111}
}

// In shifts bitCount bits from src into the ISR. A bitCount of 32 encodes as 0.
func In(src InSrc, bitCount uint8) Instruction {
	return Instruction{Kind: InstrIN, Arg1: uint8(src), Arg2: bitCount}
}

// Out shifts bitCount bits out of the OSR into dest. A bitCount of 32 encodes as 0.
func Out(dest OutDest, bitCount uint8) Instruction {
	return Instruction{Kind: InstrOUT, Arg1: uint8(dest), Arg2: bitCount}
}

// Push pushes the ISR into the RX FIFO.
func Push(ifFull, block bool) Instruction {
	return Instruction{Kind: InstrPUSH, Arg1: boolAsU8(ifFull)<<1 | boolAsU8(block)}
}

// Pull loads a word from the TX FIFO into the OSR.
func Pull(ifEmpty, block bool) Instruction {
	return Instruction{Kind: InstrPULL, Arg1: boolAsU8(ifEmpty)<<1 | boolAsU8(block)}
}

// Mov copies src into dest.
func Mov(dest MovDest, src MovSrc) Instruction {
	return Instruction{Kind: InstrMOV, Arg1: uint8(dest), Arg2: uint8(src) & 7}
}

// MovInvert copies the bitwise complement of src into dest.
func MovInvert(dest MovDest, src MovSrc) Instruction {
	return Instruction{Kind: InstrMOV, Arg1: uint8(dest), Arg2: movOpInvert<<3 | uint8(src)&7}
}

// MovReverse copies the bit-reversed src into dest.
func MovReverse(dest MovDest, src MovSrc) Instruction {
	return Instruction{Kind: InstrMOV, Arg1: uint8(dest), Arg2: movOpReverse<<3 | uint8(src)&7}
}

// IRQSet raises an IRQ flag.
func IRQSet(relative bool, irq uint8) Instruction {
	return Instruction{Kind: InstrIRQ, Arg2: boolAsU8(relative)<<4 | irq&0b111}
}

// IRQClear clears an IRQ flag.
func IRQClear(relative bool, irq uint8) Instruction {
	return Instruction{Kind: InstrIRQ, Arg1: 2, Arg2: boolAsU8(relative)<<4 | irq&0b111}
}

// Set writes an immediate 5 bit value to dest.
func Set(dest SetDest, value uint8) Instruction {
	return Instruction{Kind: InstrSET, Arg1: uint8(dest), Arg2: value}
}

// Nop is assembled as mov y, y.
func Nop() Instruction { return Mov(MovDestY, MovSrcY) }
