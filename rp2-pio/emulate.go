package pio

import (
	"errors"
	"math/bits"
)

var errUnsupportedInstr = errors.New("pio: instruction not supported by emulator")

// Emulator executes a PIO program one state machine cycle at a time so a
// program's output waveform can be checked without hardware. It models the
// subset of PIO used by output-only programs: JMP, OUT, SET, MOV and PULL,
// side-set, delays, wrapping and autopull with a configurable threshold and
// shift direction. Pins are absolute GPIO numbers 0..31.
type Emulator struct {
	mem [programMemorySize]uint16
	pc  uint8

	wrapTarget, wrap uint8
	sidesetCount     uint8
	sidesetOpt       bool
	sidesetBase      uint8
	setBase          uint8
	setCount         uint8
	outBase          uint8
	outCount         uint8

	shiftRight    bool
	autopull      bool
	pullThreshold uint8

	x, y     uint32
	osr      uint32
	osrCount uint8
	tx       []uint32
	txDepth  int

	pins, pindirs uint32
	delay         uint8
	stalled       bool
	cycles        uint64
}

// NewEmulator returns an emulator with prog loaded at offset and the state
// machine configured with cfg, as [StateMachine.Init] would. The program
// counter starts at offset and the OSR starts empty.
func NewEmulator(prog Program, offset uint8, cfg StateMachineConfig) *Emulator {
	e := &Emulator{pc: offset, osrCount: 32}
	for i, instr := range prog.Instructions {
		e.mem[int(offset)+i] = relocate(instr, offset)
	}
	field := func(reg uint32, pos, width uint8) uint8 {
		return uint8(reg >> pos & (1<<width - 1))
	}
	e.wrapTarget = field(cfg.ExecCtrl, execctrlWrapBottomPos, 5)
	e.wrap = field(cfg.ExecCtrl, execctrlWrapTopPos, 5)
	e.sidesetOpt = field(cfg.ExecCtrl, execctrlSideEnPos, 1) != 0
	e.sidesetCount = field(cfg.PinCtrl, pinctrlSidesetCountPos, 3)
	e.sidesetBase = field(cfg.PinCtrl, pinctrlSidesetBasePos, 5)
	e.setBase = field(cfg.PinCtrl, pinctrlSetBasePos, 5)
	e.setCount = field(cfg.PinCtrl, pinctrlSetCountPos, 3)
	e.outBase = field(cfg.PinCtrl, pinctrlOutBasePos, 5)
	e.outCount = field(cfg.PinCtrl, pinctrlOutCountPos, 6)
	e.shiftRight = field(cfg.ShiftCtrl, shiftctrlOutShiftdirPos, 1) != 0
	e.autopull = field(cfg.ShiftCtrl, shiftctrlAutopullPos, 1) != 0
	e.pullThreshold = field(cfg.ShiftCtrl, shiftctrlPullThreshPos, 5)
	if e.pullThreshold == 0 {
		e.pullThreshold = 32
	}
	e.txDepth = cfg.TxFIFODepth()
	return e
}

// TxPut queues a word in the TX FIFO. It returns false if the FIFO is full.
func (e *Emulator) TxPut(word uint32) bool {
	if len(e.tx) >= e.txDepth {
		return false
	}
	e.tx = append(e.tx, word)
	return true
}

// TxLevel returns the number of words waiting in the TX FIFO.
func (e *Emulator) TxLevel() int { return len(e.tx) }

// Pin returns the output level of GPIO pin, low unless the pin is an output.
func (e *Emulator) Pin(pin uint8) bool {
	return e.pindirs&e.pins&(1<<pin) != 0
}

// Stalled reports whether the last cycle stalled waiting on the TX FIFO.
func (e *Emulator) Stalled() bool { return e.stalled }

// Cycles returns the number of cycles executed.
func (e *Emulator) Cycles() uint64 { return e.cycles }

// X returns the scratch register X.
func (e *Emulator) X() uint32 { return e.x }

// Step executes one state machine cycle.
func (e *Emulator) Step() error {
	e.cycles++
	if e.delay > 0 {
		e.delay--
		return nil
	}
	instr := e.mem[e.pc]
	side, hasSide, delay := splitDelaySide(instr, e.sidesetCount-boolAsU8(e.sidesetOpt), e.sidesetOpt)
	if hasSide {
		e.writePins(&e.pins, uint32(side), e.sidesetBase, e.sidesetCount-boolAsU8(e.sidesetOpt))
	}
	jumped, stalled, err := e.exec(instr)
	e.stalled = stalled
	if err != nil || stalled {
		return err
	}
	if !jumped {
		if e.pc == e.wrap {
			e.pc = e.wrapTarget
		} else {
			e.pc = (e.pc + 1) % programMemorySize
		}
	}
	e.delay = delay
	return nil
}

// Run executes n cycles.
func (e *Emulator) Run(n int) error {
	for i := 0; i < n; i++ {
		if err := e.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emulator) exec(instr uint16) (jumped, stalled bool, err error) {
	arg1 := uint8(instr>>5) & 0b111
	arg2 := uint8(instr) & 0x1f
	switch kindOf(instr) {
	case InstrJMP:
		if e.jmpTaken(JmpCond(arg1)) {
			e.pc = arg2
			return true, false, nil
		}
	case InstrOUT:
		if e.autopull && e.osrCount >= e.pullThreshold {
			if len(e.tx) == 0 {
				return false, true, nil
			}
			e.load()
		}
		data := e.shiftOut(uint8(bitCount(arg2)))
		switch OutDest(arg1) {
		case OutDestPins:
			e.writePins(&e.pins, data, e.outBase, e.outCount)
		case OutDestX:
			e.x = data
		case OutDestY:
			e.y = data
		case OutDestNull:
		case OutDestPindirs:
			e.writePins(&e.pindirs, data, e.outBase, e.outCount)
		case OutDestPC:
			e.pc = uint8(data) % programMemorySize
			return true, false, nil
		default:
			return false, false, errUnsupportedInstr
		}
	case InstrSET:
		switch SetDest(arg1) {
		case SetDestPins:
			e.writePins(&e.pins, uint32(arg2), e.setBase, e.setCount)
		case SetDestX:
			e.x = uint32(arg2)
		case SetDestY:
			e.y = uint32(arg2)
		case SetDestPindirs:
			e.writePins(&e.pindirs, uint32(arg2), e.setBase, e.setCount)
		default:
			return false, false, errUnsupportedInstr
		}
	case InstrMOV:
		var v uint32
		switch MovSrc(arg2 & 0b111) {
		case MovSrcPins:
			v = e.pins
		case MovSrcX:
			v = e.x
		case MovSrcY:
			v = e.y
		case MovSrcNull:
		case MovSrcOSR:
			v = e.osr
		default:
			return false, false, errUnsupportedInstr
		}
		switch arg2 >> 3 {
		case movOpInvert:
			v = ^v
		case movOpReverse:
			v = bits.Reverse32(v)
		}
		switch MovDest(arg1) {
		case MovDestX:
			e.x = v
		case MovDestY:
			e.y = v
		case MovDestOSR:
			e.osr, e.osrCount = v, 0
		case MovDestPins:
			e.writePins(&e.pins, v, e.outBase, e.outCount)
		default:
			return false, false, errUnsupportedInstr
		}
	case InstrPULL:
		ifEmpty, block := arg1&0b10 != 0, arg1&0b01 != 0
		if ifEmpty && e.osrCount < e.pullThreshold {
			break
		}
		switch {
		case len(e.tx) > 0:
			e.load()
		case block:
			return false, true, nil
		default:
			e.osr, e.osrCount = e.x, 0
		}
	default:
		return false, false, errUnsupportedInstr
	}
	return false, false, nil
}

func (e *Emulator) jmpTaken(cond JmpCond) bool {
	switch cond {
	case JmpXZero:
		return e.x == 0
	case JmpXNZeroDec:
		taken := e.x != 0
		e.x--
		return taken
	case JmpYZero:
		return e.y == 0
	case JmpYNZeroDec:
		taken := e.y != 0
		e.y--
		return taken
	case JmpXNotEqualY:
		return e.x != e.y
	case JmpOSRNotEmpty:
		return e.osrCount < e.pullThreshold
	case JmpPinInput:
		// The jump pin is not modelled and reads low.
		return false
	}
	return true
}

func (e *Emulator) load() {
	e.osr = e.tx[0]
	e.tx = e.tx[1:]
	e.osrCount = 0
}

func (e *Emulator) shiftOut(n uint8) uint32 {
	var data uint32
	switch {
	case n == 32:
		data = e.osr
		e.osr = 0
	case e.shiftRight:
		data = e.osr & (1<<n - 1)
		e.osr >>= n
	default:
		data = e.osr >> (32 - n)
		e.osr <<= n
	}
	e.osrCount += n
	if e.osrCount > 32 {
		e.osrCount = 32
	}
	return data
}

func (e *Emulator) writePins(reg *uint32, value uint32, base, count uint8) {
	for i := uint8(0); i < count; i++ {
		pin := (base + i) % 32
		*reg = *reg&^(1<<pin) | (value>>i&1)<<pin
	}
}
