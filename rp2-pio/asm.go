package pio

import (
	"errors"
	"fmt"
	"strings"
)

// Size of a PIO block's instruction memory.
const programMemorySize = 32

var (
	errUnboundLabel   = errors.New("pio: jump to unbound label")
	errReboundLabel   = errors.New("pio: label bound twice")
	errProgramTooLong = errors.New("pio: program longer than instruction memory")
	errEmptyProgram   = errors.New("pio: empty program")
	errBadWrap        = errors.New("pio: wrap before wrap target")
	errSidesetBits    = errors.New("pio: too many side-set bits")
)

// Label is a position in a program under construction. Create labels with
// [Assembler.Label] and bind them with [Assembler.Bind].
type Label struct {
	addr  uint8
	bound bool
}

// Assembler builds a PIO program from Go code, resolving jump labels and
// the .wrap_target/.wrap directives the way pioasm does. It allocates once
// per program and is meant to run at startup.
type Assembler struct {
	// SidesetBits is the number of side-set value bits, excluding the
	// enable bit of an optional side-set.
	SidesetBits uint8
	// SidesetOptional marks side-set as optional (".side_set n opt").
	SidesetOptional bool

	instrs     []*Instruction
	wrapTarget int
	wrap       int
	err        error
}

// Program is an assembled PIO program with addresses relative to its start.
// Jump addresses are patched with the load offset by [PIO.AddProgram].
type Program struct {
	Instructions []uint16
	// Origin is the required load offset or -1 if relocatable.
	Origin          int8
	WrapTarget      uint8
	Wrap            uint8
	SidesetBits     uint8
	SidesetOptional bool
}

// Label returns a new unbound label.
func (a *Assembler) Label() *Label { return &Label{} }

// Bind binds l to the address of the next instruction added.
func (a *Assembler) Bind(l *Label) {
	if l.bound {
		a.setErr(errReboundLabel)
		return
	}
	l.addr = uint8(len(a.instrs))
	l.bound = true
}

// WrapTarget marks the next instruction as the wrap target (.wrap_target).
// If never called the wrap target is the first instruction.
func (a *Assembler) WrapTarget() { a.wrapTarget = len(a.instrs) }

// Wrap marks the last added instruction as the wrap source (.wrap).
// If never called the program wraps after its last instruction.
func (a *Assembler) Wrap() { a.wrap = len(a.instrs) }

func (a *Assembler) setErr(err error) {
	if a.err == nil {
		a.err = err
	}
}

func (a *Assembler) add(in Instruction) *Instruction {
	p := &in
	a.instrs = append(a.instrs, p)
	return p
}

// Jmp adds a jump to label l taken when cond holds.
func (a *Assembler) Jmp(l *Label, cond JmpCond) *Instruction {
	in := a.add(Instruction{Kind: InstrJMP, Arg1: uint8(cond)})
	in.target = l
	return in
}

// Out adds an OUT instruction. See [Out].
func (a *Assembler) Out(dest OutDest, bitCount uint8) *Instruction {
	return a.add(Out(dest, bitCount))
}

// In adds an IN instruction. See [In].
func (a *Assembler) In(src InSrc, bitCount uint8) *Instruction {
	return a.add(In(src, bitCount))
}

// Set adds a SET instruction. See [Set].
func (a *Assembler) Set(dest SetDest, value uint8) *Instruction {
	return a.add(Set(dest, value))
}

// Mov adds a MOV instruction. See [Mov].
func (a *Assembler) Mov(dest MovDest, src MovSrc) *Instruction {
	return a.add(Mov(dest, src))
}

// Pull adds a PULL instruction. See [Pull].
func (a *Assembler) Pull(ifEmpty, block bool) *Instruction {
	return a.add(Pull(ifEmpty, block))
}

// Push adds a PUSH instruction. See [Push].
func (a *Assembler) Push(ifFull, block bool) *Instruction {
	return a.add(Push(ifFull, block))
}

// WaitPin adds a WAIT on a pin relative to the IN base. See [WaitPin].
func (a *Assembler) WaitPin(polarity bool, pin uint8) *Instruction {
	return a.add(WaitPin(polarity, pin))
}

// IRQSet adds an IRQ set instruction. See [IRQSet].
func (a *Assembler) IRQSet(relative bool, irq uint8) *Instruction {
	return a.add(IRQSet(relative, irq))
}

// Nop adds a no-operation (mov y, y).
func (a *Assembler) Nop() *Instruction { return a.add(Nop()) }

// Assemble resolves labels and encodes the program. The assembler can
// not be reused afterwards.
func (a *Assembler) Assemble() (Program, error) {
	if a.err != nil {
		return Program{}, a.err
	}
	n := len(a.instrs)
	switch {
	case n == 0:
		return Program{}, errEmptyProgram
	case n > programMemorySize:
		return Program{}, errProgramTooLong
	case a.SidesetBits+boolAsU8(a.SidesetOptional) > 5:
		return Program{}, errSidesetBits
	}
	wrap := n - 1
	if a.wrap > 0 {
		wrap = a.wrap - 1
	}
	if wrap < a.wrapTarget || a.wrapTarget >= n {
		return Program{}, errBadWrap
	}
	prog := Program{
		Instructions:    make([]uint16, n),
		Origin:          -1,
		WrapTarget:      uint8(a.wrapTarget),
		Wrap:            uint8(wrap),
		SidesetBits:     a.SidesetBits,
		SidesetOptional: a.SidesetOptional,
	}
	for i, in := range a.instrs {
		if in.target != nil {
			if !in.target.bound || int(in.target.addr) >= n {
				return Program{}, errUnboundLabel
			}
			in.Arg2 = in.target.addr
		}
		word, err := in.encode(a.SidesetBits, a.SidesetOptional)
		if err != nil {
			return Program{}, fmt.Errorf("instr %d: %w", i, err)
		}
		prog.Instructions[i] = word
	}
	return prog, nil
}

// DefaultConfig returns the state machine configuration implied by the
// program's directives when loaded at offset: wrap bounds and side-set
// parameters. Mirrors the *ProgramDefaultConfig functions pioasm generates.
func (p Program) DefaultConfig(offset uint8) StateMachineConfig {
	cfg := DefaultStateMachineConfig()
	cfg.SetWrap(offset+p.WrapTarget, offset+p.Wrap)
	if p.SidesetBits > 0 {
		cfg.SetSidesetParams(p.SidesetBits+boolAsU8(p.SidesetOptional), p.SidesetOptional, false)
	}
	return cfg
}

// String returns a pioasm style listing of the program.
func (p Program) String() string {
	var b strings.Builder
	if p.SidesetBits > 0 {
		fmt.Fprintf(&b, ".side_set %d", p.SidesetBits)
		if p.SidesetOptional {
			b.WriteString(" opt")
		}
		b.WriteByte('\n')
	}
	for i, instr := range p.Instructions {
		if uint8(i) == p.WrapTarget {
			b.WriteString(".wrap_target\n")
		}
		fmt.Fprintf(&b, "    0x%04x, // %2d: %s\n", instr, i, Disassemble(instr, p.SidesetBits, p.SidesetOptional))
		if uint8(i) == p.Wrap {
			b.WriteString(".wrap\n")
		}
	}
	return b.String()
}
