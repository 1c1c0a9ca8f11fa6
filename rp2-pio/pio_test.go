package pio

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func assembleSPI3w(t *testing.T) Program {
	t.Helper()
	asm := Assembler{SidesetBits: 1}
	wloop, rloop, end := asm.Label(), asm.Label(), asm.Label()

	// write out x-1 bits.
	asm.Bind(wloop)
	asm.Out(OutDestPins, 1).Side(0)
	asm.Jmp(wloop, JmpXNZeroDec).Side(1)
	asm.Jmp(end, JmpYZero).Side(0)
	asm.Set(SetDestPindirs, 0).Side(0)
	asm.Nop().Side(0)
	// read in y-1 bits.
	asm.Bind(rloop)
	asm.In(InSrcPins, 1).Side(1)
	asm.Jmp(rloop, JmpYNZeroDec).Side(0)
	// Wait for SPI packet on IRQ.
	asm.Bind(end)
	asm.WaitPin(true, 0).Side(0)
	asm.IRQSet(false, 0).Side(0)

	prog, err := asm.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	return prog
}

func TestAssembler_spi3w(t *testing.T) {
	prog := assembleSPI3w(t)
	var expectedProgram = []uint16{
		//     .wrap_target
		0x6001, //  0: out    pins, 1         side 0
		0x1040, //  1: jmp    x--, 0          side 1
		0x0067, //  2: jmp    !y, 7           side 0
		0xe080, //  3: set    pindirs, 0      side 0
		0xa042, //  4: nop                    side 0
		0x5001, //  5: in     pins, 1         side 1
		0x0085, //  6: jmp    y--, 5          side 0
		0x20a0, //  7: wait   1 pin, 0        side 0
		0xc000, //  8: irq    nowait 0        side 0
		//     .wrap
	}
	if len(prog.Instructions) != len(expectedProgram) {
		t.Fatalf("program length %d != %d", len(prog.Instructions), len(expectedProgram))
	}
	for i := range expectedProgram {
		if prog.Instructions[i] != expectedProgram[i] {
			t.Errorf("instr %d mismatch got!=expected: %#x != %#x", i, prog.Instructions[i], expectedProgram[i])
		}
	}
	if prog.WrapTarget != 0 || prog.Wrap != 8 || prog.Origin != -1 {
		t.Errorf("wrap %d..%d origin %d, want 0..8 origin -1", prog.WrapTarget, prog.Wrap, prog.Origin)
	}
}

func TestDisassemble(t *testing.T) {
	prog := assembleSPI3w(t)
	want := []string{
		"out pins, 1 side 0",
		"jmp x--, 0 side 1",
		"jmp !y, 7 side 0",
		"set pindirs, 0 side 0",
		"nop side 0",
		"in pins, 1 side 1",
		"jmp y--, 5 side 0",
		"wait 1 pin 0 side 0",
		"irq nowait 0 side 0",
	}
	for i, instr := range prog.Instructions {
		got := Disassemble(instr, prog.SidesetBits, prog.SidesetOptional)
		if got != want[i] {
			t.Errorf("instr %d: %q != %q", i, got, want[i])
		}
	}

	for _, tc := range []struct {
		instr    uint16
		bits     uint8
		optional bool
		want     string
	}{
		{0x6221, 1, false, "out x, 1 side 0 [2]"},
		{0xa442, 1, false, "nop side 0 [4]"},
		{0x8080, 0, false, "pull noblock"},
		{0x80a0, 0, false, "pull block"},
		{0x80e0, 0, false, "pull ifempty block"},
		{0xa02b, 0, false, "mov x, ~null"},
		{0x1800 | 0x0003, 2, true, "jmp 3 side 2"},
		{0x0303, 2, true, "jmp 3 [3]"},
		{0xe01f, 0, false, "set pins, 31"},
		{0x6000, 0, false, "out pins, 32"},
	} {
		got := Disassemble(tc.instr, tc.bits, tc.optional)
		if got != tc.want {
			t.Errorf("%#04x: %q != %q", tc.instr, got, tc.want)
		}
	}
}

func TestProgramString(t *testing.T) {
	asm := Assembler{}
	loop := asm.Label()
	asm.Set(SetDestPindirs, 1)
	asm.WrapTarget()
	asm.Bind(loop)
	asm.Set(SetDestPins, 1).Delay(3)
	asm.Set(SetDestPins, 0)
	asm.Wrap()
	prog, err := asm.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	const want = "" +
		"    0xe081, //  0: set pindirs, 1\n" +
		".wrap_target\n" +
		"    0xe301, //  1: set pins, 1 [3]\n" +
		"    0xe000, //  2: set pins, 0\n" +
		".wrap\n"
	if got := prog.String(); got != want {
		t.Errorf("listing mismatch:\n%s\nwant:\n%s", got, want)
	}
}

func TestAssemblerErrors(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name  string
		build func(a *Assembler)
		bits  uint8
		want  error
	}{
		{"empty", func(a *Assembler) {}, 0, errEmptyProgram},
		{"unbound", func(a *Assembler) { a.Jmp(a.Label(), JmpAlways) }, 0, errUnboundLabel},
		{"rebound", func(a *Assembler) {
			l := a.Label()
			a.Bind(l)
			a.Nop()
			a.Bind(l)
		}, 0, errReboundLabel},
		{"side missing", func(a *Assembler) { a.Nop() }, 1, errSideMissing},
		{"side overflow", func(a *Assembler) { a.Nop().Side(2) }, 1, errSideOverflow},
		{"delay overflow", func(a *Assembler) { a.Nop().Side(0).Delay(16) }, 1, errDelayOverflow},
		{"too long", func(a *Assembler) {
			for i := 0; i < 33; i++ {
				a.Nop()
			}
		}, 0, errProgramTooLong},
		{"bad wrap", func(a *Assembler) {
			a.Nop()
			a.Wrap()
			a.Nop()
			a.WrapTarget()
			a.Nop()
		}, 0, errBadWrap},
	} {
		asm := Assembler{SidesetBits: tc.bits}
		tc.build(&asm)
		_, err := asm.Assemble()
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got error %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestClkDivFromKHz(t *testing.T) {
	t.Parallel()
	data := []struct {
		sysKHz, cycleKHz uint32
		whole            uint16
		frac             uint8
		err              error
	}{
		// 125000/8000 = 15.625 exactly.
		{125000, 8000, 15, 160, nil},
		// 133000/8000 = 16.625 exactly.
		{133000, 8000, 16, 160, nil},
		// 150000/8000 = 18.75 exactly.
		{150000, 8000, 18, 192, nil},
		// 48000/8000 = 6.
		{48000, 8000, 6, 0, nil},
		// 100000/3 = 33333.33, nearest 1/256 is 33333 + 85/256.
		{100000, 3, 33333, 85, nil},
		{8000, 8000, 1, 0, nil},
		{7000, 8000, 0, 0, errClkDivTooSmall},
		{125000, 1, 0, 0, errClkDivTooLarge},
		{0, 8000, 0, 0, errClkDivZero},
	}
	for _, d := range data {
		div, err := ClkDivFromKHz(d.sysKHz, d.cycleKHz)
		if !errors.Is(err, d.err) {
			t.Errorf("%d/%d: error %v != %v", d.sysKHz, d.cycleKHz, err, d.err)
			continue
		}
		if err != nil {
			continue
		}
		if div.Whole() != d.whole || div.Frac() != d.frac {
			t.Errorf("%d/%d: %d+%d/256 != %d+%d/256", d.sysKHz, d.cycleKHz, div.Whole(), div.Frac(), d.whole, d.frac)
		}
		exact := float64(d.sysKHz) / float64(d.cycleKHz)
		if diff := div.Float() - exact; diff > 1.0/512 || diff < -1.0/512 {
			t.Errorf("%d/%d: rounding error %v exceeds half a fractional step", d.sysKHz, d.cycleKHz, diff)
		}
	}
}

func TestClkDivString(t *testing.T) {
	div, err := ClkDivFromKHz(125000, 8000)
	if err != nil {
		t.Fatal(err)
	}
	if s := div.String(); s != "15.625" {
		t.Errorf("%q != %q", s, "15.625")
	}
	if ns := div.CyclePeriodNs(125000); ns != 125 {
		t.Errorf("cycle period %vns != 125ns", ns)
	}
}

func TestStateMachineConfig(t *testing.T) {
	cfg := DefaultStateMachineConfig()
	div, _ := ClkDivFromKHz(125000, 8000)
	cfg.SetClkDiv(div)
	cfg.SetOutShift(false, true, 24)
	cfg.SetFIFOJoin(FifoJoinTx)
	cfg.SetSidesetParams(1, false, false)
	cfg.SetSidesetPins(2)
	cfg.SetSetPins(2, 1)
	cfg.SetWrap(28, 31)

	if cfg.ClkDiv != 15<<16|160<<8 {
		t.Errorf("CLKDIV %#x", cfg.ClkDiv)
	}
	// IN: shift right, threshold 32 (encoded 0). OUT: shift left, autopull, threshold 24. FJOIN_TX.
	const wantShift = 1<<18 | 1<<17 | 24<<25 | 1<<30
	if cfg.ShiftCtrl != wantShift {
		t.Errorf("SHIFTCTRL %#x != %#x", cfg.ShiftCtrl, uint32(wantShift))
	}
	const wantPin = 1<<29 | 1<<26 | 2<<10 | 2<<5
	if cfg.PinCtrl != wantPin {
		t.Errorf("PINCTRL %#x != %#x", cfg.PinCtrl, uint32(wantPin))
	}
	const wantExec = 31<<12 | 28<<7
	if cfg.ExecCtrl != wantExec {
		t.Errorf("EXECCTRL %#x != %#x", cfg.ExecCtrl, uint32(wantExec))
	}
	if cfg.TxFIFODepth() != 8 {
		t.Errorf("TX FIFO depth %d != 8", cfg.TxFIFODepth())
	}
	cfg.SetFIFOJoin(FifoJoinNone)
	if cfg.ShiftCtrl&(3<<30) != 0 || cfg.TxFIFODepth() != 4 {
		t.Errorf("FIFO join not cleared: %#x", cfg.ShiftCtrl)
	}
}

func TestProgramSpace(t *testing.T) {
	var space programSpace
	off := space.find(5, -1)
	if off != 27 {
		t.Fatalf("first relocatable program at %d, want 27", off)
	}
	space.claim(uint8(off), 5)
	if got := space.find(5, -1); got != 22 {
		t.Errorf("second program at %d, want 22", got)
	}
	if space.canAddAt(5, -1, 25) {
		t.Error("overlapping offset accepted")
	}
	if !space.canAddAt(4, 0, 0) || space.canAddAt(4, 0, 1) {
		t.Error("fixed origin not honoured")
	}
	if space.find(3, 28) != -1 {
		t.Error("fixed origin in used space accepted")
	}
	if space.find(33, -1) != -1 {
		t.Error("oversized program accepted")
	}
	space.release(uint8(off), 5)
	if space != 0 {
		t.Errorf("space not released: %#x", uint32(space))
	}
	space.claim(0, 32)
	if space != 0xffff_ffff || space.find(1, -1) != -1 {
		t.Errorf("full memory mask %#x", uint32(space))
	}
}

// PIO embeds noCopy; go vet only flags copies of types with Lock and Unlock.
var _ sync.Locker = (*noCopy)(nil)

func TestProgramStringWordWidth(t *testing.T) {
	asm := Assembler{SidesetBits: 1}
	asm.Set(SetDestPindirs, 1).Side(0)
	asm.Nop().Side(0).Delay(4)
	prog, err := asm.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	for i, line := range strings.Split(strings.TrimSuffix(prog.String(), "\n"), "\n") {
		if !strings.HasPrefix(line, "    0x") {
			continue
		}
		word := strings.TrimPrefix(line, "    0x")
		if j := strings.IndexByte(word, ','); j != 4 {
			t.Errorf("line %d: %q is not four hex digits", i, line)
		}
	}
	if !strings.Contains(prog.String(), "    0xa442, //  1: nop side 0 [4]\n") {
		t.Errorf("listing:\n%s", prog)
	}
}

func TestRelocate(t *testing.T) {
	if got := relocate(0x1124, 10); got != 0x112e {
		t.Errorf("jmp relocation %#x != %#x", got, 0x112e)
	}
	if got := relocate(0x6221, 10); got != 0x6221 {
		t.Errorf("non-jump modified: %#x", got)
	}
}

// A square wave: pin high for 4 cycles, low for 2.
func TestEmulatorSquareWave(t *testing.T) {
	asm := Assembler{}
	asm.Set(SetDestPindirs, 1)
	asm.WrapTarget()
	asm.Set(SetDestPins, 1).Delay(3)
	asm.Set(SetDestPins, 0).Delay(1)
	prog, err := asm.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	const offset, pin = 5, 7
	cfg := prog.DefaultConfig(offset)
	cfg.SetSetPins(pin, 1)
	emu := NewEmulator(prog, offset, cfg)

	if err := emu.Step(); err != nil { // set pindirs
		t.Fatal(err)
	}
	var wave strings.Builder
	for i := 0; i < 12; i++ {
		if err := emu.Step(); err != nil {
			t.Fatal(err)
		}
		if emu.Pin(pin) {
			wave.WriteByte('1')
		} else {
			wave.WriteByte('0')
		}
	}
	if got := wave.String(); got != "111100111100" {
		t.Errorf("waveform %s", got)
	}
}

func TestEmulatorAutopullStall(t *testing.T) {
	asm := Assembler{}
	asm.Out(OutDestX, 8)
	prog, err := asm.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	cfg := prog.DefaultConfig(0)
	cfg.SetOutShift(false, true, 16)
	emu := NewEmulator(prog, 0, cfg)
	if err := emu.Step(); err != nil {
		t.Fatal(err)
	}
	if !emu.Stalled() {
		t.Fatal("expected stall on empty FIFO")
	}
	emu.TxPut(0xABCD_0000)
	for _, want := range []uint32{0xAB, 0xCD} {
		if err := emu.Step(); err != nil {
			t.Fatal(err)
		}
		if emu.X() != want {
			t.Errorf("x=%#x, want %#x", emu.X(), want)
		}
	}
	// Threshold reached with an empty FIFO.
	emu.Step()
	if !emu.Stalled() {
		t.Error("expected stall after threshold")
	}
}
