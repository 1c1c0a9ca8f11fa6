package piolib

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	pio "github.com/letitglow/pioring/rp2-pio"
)

func TestWS2812Program(t *testing.T) {
	prog, err := WS2812Program(DefaultBitTiming)
	if err != nil {
		t.Fatal(err)
	}
	var expectedProgram = []uint16{
		0xe081, //  0: set    pindirs, 1      side 0
		//     .wrap_target
		0x6221, //  1: out    x, 1            side 0 [2]
		0x1124, //  2: jmp    !x, 4           side 1 [1]
		0x1401, //  3: jmp    1               side 1 [4]
		0xa442, //  4: nop                    side 0 [4]
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
	if prog.WrapTarget != 1 || prog.Wrap != 4 {
		t.Errorf("wrap %d..%d, want 1..4", prog.WrapTarget, prog.Wrap)
	}
	if prog.SidesetBits != 1 || prog.SidesetOptional {
		t.Errorf("side-set %d opt=%v, want 1 mandatory", prog.SidesetBits, prog.SidesetOptional)
	}
}

func TestBitTimingValidate(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		timing BitTiming
		ok     bool
	}{
		{DefaultBitTiming, true},
		{BitTiming{1, 1, 1}, true},
		{BitTiming{16, 16, 16}, true},
		{BitTiming{0, 5, 3}, false},
		{BitTiming{2, 0, 3}, false},
		{BitTiming{2, 5, 17}, false},
	} {
		err := tc.timing.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%+v: error %v, want ok=%v", tc.timing, err, tc.ok)
		}
		if _, perr := WS2812Program(tc.timing); (perr == nil) != tc.ok {
			t.Errorf("%+v: program error %v, want ok=%v", tc.timing, perr, tc.ok)
		}
	}
	if got := DefaultBitTiming.CyclesPerBit(); got != 10 {
		t.Errorf("cycles per bit %d != 10", got)
	}
	if lo, hi := DefaultBitTiming.HighCycles(false), DefaultBitTiming.HighCycles(true); lo != 2 || hi != 7 {
		t.Errorf("high cycles %d/%d, want 2/7", lo, hi)
	}
}

// pulse is one high period on the emulated data line.
type pulse struct {
	rise, width int
}

// emulateWS2812 runs the WS2812 program on the emulator with words queued
// and returns the high pulses seen on pin.
func emulateWS2812(t *testing.T, timing BitTiming, words []uint32, cycles int) ([]pulse, *pio.Emulator) {
	t.Helper()
	prog, err := WS2812Program(timing)
	if err != nil {
		t.Fatal(err)
	}
	const pin, offset = 2, 27
	div, err := WS2812ClkDiv(125000, DefaultBitTiming)
	if err != nil {
		t.Fatal(err)
	}
	emu := pio.NewEmulator(prog, offset, WS2812Config(prog, offset, pin, div))
	for _, w := range words {
		if !emu.TxPut(w) {
			t.Fatal("TX FIFO full")
		}
	}
	var pulses []pulse
	high := false
	for c := 0; c < cycles; c++ {
		if err := emu.Step(); err != nil {
			t.Fatal(err)
		}
		level := emu.Pin(pin)
		switch {
		case level && !high:
			pulses = append(pulses, pulse{rise: c})
		case !level && high:
			p := &pulses[len(pulses)-1]
			p.width = c - p.rise
		}
		high = level
	}
	if high {
		t.Fatal("line still high at end of emulation")
	}
	return pulses, emu
}

func TestWS2812Waveform(t *testing.T) {
	words := []uint32{PackGRB(0x12, 0xf0, 0x81), PackGRB(0xff, 0x00, 0x5a)}
	pulses, emu := emulateWS2812(t, DefaultBitTiming, words, 600)

	if len(pulses) != 48 {
		t.Fatalf("%d pulses, want 48", len(pulses))
	}
	period := DefaultBitTiming.CyclesPerBit()
	for i, p := range pulses {
		word := words[i/24]
		bit := word>>(31-uint(i%24))&1 != 0
		if want := DefaultBitTiming.HighCycles(bit); p.width != want {
			t.Errorf("bit %d (%v): high for %d cycles, want %d", i, bit, p.width, want)
		}
		if i > 0 && p.rise-pulses[i-1].rise != period {
			t.Errorf("bit %d: starts %d cycles after previous, want %d", i, p.rise-pulses[i-1].rise, period)
		}
	}
	if !emu.Stalled() {
		t.Error("state machine not stalled on empty FIFO")
	}
	if emu.TxLevel() != 0 {
		t.Errorf("%d words left in FIFO", emu.TxLevel())
	}
}

func TestWS2812WaveformCustomTiming(t *testing.T) {
	timing := BitTiming{T1: 3, T2: 6, T3: 3}
	words := []uint32{PackGRB(0xa5, 0x00, 0xff)}
	pulses, _ := emulateWS2812(t, timing, words, 400)
	if len(pulses) != 24 {
		t.Fatalf("%d pulses, want 24", len(pulses))
	}
	for i, p := range pulses {
		bit := words[0]>>(31-uint(i))&1 != 0
		if want := timing.HighCycles(bit); p.width != want {
			t.Errorf("bit %d: high for %d cycles, want %d", i, p.width, want)
		}
		if i > 0 && p.rise-pulses[i-1].rise != timing.CyclesPerBit() {
			t.Errorf("bit %d: period %d, want %d", i, p.rise-pulses[i-1].rise, timing.CyclesPerBit())
		}
	}
}

func TestWS2812ClkDiv(t *testing.T) {
	t.Parallel()
	div, err := WS2812ClkDiv(125000, DefaultBitTiming)
	if err != nil {
		t.Fatal(err)
	}
	if div.Whole() != 15 || div.Frac() != 160 {
		t.Errorf("divider %d+%d/256, want 15+160/256", div.Whole(), div.Frac())
	}
	if bit := float64(DefaultBitTiming.CyclesPerBit()) * div.CyclePeriodNs(125000); bit != 1250 {
		t.Errorf("bit period %vns != 1250ns", bit)
	}
	// 133 MHz is not a multiple of 8 MHz; the rounded divider is still within tolerance.
	if _, err := WS2812ClkDiv(133000, DefaultBitTiming); err != nil {
		t.Errorf("133MHz: %v", err)
	}
	if _, err := WS2812ClkDiv(7000, DefaultBitTiming); err == nil {
		t.Error("7MHz system clock accepted")
	}
	if _, err := WS2812ClkDiv(0, DefaultBitTiming); err == nil {
		t.Error("zero system clock accepted")
	}
}

func TestPackGRB(t *testing.T) {
	if got := PackGRB(0x12, 0x34, 0x56); got != 0x34125600 {
		t.Errorf("%#x != %#x", got, 0x34125600)
	}
	for _, c := range []color.RGBA{
		{R: 0xff, G: 0x00, B: 0x00, A: 0xff},
		{R: 0x00, G: 0xff, B: 0x00, A: 0xff},
		{R: 0x00, G: 0x00, B: 0xff, A: 0xff},
		{R: 0xcc, G: 0x4d, B: 0x4d, A: 0x00},
	} {
		w := PackColor(c)
		if w&0xff != 0 {
			t.Errorf("%v: low byte %#x not zero", c, w&0xff)
		}
		if g, r, b := uint8(w>>24), uint8(w>>16), uint8(w>>8); g != c.G || r != c.R || b != c.B {
			t.Errorf("%v: unpacked g=%#x r=%#x b=%#x", c, g, r, b)
		}
	}
}

// fakeTx records frames pushed to it. If hold is non-nil push32 signals
// started and then waits for hold or the context.
type fakeTx struct {
	mu      sync.Mutex
	frames  [][]uint32
	spans   [][2]time.Time
	timeout time.Duration

	started chan struct{}
	hold    chan struct{}
}

func (f *fakeTx) setTimeout(d time.Duration) { f.timeout = d }

func (f *fakeTx) push32(ctx context.Context, words []uint32) error {
	start := time.Now()
	if f.hold != nil {
		f.started <- struct{}{}
		select {
		case <-f.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]uint32(nil), words...))
	f.spans = append(f.spans, [2]time.Time{start, time.Now()})
	return nil
}

func testFrame(n int) []color.RGBA {
	frame := make([]color.RGBA, n)
	for i := range frame {
		frame[i] = color.RGBA{R: uint8(i), G: uint8(2 * i), B: uint8(3 * i), A: 0xff}
	}
	return frame
}

func TestWS2812RingSend(t *testing.T) {
	tx := &fakeTx{}
	ring := newWS2812Ring(tx, 12, DefaultBitTiming, 15<<8|160)
	if ring.Len() != 12 {
		t.Fatalf("Len %d != 12", ring.Len())
	}
	frame := testFrame(12)
	for i := 0; i < 3; i++ {
		if err := ring.Send(context.Background(), frame); err != nil {
			t.Fatal(err)
		}
	}
	if len(tx.frames) != 3 {
		t.Fatalf("%d frames pushed, want 3", len(tx.frames))
	}
	for i, c := range frame {
		if tx.frames[0][i] != PackColor(c) {
			t.Errorf("word %d: %#x != %#x", i, tx.frames[0][i], PackColor(c))
		}
	}
	for i := 1; i < len(tx.spans); i++ {
		if tx.spans[i][0].Before(tx.spans[i-1][1]) {
			t.Errorf("transfer %d started before transfer %d completed", i, i-1)
		}
	}
	ring.SetTimeout(time.Millisecond)
	if tx.timeout != time.Millisecond {
		t.Errorf("timeout %v not forwarded", tx.timeout)
	}
}

func TestWS2812RingFrameLength(t *testing.T) {
	tx := &fakeTx{}
	ring := newWS2812Ring(tx, 12, DefaultBitTiming, 0)
	for _, n := range []int{0, 11, 13} {
		err := ring.Send(context.Background(), testFrame(n))
		if !errors.Is(err, errFrameLen) {
			t.Errorf("%d pixels: error %v, want %v", n, err, errFrameLen)
		}
	}
	if len(tx.frames) != 0 {
		t.Errorf("%d frames pushed after length errors", len(tx.frames))
	}
}

func TestWS2812RingBusy(t *testing.T) {
	tx := &fakeTx{started: make(chan struct{}), hold: make(chan struct{})}
	ring := newWS2812Ring(tx, 4, DefaultBitTiming, 0)
	frame := testFrame(4)

	done := make(chan error)
	go func() { done <- ring.Send(context.Background(), frame) }()
	<-tx.started
	if err := ring.Send(context.Background(), frame); !errors.Is(err, errBusy) {
		t.Errorf("concurrent Send: error %v, want %v", err, errBusy)
	}
	close(tx.hold)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// The ring is usable again once the first transfer completed.
	go func() { <-tx.started }()
	if err := ring.Send(context.Background(), frame); err != nil {
		t.Fatal(err)
	}
	if len(tx.frames) != 2 {
		t.Errorf("%d frames pushed, want 2", len(tx.frames))
	}
}

func TestWS2812RingContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tx := &fakeTx{}
	ring := newWS2812Ring(tx, 2, DefaultBitTiming, 0)
	if err := ring.Send(ctx, testFrame(2)); !errors.Is(err, context.Canceled) {
		t.Errorf("error %v, want %v", err, context.Canceled)
	}
	if len(tx.frames) != 0 {
		t.Error("frame pushed with done context")
	}

	tx = &fakeTx{started: make(chan struct{}), hold: make(chan struct{})}
	ring = newWS2812Ring(tx, 2, DefaultBitTiming, 0)
	ctx, cancel = context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- ring.Send(ctx, testFrame(2)) }()
	<-tx.started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("error %v, want %v", err, context.Canceled)
	}
}

var _ sync.Locker = (*noCopy)(nil)

// fakeFIFO models the TX FIFO and the sticky TXSTALL flag of a state machine.
type fakeFIFO struct {
	staleStall bool // set by the previous frame
	stallPolls int  // IsTxStalled polls before the last word leaves the OSR
	stuck      bool

	polls  int
	clears int
}

func (f *fakeFIFO) IsTxFIFOEmpty() bool { return !f.stuck }

func (f *fakeFIFO) IsTxStalled() bool {
	f.polls++
	if f.staleStall {
		f.staleStall = false
		return true
	}
	return !f.stuck && f.polls > f.stallPolls
}

func (f *fakeFIFO) ClearFIFOs() { f.clears++ }

func TestPushAndDrain(t *testing.T) {
	fifo := &fakeFIFO{staleStall: true, stallPolls: 3}
	var pushed int
	err := pushAndDrain(context.Background(), fifo, deadliner{}, func(ctx context.Context) error {
		pushed++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if pushed != 1 {
		t.Errorf("transfer ran %d times", pushed)
	}
	// The stale flag is consumed before the transfer; the wait ends on the
	// stall raised after the last word.
	if fifo.polls != 4 {
		t.Errorf("returned after %d stall polls, want 4", fifo.polls)
	}
	if fifo.clears != 0 {
		t.Errorf("FIFO cleared %d times after a good transfer", fifo.clears)
	}
}

func TestPushAndDrainFailure(t *testing.T) {
	errAbort := errors.New("dma aborted")
	fifo := &fakeFIFO{}
	err := pushAndDrain(context.Background(), fifo, deadliner{}, func(ctx context.Context) error {
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Errorf("error %v, want %v", err, errAbort)
	}
	if fifo.clears != 1 {
		t.Errorf("FIFO cleared %d times after an aborted transfer, want 1", fifo.clears)
	}

	var dl deadliner
	dl.setTimeout(time.Millisecond)
	fifo = &fakeFIFO{stuck: true}
	noop := func(ctx context.Context) error { return nil }
	if err := pushAndDrain(context.Background(), fifo, dl, noop); !errors.Is(err, errTimeout) {
		t.Errorf("error %v, want %v", err, errTimeout)
	}
	if fifo.clears != 1 {
		t.Errorf("FIFO cleared %d times after a timeout, want 1", fifo.clears)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fifo = &fakeFIFO{stuck: true}
	if err := pushAndDrain(ctx, fifo, deadliner{}, noop); !errors.Is(err, context.Canceled) {
		t.Errorf("error %v, want %v", err, context.Canceled)
	}
	if fifo.clears != 1 {
		t.Errorf("FIFO cleared %d times after cancel, want 1", fifo.clears)
	}
}
