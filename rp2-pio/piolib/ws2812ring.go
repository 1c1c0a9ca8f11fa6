package piolib

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync/atomic"
	"time"

	pio "github.com/letitglow/pioring/rp2-pio"
)

// WS2812 line rate and the tolerance on one bit period, from the WS2812B datasheet.
const (
	ws2812BitKHz         = 800
	ws2812BitPeriodNs    = 1250
	ws2812BitToleranceNs = 150
)

// BitTiming holds the three phases of a WS2812 bit in state machine cycles.
// Every bit starts high for T1. A 1 bit stays high for another T2 and a 0
// bit goes low for it. The bit ends low for T3.
type BitTiming struct {
	T1, T2, T3 uint8
}

// DefaultBitTiming is 10 cycles per bit, so 8 MHz state machine clock at 800 kHz.
var DefaultBitTiming = BitTiming{T1: 2, T2: 5, T3: 3}

var errBitTiming = errors.New("piolib:bit timing phase out of range")

// CyclesPerBit returns T1+T2+T3.
func (t BitTiming) CyclesPerBit() int { return int(t.T1) + int(t.T2) + int(t.T3) }

// HighCycles returns how long the line is held high for a bit.
func (t BitTiming) HighCycles(bit bool) int {
	if bit {
		return int(t.T1) + int(t.T2)
	}
	return int(t.T1)
}

// Validate checks every phase is at least one cycle and that its delay fits
// beside the single side-set bit the program uses.
func (t BitTiming) Validate() error {
	const maxPhase = 16 // 4 delay bits plus the instruction cycle.
	for _, phase := range [3]uint8{t.T1, t.T2, t.T3} {
		if phase == 0 || phase > maxPhase {
			return fmt.Errorf("%w: %d/%d/%d", errBitTiming, t.T1, t.T2, t.T3)
		}
	}
	return nil
}

// WS2812Program assembles the WS2812 bit-banging program for timing. The
// program shifts one bit per loop out of the OSR, MSB first, using side-set
// on a single pin:
//
//	    set pindirs, 1   side 0
//	.wrap_target
//	bitloop:
//	    out x, 1         side 0 [T3-1]
//	    jmp !x do_zero   side 1 [T1-1]
//	    jmp bitloop      side 1 [T2-1]
//	do_zero:
//	    nop              side 0 [T2-1]
//	.wrap
func WS2812Program(t BitTiming) (pio.Program, error) {
	if err := t.Validate(); err != nil {
		return pio.Program{}, err
	}
	asm := pio.Assembler{SidesetBits: 1}
	bitloop, doZero := asm.Label(), asm.Label()

	asm.Set(pio.SetDestPindirs, 1).Side(0)
	asm.WrapTarget()
	asm.Bind(bitloop)
	asm.Out(pio.OutDestX, 1).Side(0).Delay(t.T3 - 1)
	asm.Jmp(doZero, pio.JmpXZero).Side(1).Delay(t.T1 - 1)
	asm.Jmp(bitloop, pio.JmpAlways).Side(1).Delay(t.T2 - 1)
	asm.Bind(doZero)
	asm.Nop().Side(0).Delay(t.T2 - 1)
	asm.Wrap()
	return asm.Assemble()
}

// WS2812Config returns the state machine configuration for the program
// loaded at offset driving pin: side-set and set on pin, left shift with
// autopull every 24 bits and the FIFOs joined for transmit.
func WS2812Config(prog pio.Program, offset, pin uint8, div pio.ClkDiv) pio.StateMachineConfig {
	cfg := prog.DefaultConfig(offset)
	cfg.SetSidesetPins(pin)
	cfg.SetSetPins(pin, 1)
	cfg.SetOutShift(false, true, 24)
	cfg.SetFIFOJoin(pio.FifoJoinTx)
	cfg.SetClkDiv(div)
	return cfg
}

var errBitPeriod = errors.New("piolib:WS2812 bit period out of tolerance")

// WS2812ClkDiv returns the clock divider that runs timing at 800 kbit/s from
// a system clock of sysKHz.
func WS2812ClkDiv(sysKHz uint32, t BitTiming) (pio.ClkDiv, error) {
	cyc := t.CyclesPerBit()
	div, err := pio.ClkDivFromKHz(sysKHz, ws2812BitKHz*uint32(cyc))
	if err != nil {
		return 0, err
	}
	period := float64(cyc) * div.CyclePeriodNs(sysKHz)
	if period < ws2812BitPeriodNs-ws2812BitToleranceNs || period > ws2812BitPeriodNs+ws2812BitToleranceNs {
		return 0, fmt.Errorf("%w: %.0fns", errBitPeriod, period)
	}
	return div, nil
}

// PackGRB packs a pixel into the word the WS2812 program shifts out. The
// program shifts left and pulls every 24 bits, so the colour sits in the
// top three bytes in the strip's wire order, green first.
func PackGRB(r, g, b uint8) uint32 {
	return uint32(g)<<24 | uint32(r)<<16 | uint32(b)<<8
}

// PackColor wraps PackGRB for a [color.RGBA].
func PackColor(c color.RGBA) uint32 {
	return PackGRB(c.R, c.G, c.B)
}

// wordPusher moves a buffer of words into the state machine's TX FIFO and
// returns once the last word has left the FIFO.
type wordPusher interface {
	push32(ctx context.Context, words []uint32) error
	setTimeout(time.Duration)
}

// txFIFO is the part of a state machine a transfer waits on.
type txFIFO interface {
	IsTxFIFOEmpty() bool
	IsTxStalled() bool
	ClearFIFOs()
}

// pushAndDrain runs transfer and then waits until the FIFO is empty and the
// state machine has stalled on the next pull, which means the last word has
// left the OSR. If the transfer fails or the wait is cut short the FIFO is
// cleared, so at most the word already in the OSR reaches the strip.
func pushAndDrain(ctx context.Context, fifo txFIFO, dl deadliner, transfer func(context.Context) error) error {
	fifo.IsTxStalled() // Clear the stall left by the previous frame.
	if err := transfer(ctx); err != nil {
		fifo.ClearFIFOs()
		return err
	}
	d := dl.newDeadline()
	for !fifo.IsTxFIFOEmpty() || !fifo.IsTxStalled() {
		if d.expired() {
			fifo.ClearFIFOs()
			return errTimeout
		}
		if err := ctx.Err(); err != nil {
			fifo.ClearFIFOs()
			return err
		}
		gosched()
	}
	return nil
}

// WS2812Ring sends whole frames to a fixed-length WS2812 strip. Frames are
// packed into a buffer owned by the ring and handed to the transfer engine.
// Send must not be called concurrently; a second caller gets an error
// instead of corrupting the buffer in flight.
type WS2812Ring struct {
	nc     noCopy
	tx     wordPusher
	words  []uint32
	busy   atomic.Bool
	timing BitTiming
	div    pio.ClkDiv
}

func newWS2812Ring(tx wordPusher, n int, t BitTiming, div pio.ClkDiv) *WS2812Ring {
	return &WS2812Ring{
		tx:     tx,
		words:  make([]uint32, n),
		timing: t,
		div:    div,
	}
}

// Len returns the number of LEDs on the ring.
func (ws *WS2812Ring) Len() int { return len(ws.words) }

// ClkDiv returns the state machine clock divider in use.
func (ws *WS2812Ring) ClkDiv() pio.ClkDiv { return ws.div }

// SetTimeout bounds how long Send waits for a transfer. Zero or negative
// waits until the context is done.
func (ws *WS2812Ring) SetTimeout(timeout time.Duration) { ws.tx.setTimeout(timeout) }

// Timing returns the bit timing the program was assembled with.
func (ws *WS2812Ring) Timing() BitTiming { return ws.timing }

// Send transmits one frame. len(pixels) must equal Len. It returns once the
// last bit has been handed to the state machine, or with the context's
// error or a timeout if the transfer did not complete.
func (ws *WS2812Ring) Send(ctx context.Context, pixels []color.RGBA) error {
	if len(pixels) != len(ws.words) {
		return fmt.Errorf("%w: got %d, want %d", errFrameLen, len(pixels), len(ws.words))
	}
	if !ws.busy.CompareAndSwap(false, true) {
		return errBusy
	}
	defer ws.busy.Store(false)
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, c := range pixels {
		ws.words[i] = PackColor(c)
	}
	return ws.tx.push32(ctx, ws.words)
}
