//go:build rp2040 || rp2350

package piolib

import (
	"context"
	"errors"
	"machine"
	"time"

	pio "github.com/letitglow/pioring/rp2-pio"
)

var errNoLEDs = errors.New("piolib:ring needs at least one LED")

// NewWS2812Ring loads the WS2812 program into sm's PIO block and starts it
// driving pin for a strip of n LEDs. sm must be claimed by the caller; a
// DMA channel is claimed here and held for the ring's lifetime.
func NewWS2812Ring(sm pio.StateMachine, pin machine.Pin, n int, timing BitTiming) (*WS2812Ring, error) {
	if n <= 0 {
		return nil, errNoLEDs
	}
	sm.TryClaim() // SM should be claimed beforehand, we just guarantee it's claimed.
	prog, err := WS2812Program(timing)
	if err != nil {
		return nil, err
	}
	div, err := WS2812ClkDiv(machine.CPUFrequency()/1000, timing)
	if err != nil {
		return nil, err
	}
	ch, ok := _DMA.ClaimChannel()
	if !ok {
		return nil, errDMAUnavail
	}

	Pio := sm.PIO()
	offset, err := Pio.AddProgram(prog)
	if err != nil {
		ch.Unclaim()
		return nil, err
	}
	pin.Configure(machine.PinConfig{Mode: Pio.PinMode()})
	sm.SetPindirsConsecutive(pin, 1, true)
	sm.Init(offset, WS2812Config(prog, offset, uint8(pin), div))
	sm.SetEnabled(true)

	tx := &pioDMATx{sm: sm, dma: ch}
	return newWS2812Ring(tx, n, timing, div), nil
}

// pioDMATx feeds a state machine's TX FIFO through a DMA channel.
type pioDMATx struct {
	sm  pio.StateMachine
	dma dmaChannel
}

func (tx *pioDMATx) setTimeout(timeout time.Duration) { tx.dma.dl.setTimeout(timeout) }

// push32 returns once DMA has finished and the state machine has shifted
// out the last word, so the buffer can be rewritten.
func (tx *pioDMATx) push32(ctx context.Context, words []uint32) error {
	txReg := &tx.sm.TxReg().Reg
	dreq := dmaPIO_TxDREQ(tx.sm)
	return pushAndDrain(ctx, tx.sm, tx.dma.dl, func(ctx context.Context) error {
		return tx.dma.push32(ctx, txReg, words, dreq)
	})
}
