package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/letitglow/pioring/ring"
	pio "github.com/letitglow/pioring/rp2-pio"
	"github.com/letitglow/pioring/rp2-pio/piolib"
)

// printListing writes the WS2812 program as pioasm source with the clock
// divider for a system clock of sysKHz.
func printListing(w io.Writer, sysKHz uint32, timing piolib.BitTiming) error {
	prog, err := piolib.WS2812Program(timing)
	if err != nil {
		return err
	}
	div, err := piolib.WS2812ClkDiv(sysKHz, timing)
	if err != nil {
		return err
	}
	cyc := timing.CyclesPerBit()
	fmt.Fprintf(w, ".program ws2812\n")
	fmt.Fprint(w, prog)
	fmt.Fprintf(w, "; T1=%d T2=%d T3=%d, %d cycles per bit\n", timing.T1, timing.T2, timing.T3, cyc)
	fmt.Fprintf(w, "; sysclk %d kHz / %s (int %d, frac %d/256) = %.1f ns per bit\n",
		sysKHz, div, div.Whole(), div.Frac(), float64(cyc)*div.CyclePeriodNs(sysKHz))
	return nil
}

const (
	traceHigh = '-'
	traceLow  = '_'
)

var errNoEdge = errors.New("no rising edge on the data line")

// traceFrame runs the WS2812 program on the emulator with frame queued and
// writes the data line one pixel per line, one character per state machine
// cycle, bytes separated by a space.
func traceFrame(w io.Writer, frame ring.Frame, timing piolib.BitTiming) error {
	lines, err := traceLines(frame, timing)
	if err != nil {
		return err
	}
	for i, line := range lines {
		c := frame[i]
		fmt.Fprintf(w, "%3d #%02x%02x%02x %s\n", i, c.R, c.G, c.B, line)
	}
	return nil
}

func traceLines(frame ring.Frame, timing piolib.BitTiming) ([]string, error) {
	prog, err := piolib.WS2812Program(timing)
	if err != nil {
		return nil, err
	}
	const pin = 0
	cfg := piolib.WS2812Config(prog, 0, pin, 1<<8)
	emu := pio.NewEmulator(prog, 0, cfg)

	cyc := timing.CyclesPerBit()
	bitsTotal := len(frame) * 24
	var levels []bool
	start := -1
	next := 0
	for len(levels) < bitsTotal*cyc+2*cyc || start < 0 {
		for next < len(frame) && emu.TxPut(piolib.PackColor(frame[next])) {
			next++
		}
		if err := emu.Step(); err != nil {
			return nil, err
		}
		level := emu.Pin(pin)
		if start < 0 && level {
			start = len(levels)
		}
		levels = append(levels, level)
		if start < 0 && len(levels) > 4*cyc {
			return nil, errNoEdge
		}
	}

	lines := make([]string, len(frame))
	var b strings.Builder
	for i := range frame {
		b.Reset()
		for bit := 0; bit < 24; bit++ {
			if bit > 0 && bit%8 == 0 {
				b.WriteByte(' ')
			}
			at := start + (i*24+bit)*cyc
			for _, high := range levels[at : at+cyc] {
				if high {
					b.WriteByte(traceHigh)
				} else {
					b.WriteByte(traceLow)
				}
			}
		}
		lines[i] = b.String()
	}
	return lines, nil
}
