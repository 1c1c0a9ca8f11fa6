package pio

import (
	"errors"
	"strconv"
)

// ClkDiv is an unsigned 24.8 fixed-point clock divider. The state machine
// runs at system clock / ClkDiv. The hardware register holds a 16 bit
// integer part and an 8 bit fraction, so valid dividers lie in [1, 65536).
type ClkDiv uint32

const clkDivFracBits = 8

var (
	errClkDivZero     = errors.New("pio: zero frequency in clock divider")
	errClkDivTooSmall = errors.New("pio: system clock too slow for requested state machine frequency")
	errClkDivTooLarge = errors.New("pio: system clock too fast for requested state machine frequency")
)

// ClkDivFromKHz returns the divider that clocks a state machine at
// cycleKHz from a system clock of sysKHz. Frequencies are taken in kHz
// so that 256*sysKHz stays well inside 32 bits for any RP2 clock; the
// result is rounded to the nearest 1/256.
func ClkDivFromKHz(sysKHz, cycleKHz uint32) (ClkDiv, error) {
	if sysKHz == 0 || cycleKHz == 0 {
		return 0, errClkDivZero
	}
	div := (uint64(sysKHz)<<clkDivFracBits + uint64(cycleKHz)/2) / uint64(cycleKHz)
	switch {
	case div < 1<<clkDivFracBits:
		return 0, errClkDivTooSmall
	case div >= 1<<(16+clkDivFracBits):
		return 0, errClkDivTooLarge
	}
	return ClkDiv(div), nil
}

// Whole returns the integer part of the divider (CLKDIV_INT).
func (d ClkDiv) Whole() uint16 { return uint16(d >> clkDivFracBits) }

// Frac returns the fractional part of the divider in 1/256 units (CLKDIV_FRAC).
func (d ClkDiv) Frac() uint8 { return uint8(d) }

// Float returns the divider as a floating point number.
func (d ClkDiv) Float() float64 { return float64(d) / (1 << clkDivFracBits) }

// CyclePeriodNs returns the state machine cycle period in nanoseconds for a
// system clock of sysKHz.
func (d ClkDiv) CyclePeriodNs(sysKHz uint32) float64 {
	return d.Float() * 1e6 / float64(sysKHz)
}

// String returns the divider in decimal, e.g. "15.625".
func (d ClkDiv) String() string {
	return strconv.FormatFloat(d.Float(), 'f', -1, 64)
}
