// Package piolib drives WS2812 LED strips from an RP2 PIO state machine fed by DMA.
package piolib

import (
	"errors"
	"runtime"
	"time"
)

var (
	errTimeout    = errors.New("piolib:timeout")
	errBusy       = errors.New("piolib:busy")
	errDMAUnavail = errors.New("piolib:DMA channel unavailable")
	errFrameLen   = errors.New("piolib:frame length does not match LED count")
)

func gosched() {
	runtime.Gosched()
}

type deadline struct {
	t time.Time
}

func (dl deadline) expired() bool {
	if dl.t.IsZero() {
		return false
	}
	return time.Since(dl.t) > 0
}

type deadliner struct {
	// timeout is a bitshift value for the timeout.
	timeout uint8
}

func (ch deadliner) newDeadline() deadline {
	var t time.Time
	if ch.timeout != 0 {
		calc := time.Duration(1 << ch.timeout)
		t = time.Now().Add(calc)
	}
	return deadline{t: t}
}

func (ch *deadliner) setTimeout(timeout time.Duration) {
	if timeout <= 0 {
		ch.timeout = 0
		return // No timeout.
	}
	for i := uint8(0); i < 63; i++ {
		calc := time.Duration(1 << i)
		if calc >= timeout {
			ch.timeout = i
			return
		}
	}
}

// noCopy may be embedded into structs which must not be copied
// after the first use.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
