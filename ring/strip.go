// Package ring runs a static LCh rainbow on a ring of addressable LEDs.
package ring

import (
	"context"
	"image/color"

	"tinygo.org/x/drivers"
)

// Sender transmits a whole frame to the LEDs and returns when the transfer
// is complete. *piolib.WS2812Ring is the on-target implementation.
type Sender interface {
	Send(ctx context.Context, pixels []color.RGBA) error
}

// Frame is one colour per LED in physical ring order. Its length is fixed
// when it is allocated.
type Frame []color.RGBA

// NewFrame allocates a frame of n dark pixels.
func NewFrame(n int) Frame { return make(Frame, n) }

// Strip is a 1×N display backed by a Frame. Pixels are buffered until
// Display or Flush sends the frame.
type Strip struct {
	frame Frame
	tx    Sender
}

var _ drivers.Displayer = (*Strip)(nil)

// NewStrip returns a strip of n LEDs sending through tx.
func NewStrip(tx Sender, n int) *Strip {
	return &Strip{frame: NewFrame(n), tx: tx}
}

// Size returns the strip length as width and a height of 1.
func (s *Strip) Size() (x, y int16) { return int16(len(s.frame)), 1 }

// SetPixel sets LED x. Coordinates off the strip are ignored.
func (s *Strip) SetPixel(x, y int16, c color.RGBA) {
	if y != 0 || x < 0 || int(x) >= len(s.frame) {
		return
	}
	s.frame[x] = c
}

// Frame returns the buffered frame. Writes to it show on the next flush.
func (s *Strip) Frame() Frame { return s.frame }

// Display sends the buffered frame.
func (s *Strip) Display() error { return s.Flush(context.Background()) }

// Flush sends the buffered frame, giving up when ctx is done.
func (s *Strip) Flush(ctx context.Context) error { return s.tx.Send(ctx, s.frame) }
