package ring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/letitglow/pioring/colorwheel"
	"github.com/lucasb-eyer/go-colorful"
)

// Config describes the rainbow.
type Config struct {
	// NumLEDs is the number of LEDs on the ring.
	NumLEDs int
	// Base is the colour of LED 0 before darkening.
	Base colorwheel.Sample
	// Lightness scales Base's lightness, 0 < Lightness <= 1.
	Lightness float64
	// FrameDelay is the pause after each frame is sent.
	FrameDelay time.Duration
	// GamutMap keeps every LED at the same lightness by reducing chroma
	// of hues sRGB can not show, instead of clipping channels.
	GamutMap bool
	// Logger receives frame events. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig is 12 LEDs starting at sRGB(0.8, 0.3, 0.3) at 90%
// lightness, refreshed every 10ms.
func DefaultConfig() Config {
	return Config{
		NumLEDs:    12,
		Base:       colorwheel.FromColor(colorful.Color{R: 0.8, G: 0.3, B: 0.3}),
		Lightness:  0.9,
		FrameDelay: 10 * time.Millisecond,
		GamutMap:   true,
	}
}

var (
	errNumLEDs    = errors.New("ring: LED count must be positive")
	errLightness  = errors.New("ring: lightness must be in (0, 1]")
	errFrameDelay = errors.New("ring: negative frame delay")
)

// Validate checks the configuration.
func (cfg Config) Validate() error {
	switch {
	case cfg.NumLEDs <= 0:
		return errNumLEDs
	case !(cfg.Lightness > 0 && cfg.Lightness <= 1):
		return fmt.Errorf("%w: %v", errLightness, cfg.Lightness)
	case cfg.FrameDelay < 0:
		return errFrameDelay
	}
	return nil
}

type loopState uint8

const (
	stateInit loopState = iota
	stateRun
)

// Loop computes the palette once and then copies it into the frame and
// sends it on every tick.
type Loop struct {
	cfg     Config
	strip   *Strip
	palette []colorwheel.Sample
	state   loopState
	frames  uint64
	log     *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewLoop returns a loop sending frames through tx.
func NewLoop(tx Sender, cfg Config) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loop{
		cfg:   cfg,
		strip: NewStrip(tx, cfg.NumLEDs),
		log:   log,
		sleep: sleep,
	}, nil
}

// Init computes the palette and renders it into the frame. Run calls it
// if it has not been called.
func (l *Loop) Init() {
	l.palette = colorwheel.Palette(l.cfg.Base, l.cfg.NumLEDs, l.cfg.Lightness, colorwheel.Options{GamutMap: l.cfg.GamutMap})
	colorwheel.Render(l.strip.Frame(), l.palette)
	l.log.Info("palette ready", slog.Int("leds", l.cfg.NumLEDs), slog.String("base", l.cfg.Base.String()),
		slog.Float64("lightness", l.cfg.Lightness))
	for i, s := range l.palette {
		l.log.Debug("palette", slog.Int("led", i), slog.String("lch", s.String()),
			slog.String("rgb", fmt.Sprintf("%02x%02x%02x", l.strip.frame[i].R, l.strip.frame[i].G, l.strip.frame[i].B)))
	}
	l.state = stateRun
}

// Run renders the palette into the frame and sends it every FrameDelay until ctx is done or a send fails.
// ctx is checked between frames and during the delay; with a context that
// is never done Run only returns on a send error.
func (l *Loop) Run(ctx context.Context) error {
	if l.state == stateInit {
		l.Init()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		colorwheel.Render(l.strip.Frame(), l.palette)
		if err := l.strip.Flush(ctx); err != nil {
			return fmt.Errorf("ring: frame %d: %w", l.frames, err)
		}
		l.frames++
		if err := l.sleep(ctx, l.cfg.FrameDelay); err != nil {
			return err
		}
	}
}

// Frame returns the frame sent on every tick.
func (l *Loop) Frame() Frame { return l.strip.Frame() }

// Palette returns the samples computed by Init.
func (l *Loop) Palette() []colorwheel.Sample { return l.palette }

// Frames returns the number of frames sent.
func (l *Loop) Frames() uint64 { return l.frames }

// sleep waits for d or until ctx is done. A context that can never be done
// sleeps without allocating a timer.
func sleep(ctx context.Context, d time.Duration) error {
	if ctx.Done() == nil {
		time.Sleep(d)
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
