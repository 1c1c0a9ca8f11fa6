// Command ringglow previews and drives the WS2812 ring rainbow from a host.
//
// It prints the assembled PIO program and clock divider the firmware would
// use, traces the emulated data line, writes a swatch of the palette, and
// runs the same animation loop against a terminal preview, a websocket
// preview or a real strip on a Linux SPI port.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/letitglow/pioring/colorwheel"
	"github.com/letitglow/pioring/ring"
	"github.com/letitglow/pioring/rp2-pio/piolib"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

var (
	numLEDs    = 12
	baseHex    = "#cc4d4d"
	lightness  = 0.9
	frameDelay = 10 * time.Millisecond
	noGamutMap = false
	backend    = "screen"
	spiPort    = ""
	listenAddr = "localhost:8080"
	sysclkKHz  = uint32(125000)
	listing    = false
	tracePix   = 0
	swatchPath = ""
	verbose    = false
)

func init() {
	pflag.IntVar(&numLEDs, "leds", numLEDs, "number of LEDs on the ring")
	pflag.StringVar(&baseHex, "base", baseHex, "sRGB colour of LED 0 before darkening")
	pflag.Float64Var(&lightness, "lightness", lightness, "lightness scale applied to the base colour")
	pflag.DurationVar(&frameDelay, "delay", frameDelay, "pause between frames")
	pflag.BoolVar(&noGamutMap, "no-gamut-map", noGamutMap, "clip out-of-gamut colours instead of reducing chroma")
	pflag.StringVar(&backend, "backend", backend, "frame output: screen, spi or ws")
	pflag.StringVar(&spiPort, "spi-port", spiPort, "SPI port for the spi backend, empty for the first one")
	pflag.StringVar(&listenAddr, "listen", listenAddr, "listen address for the ws backend")
	pflag.Uint32Var(&sysclkKHz, "sysclk-khz", sysclkKHz, "RP2 system clock used for the divider")
	pflag.BoolVar(&listing, "listing", listing, "print the PIO program and clock divider and exit")
	pflag.IntVar(&tracePix, "trace", tracePix, "print the emulated data line for the first N pixels and exit")
	pflag.StringVar(&swatchPath, "swatch", swatchPath, "write the palette as a BMP swatch to this file and exit")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose logging")
}

func main() {
	log.SetFlags(0)
	pflag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	base, err := colorwheel.FromHex(baseHex)
	if err != nil {
		return fmt.Errorf("invalid --base %q: %w", baseHex, err)
	}
	cfg := ring.Config{
		NumLEDs:    numLEDs,
		Base:       base,
		Lightness:  lightness,
		FrameDelay: frameDelay,
		GamutMap:   !noGamutMap,
		Logger:     logger,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	switch {
	case listing:
		return printListing(os.Stdout, sysclkKHz, piolib.DefaultBitTiming)
	case tracePix > 0:
		frame := renderFrame(cfg)
		return traceFrame(os.Stdout, frame[:min(tracePix, len(frame))], piolib.DefaultBitTiming)
	case swatchPath != "":
		return writeSwatchFile(swatchPath, renderFrame(cfg))
	}

	tx, closeTx, err := openBackend(backend, cfg.NumLEDs, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", backend, err)
	}
	defer closeTx()

	loop, err := ring.NewLoop(tx, cfg)
	if err != nil {
		return err
	}
	return loop.Run(ctx)
}

// renderFrame computes the frame the loop would send.
func renderFrame(cfg ring.Config) ring.Frame {
	frame := ring.NewFrame(cfg.NumLEDs)
	palette := colorwheel.Palette(cfg.Base, cfg.NumLEDs, cfg.Lightness, colorwheel.Options{GamutMap: cfg.GamutMap})
	colorwheel.Render(frame, palette)
	return frame
}
