//go:build rp2040 || rp2350

// Rainbowring shows a static LCh rainbow on a 12 LED WS2812 ring on GPIO 2.
//
//	tinygo flash -target=pico ./rp2-pio/examples/rainbowring/
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"github.com/letitglow/pioring/ring"
	pio "github.com/letitglow/pioring/rp2-pio"
	"github.com/letitglow/pioring/rp2-pio/piolib"
)

const (
	ringPin     = machine.GPIO2
	numLEDs     = 12
	sendTimeout = 100 * time.Millisecond
)

func main() {
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelInfo}))

	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		panic(err.Error())
	}
	ws, err := piolib.NewWS2812Ring(sm, ringPin, numLEDs, piolib.DefaultBitTiming)
	if err != nil {
		panic(err.Error())
	}
	ws.SetTimeout(sendTimeout)
	logger.Info("ws2812 ring ready",
		slog.Int("pin", int(ringPin)),
		slog.Int("leds", ws.Len()),
		slog.String("clkdiv", ws.ClkDiv().String()),
	)

	cfg := ring.DefaultConfig()
	cfg.NumLEDs = numLEDs
	cfg.Logger = logger
	loop, err := ring.NewLoop(ws, cfg)
	if err != nil {
		panic(err.Error())
	}
	// Background is never done, so Run only returns on a failed transfer.
	err = loop.Run(context.Background())
	panic(err.Error())
}
