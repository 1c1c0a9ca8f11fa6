package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/letitglow/pioring/ring"
	"github.com/lmittmann/tint"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/devices/v3/screen1d"
	"periph.io/x/host/v3"
)

// drawer is the part of periph's display.Drawer the backends use.
type drawer interface {
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

// drawSender adapts a periph display to ring.Sender by drawing the frame as
// an N×1 image.
type drawSender struct {
	d   drawer
	img *image.NRGBA
}

func newDrawSender(d drawer, n int) *drawSender {
	return &drawSender{d: d, img: image.NewNRGBA(image.Rect(0, 0, n, 1))}
}

func (s *drawSender) Send(ctx context.Context, pixels []color.RGBA) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for x, c := range pixels {
		s.img.SetNRGBA(x, 0, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
	}
	return s.d.Draw(s.img.Bounds(), s.img, image.Point{})
}

// nrzFreq is the SPI clock that gives nrzled 800 kbit/s: three SPI bits
// per NRZ bit.
const nrzFreq = 3 * 800 * physic.KiloHertz

// openBackend returns the frame sink named by name and a function that
// releases it.
func openBackend(name string, n int, logger *slog.Logger) (ring.Sender, func(), error) {
	switch name {
	case "screen":
		d := screen1d.New(&screen1d.Opts{X: n})
		return newDrawSender(d, n), func() { d.Halt() }, nil

	case "spi":
		if _, err := host.Init(); err != nil {
			return nil, nil, err
		}
		port, err := spireg.Open(spiPort)
		if err != nil {
			return nil, nil, err
		}
		d, err := nrzled.NewSPI(port, &nrzled.Opts{NumPixels: n, Channels: 3, Freq: nrzFreq})
		if err != nil {
			port.Close()
			return nil, nil, err
		}
		logger.Info("driving strip over SPI", slog.String("port", port.String()), slog.Int("leds", n))
		return newDrawSender(d, n), func() {
			d.Halt()
			port.Close()
		}, nil

	case "ws":
		h := newHub(logger)
		ln, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return nil, nil, err
		}
		srv := &http.Server{Handler: newRouter(h, n)}
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("preview server failed", tint.Err(err))
				os.Exit(1)
			}
		}()
		logger.Info("serving preview", slog.String("url", "http://"+ln.Addr().String()+"/"))
		return h, func() { srv.Shutdown(context.Background()) }, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", name)
}
