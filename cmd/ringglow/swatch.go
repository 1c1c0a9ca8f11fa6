package main

import (
	"image"
	"image/color"
	"io"
	"os"

	"golang.org/x/image/bmp"
)

// swatchCell is the side of one LED's square in a swatch, in pixels.
const swatchCell = 32

// writeSwatch encodes pixels as a BMP strip of squares, one per LED.
func writeSwatch(w io.Writer, pixels []color.RGBA) error {
	img := image.NewRGBA(image.Rect(0, 0, swatchCell*len(pixels), swatchCell))
	for i, c := range pixels {
		c.A = 0xff
		for y := 0; y < swatchCell; y++ {
			for x := i * swatchCell; x < (i+1)*swatchCell; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
	return bmp.Encode(w, img)
}

func writeSwatchFile(path string, pixels []color.RGBA) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeSwatch(f, pixels); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
