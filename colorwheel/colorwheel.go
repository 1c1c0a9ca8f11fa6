// Package colorwheel generates evenly hue-rotated colours in CIE LCh(ab)
// and converts them to 8-bit sRGB for LED strips.
//
// Rotating hue in LCh keeps apparent lightness constant around the wheel,
// which a rotation in RGB or HSV does not.
package colorwheel

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Sample is a colour in CIE LCh(ab) under the D65 white point. L and C use
// go-colorful's scale where L runs 0..1; H is in degrees, 0..360.
type Sample struct {
	L, C, H float64
}

// FromColor converts an sRGB colour to LCh.
func FromColor(c colorful.Color) Sample {
	h, chroma, l := c.Hcl()
	return Sample{L: l, C: chroma, H: h}
}

// FromHex parses a "#rrggbb" sRGB colour.
func FromHex(s string) (Sample, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return Sample{}, err
	}
	return FromColor(c), nil
}

// Darken scales lightness by scale. A scale of 0.9 leaves 90% of the
// original lightness.
func (s Sample) Darken(scale float64) Sample {
	s.L *= scale
	return s
}

// ShiftHue rotates the hue by deg degrees, wrapping into [0, 360).
func (s Sample) ShiftHue(deg float64) Sample {
	s.H = math.Mod(s.H+deg, 360)
	if s.H < 0 {
		s.H += 360
	}
	return s
}

// Linear returns the colour in linear sRGB. Components fall outside [0, 1]
// when the sample is outside the sRGB gamut.
func (s Sample) Linear() (r, g, b float64) {
	l, a, bb := colorful.HclToLab(s.H, s.C, s.L)
	x, y, z := colorful.LabToXyz(l, a, bb)
	return colorful.XyzToLinearRgb(x, y, z)
}

// Color returns the gamma-encoded sRGB colour, unclamped.
func (s Sample) Color() colorful.Color {
	return colorful.LinearRgb(s.Linear())
}

// gamutEps absorbs rounding in the LCh to linear conversion.
const gamutEps = 1e-9

// InGamut reports whether the sample is representable in sRGB.
func (s Sample) InGamut() bool {
	r, g, b := s.Linear()
	for _, v := range [3]float64{r, g, b} {
		if v < -gamutEps || v > 1+gamutEps {
			return false
		}
	}
	return true
}

// MapToGamut returns the sample with the largest chroma that fits in sRGB
// at the same lightness and hue. Samples already in gamut are unchanged.
func (s Sample) MapToGamut() Sample {
	if s.InGamut() {
		return s
	}
	lo, hi := 0.0, s.C
	for i := 0; i < 32; i++ {
		s.C = (lo + hi) / 2
		if s.InGamut() {
			lo = s.C
		} else {
			hi = s.C
		}
	}
	s.C = lo
	return s
}

// RGBA converts the sample to 8-bit sRGB, clamping out-of-gamut channels.
func (s Sample) RGBA() color.RGBA {
	r, g, b := s.Color().Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func (s Sample) String() string {
	return fmt.Sprintf("LCh(%.3f, %.3f, %.1f°)", s.L, s.C, s.H)
}

// Options tune palette generation.
type Options struct {
	// GamutMap reduces chroma of samples outside sRGB instead of clipping
	// channels, so every colour keeps the requested lightness.
	GamutMap bool
}

// Palette returns n samples spaced 360/n degrees apart starting at base,
// each with base's lightness scaled by lightness.
func Palette(base Sample, n int, lightness float64, opts Options) []Sample {
	if n <= 0 {
		return nil
	}
	dark := base.Darken(lightness)
	step := 360 / float64(n)
	samples := make([]Sample, n)
	for k := range samples {
		s := dark.ShiftHue(float64(k) * step)
		if opts.GamutMap {
			s = s.MapToGamut()
		}
		samples[k] = s
	}
	return samples
}

// Render converts samples to 8-bit sRGB into dst and returns the number of
// pixels written, the minimum of both lengths.
func Render(dst []color.RGBA, samples []Sample) int {
	n := len(samples)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = samples[i].RGBA()
	}
	return n
}
