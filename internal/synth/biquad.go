package synth

import (
	"math"

	"github.com/gopxl/beep/v2"
)

// biquad is an RBJ cookbook second-order filter applied per channel.
type biquad struct {
	s                  beep.Streamer
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [2]float64
}

func newBiquad(s beep.Streamer, kind FilterKind, freq, q float64, sr beep.SampleRate) beep.Streamer {
	if kind == NoFilter {
		return s
	}
	w0 := 2 * math.Pi * freq / float64(sr)
	cos, sin := math.Cos(w0), math.Sin(w0)
	alpha := sin / (2 * q)

	var b0, b1, b2 float64
	switch kind {
	case BandPass:
		b0, b1, b2 = alpha, 0, -alpha
	case LowPass:
		b0, b1, b2 = (1-cos)/2, 1-cos, (1-cos)/2
	}
	a0 := 1 + alpha
	return &biquad{
		s:  s,
		b0: b0 / a0, b1: b1 / a0, b2: b2 / a0,
		a1: -2 * cos / a0, a2: (1 - alpha) / a0,
	}
}

func (f *biquad) Stream(samples [][2]float64) (int, bool) {
	n, ok := f.s.Stream(samples)
	for i := range samples[:n] {
		for c := range 2 {
			x := samples[i][c]
			y := f.b0*x + f.b1*f.x1[c] + f.b2*f.x2[c] - f.a1*f.y1[c] - f.a2*f.y2[c]
			f.x2[c], f.x1[c] = f.x1[c], x
			f.y2[c], f.y1[c] = f.y1[c], y
			samples[i][c] = y
		}
	}
	return n, ok
}

func (f *biquad) Err() error { return f.s.Err() }
