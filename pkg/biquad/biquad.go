// Package biquad implements a stateful second-order IIR filter (Direct
// Form I) and the two fixed band-limiting filters the DSP chain needs.
package biquad

// Biquad is a Direct-Form-I second order IIR filter section:
//
//	y = b0*x + b1*x1 + b2*x2 - a1*y1 - a2*y2
//
// a0 is implicitly 1; coefficients are precomputed by the caller.
type Biquad struct {
	b0, b1, b2 float32
	a1, a2     float32
	x1, x2     float32
	y1, y2     float32
}

// New returns a Biquad with the given coefficients and zeroed delay cells.
func New(b0, b1, b2, a1, a2 float32) Biquad {
	return Biquad{b0: b0, b1: b1, b2: b2, a1: a1, a2: a2}
}

// Process filters a single sample and advances the delay line.
func (f *Biquad) Process(x float32) float32 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2 = f.x1
	f.x1 = x
	f.y2 = f.y1
	f.y1 = y
	return y
}

// Reset zeroes the delay cells, leaving coefficients untouched.
func (f *Biquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// NewHighPass80Hz returns the 80Hz 2nd-order Butterworth (Q=1/sqrt(2))
// high-pass filter precomputed for 48kHz.
func NewHighPass80Hz() Biquad {
	return New(0.992631, -1.985261, 0.992631, -1.985199, 0.985323)
}

// NewLowPass8kHz returns the 8kHz 2nd-order Butterworth (Q=1/sqrt(2))
// low-pass filter precomputed for 48kHz.
func NewLowPass8kHz() Biquad {
	return New(0.155029, 0.310059, 0.155029, -0.620209, 0.240326)
}
