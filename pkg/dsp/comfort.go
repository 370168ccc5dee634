package dsp

// comfortNoise generates shaped pseudo-random low-level noise so a fully
// gated channel does not sound dead to the listener. It is pure
// arithmetic, no allocation, safe to call from the processing worker's
// hot path.
type comfortNoise struct {
	lfsr uint32
	prev float32
}

func newComfortNoise() comfortNoise {
	return comfortNoise{lfsr: 0x12345678}
}

// next advances the xorshift32 LFSR, shapes it with a 1-pole filter, and
// returns a sample scaled to roughly -60dBFS before the caller's
// gate-dependent scale factor is applied.
func (c *comfortNoise) next() float32 {
	c.lfsr ^= c.lfsr << 13
	c.lfsr ^= c.lfsr >> 17
	c.lfsr ^= c.lfsr << 5

	x := float32(int32(c.lfsr)) / 2147483648.0
	y := comfortNoiseShapeCoeff*c.prev + (1-comfortNoiseShapeCoeff)*x
	c.prev = y
	return y * comfortNoiseLevel
}
