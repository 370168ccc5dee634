// Package dsp implements the per-frame processing pipeline (C4): the
// double-pass neural denoise, biquad band-limiting, adaptive noise-floor
// learning, VAD-driven hysteretic gate, spectral clamp, and shaped
// comfort noise. ProcessFrame never allocates, locks, or blocks, so it is
// safe to call from the (non-real-time, but latency-sensitive) processing
// worker every 10ms.
package dsp

import (
	"math"
	"sync/atomic"

	"github.com/MdSalmanTd/noiceguard/pkg/biquad"
	"github.com/MdSalmanTd/noiceguard/pkg/denoiser"
	"github.com/MdSalmanTd/noiceguard/pkg/metrics"
)

// FrameSize is the fixed frame length the whole pipeline operates on.
const FrameSize = denoiser.FrameSize

// Processor is the DSP frame processor (C4). Control parameters are
// atomic cells with the control surface as the single writer; gate state
// and filters are single-owner fields touched only by whatever goroutine
// calls ProcessFrame.
type Processor struct {
	denoise *denoiser.Adapter
	hpf     biquad.Biquad
	lpf     biquad.Biquad
	metrics *metrics.Registers

	suppressionLevel    atomic.Uint32 // float32 bits, [0,1]
	vadThreshold        atomic.Uint32 // float32 bits, [0,1]
	comfortNoiseEnabled atomic.Bool

	gate gateState

	original [FrameSize]float32
}

// New constructs a Processor around an already-built denoiser adapter and
// a metrics registry. Filters and gate state start zeroed/reset, matching
// a fresh engine start.
func New(denoise *denoiser.Adapter, reg *metrics.Registers) *Processor {
	p := &Processor{
		denoise: denoise,
		hpf:     biquad.NewHighPass80Hz(),
		lpf:     biquad.NewLowPass8kHz(),
		metrics: reg,
		gate:    newGateState(),
	}
	p.SetSuppressionLevel(1)
	p.SetVADThreshold(0.65)
	p.SetComfortNoiseEnabled(true)
	return p
}

// SetSuppressionLevel clamps and publishes the dry/wet mix level.
func (p *Processor) SetSuppressionLevel(level float32) {
	p.suppressionLevel.Store(math.Float32bits(clamp(level, 0, 1)))
}

// SuppressionLevel returns the currently configured suppression level.
func (p *Processor) SuppressionLevel() float32 {
	return math.Float32frombits(p.suppressionLevel.Load())
}

// SetVADThreshold clamps and publishes the gate-opening VAD threshold.
func (p *Processor) SetVADThreshold(threshold float32) {
	p.vadThreshold.Store(math.Float32bits(clamp(threshold, 0, 1)))
}

// VADThreshold returns the currently configured VAD threshold.
func (p *Processor) VADThreshold() float32 {
	return math.Float32frombits(p.vadThreshold.Load())
}

// SetComfortNoiseEnabled toggles comfort-noise injection.
func (p *Processor) SetComfortNoiseEnabled(enabled bool) {
	p.comfortNoiseEnabled.Store(enabled)
}

// ComfortNoiseEnabled reports whether comfort-noise injection is on.
func (p *Processor) ComfortNoiseEnabled() bool {
	return p.comfortNoiseEnabled.Load()
}

// Reset zeroes filter delays and metrics and returns gate state to its
// fresh-start values (smooth gain 1, everything else zero), matching a
// fresh engine start (§8 "Reset after stop/start").
func (p *Processor) Reset() {
	p.gate.reset()
	p.hpf.Reset()
	p.lpf.Reset()
	p.metrics.Reset()
}

// Close releases the underlying neural denoiser instances. Filters and
// gate state need no explicit teardown.
func (p *Processor) Close() error {
	return p.denoise.Close()
}

// ProcessFrame runs the full pipeline described in spec §4.4 over frame
// in place and returns the VAD probability. frame must be exactly
// FrameSize samples.
func (p *Processor) ProcessFrame(frame []float32) float32 {
	if len(frame) != FrameSize {
		panic("dsp: frame must be exactly FrameSize samples")
	}

	level := p.SuppressionLevel()

	// Step 1: fast bypass path.
	if level <= 0 {
		rms := computeRMS(frame)
		p.metrics.SetInputRMS(rms)
		p.metrics.SetOutputRMS(rms)
		p.metrics.SetVADProbability(0)
		p.metrics.SetGateGain(1)
		p.metrics.IncrementFramesProcessed()
		return 0
	}

	// Step 2: input RMS.
	inputRMS := computeRMS(frame)
	p.metrics.SetInputRMS(inputRMS)

	// Step 3: snapshot original, scale to int16-equivalent magnitude.
	copy(p.original[:], frame)
	for i := range frame {
		frame[i] *= int16Scale
	}

	// Step 4: two-pass neural denoise.
	vad := p.denoise.Process(frame)
	p.metrics.SetVADProbability(vad)

	// Step 5: rescale back to [-1, 1].
	for i := range frame {
		frame[i] /= int16Scale
	}

	// Step 6: dry/wet mix.
	if level < 1 {
		dry := 1 - level
		for i := range frame {
			frame[i] = level*frame[i] + dry*p.original[i]
		}
	}

	// Step 7: HPF then LPF, per sample.
	for i := range frame {
		frame[i] = p.lpf.Process(p.hpf.Process(frame[i]))
	}

	// Step 8: post-filter RMS.
	postRMS := computeRMS(frame)

	vadThreshold := p.VADThreshold()

	// Step 9: noise-floor update.
	noiseFloor := p.gate.updateNoiseFloor(vad, vadThreshold, postRMS)
	p.metrics.SetNoiseFloor(noiseFloor)

	// Step 10: gate target.
	target := p.gate.gateTarget(vad, vadThreshold, postRMS)

	// Step 11: asymmetric smoothing.
	smoothGain := p.gate.smooth(target)
	p.metrics.SetGateGain(smoothGain)

	// Step 12: apply gate gain.
	for i := range frame {
		frame[i] *= smoothGain
	}

	// Step 13: spectral clamp.
	if vad < vadThreshold && smoothGain <= spectralClampGateCeiling {
		threshold := noiseFloor * spectralClampFloorFactor
		if threshold < spectralClampMinimum {
			threshold = spectralClampMinimum
		}
		for i := range frame {
			if absf32(frame[i]) < threshold {
				frame[i] = 0
			}
		}
	}

	// Step 14: comfort noise.
	if p.ComfortNoiseEnabled() && smoothGain < comfortNoiseGateCeiling {
		scale := (comfortNoiseGateCeiling - smoothGain) / comfortNoiseGateCeiling
		for i := range frame {
			frame[i] += p.gate.comfort.next() * scale
		}
	}

	// Step 15: output RMS, frame counter, return.
	outputRMS := computeRMS(frame)
	p.metrics.SetOutputRMS(outputRMS)
	p.metrics.IncrementFramesProcessed()
	return vad
}

func computeRMS(frame []float32) float32 {
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(frame))))
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
