package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MdSalmanTd/noiceguard/pkg/denoiser"
	"github.com/MdSalmanTd/noiceguard/pkg/metrics"
)

func newTestProcessor(t *testing.T, vad float32) *Processor {
	t.Helper()
	ad, err := denoiser.New(denoiser.NewDummyFactory(vad))
	require.NoError(t, err)
	reg := &metrics.Registers{}
	reg.Reset()
	return New(ad, reg)
}

func sineFrame(amplitude float32, freqHz, sampleRate float64, phase0 *float64) []float32 {
	frame := make([]float32, FrameSize)
	phase := *phase0
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range frame {
		frame[i] = amplitude * float32(math.Sin(phase))
		phase += step
	}
	*phase0 = phase
	return frame
}

func TestBypassIsBitExact(t *testing.T) {
	p := newTestProcessor(t, 0.9)
	p.SetSuppressionLevel(0)

	src := make([]float32, FrameSize)
	for i := range src {
		src[i] = float32(i%200) / 100.0
	}
	frame := append([]float32{}, src...)

	vad := p.ProcessFrame(frame)
	assert.Equal(t, float32(0), vad)
	assert.Equal(t, src, frame)

	snap := p.metrics.Read()
	assert.Equal(t, snap.InputRMS, snap.OutputRMS)
	assert.Equal(t, float32(1), snap.GateGain)
	assert.Equal(t, uint64(1), snap.FramesProcessed)
}

func TestOutputLengthAlwaysMatchesInput(t *testing.T) {
	p := newTestProcessor(t, 0.1)
	frame := make([]float32, FrameSize)
	p.ProcessFrame(frame)
	assert.Len(t, frame, FrameSize)
}

func TestGateGainAlwaysInUnitRange(t *testing.T) {
	p := newTestProcessor(t, 0.5)
	for i := 0; i < 200; i++ {
		frame := make([]float32, FrameSize)
		p.ProcessFrame(frame)
		g := p.metrics.Read().GateGain
		assert.GreaterOrEqual(t, g, float32(0))
		assert.LessOrEqual(t, g, float32(1))
	}
}

func TestNoiseFloorNeverBelowMinimumAfterFirstQualifyingFrame(t *testing.T) {
	p := newTestProcessor(t, 0.0)
	for i := 0; i < 50; i++ {
		frame := make([]float32, FrameSize)
		for j := range frame {
			frame[j] = 0.001
		}
		p.ProcessFrame(frame)
	}
	assert.GreaterOrEqual(t, p.metrics.Read().NoiseFloor, float32(floorMinimum))
}

func TestFramesProcessedIsMonotonic(t *testing.T) {
	p := newTestProcessor(t, 0.2)
	var last uint64
	for i := 0; i < 10; i++ {
		frame := make([]float32, FrameSize)
		p.ProcessFrame(frame)
		cur := p.metrics.Read().FramesProcessed
		assert.Equal(t, last+1, cur)
		last = cur
	}
}

func TestSilenceConvergesGateTowardZero(t *testing.T) {
	p := newTestProcessor(t, 0.0)
	p.SetVADThreshold(0.65)
	var gain float32 = 1
	for i := 0; i < 400; i++ {
		frame := make([]float32, FrameSize)
		p.ProcessFrame(frame)
		gain = p.metrics.Read().GateGain
	}
	assert.Less(t, gain, float32(0.05))
	assert.GreaterOrEqual(t, p.metrics.Read().NoiseFloor, float32(floorMinimum))
}

func TestSpeechGateConvergesToOneQuickly(t *testing.T) {
	p := newTestProcessor(t, 0.9)
	p.SetVADThreshold(0.65)
	phase := 0.0
	var gain float32
	for i := 0; i < 20; i++ {
		frame := sineFrame(0.3, 1000, 48000, &phase)
		p.ProcessFrame(frame)
		if i == 9 {
			gain = p.metrics.Read().GateGain
		}
	}
	assert.GreaterOrEqual(t, gain, float32(0.9))
}

func TestSpeechToSilenceHoldsThenDecays(t *testing.T) {
	p := newTestProcessor(t, 0.9)
	p.SetVADThreshold(0.65)
	phase := 0.0
	for i := 0; i < 50; i++ {
		frame := sineFrame(0.3, 1000, 48000, &phase)
		p.ProcessFrame(frame)
	}

	silentDenoiser, err := denoiser.New(denoiser.NewDummyFactory(0.0))
	require.NoError(t, err)
	p.denoise = silentDenoiser

	var gains []float32
	for i := 0; i < 25; i++ {
		frame := make([]float32, FrameSize)
		p.ProcessFrame(frame)
		gains = append(gains, p.metrics.Read().GateGain)
	}

	for i := 0; i < holdFrames; i++ {
		assert.Equal(t, float32(1), gains[i], "frame %d should still be held open", i)
	}
	assert.Less(t, gains[len(gains)-1], float32(0.1))
}
