// Package metrics holds the lock-free single-writer/many-reader numeric
// cells the processing worker publishes every frame and the control
// surface polls for display.
//
// Each field has exactly one writer (the processing worker) and any number
// of readers (the control surface). There is no cross-field atomicity: a
// reader may observe a mix of adjacent frames' values across fields. That
// is acceptable because metrics exist for display only (§4.5).
package metrics

import (
	"math"
	"sync/atomic"
)

// Registers is the set of per-frame metrics published by the DSP
// processor.
type Registers struct {
	inputRMS        atomic.Uint32 // float32 bits
	outputRMS       atomic.Uint32 // float32 bits
	vadProbability  atomic.Uint32 // float32 bits
	gateGain        atomic.Uint32 // float32 bits
	noiseFloor      atomic.Uint32 // float32 bits
	framesProcessed atomic.Uint64
}

// Snapshot is a point-in-time read of all registers.
type Snapshot struct {
	InputRMS        float32
	OutputRMS       float32
	VADProbability  float32
	GateGain        float32
	NoiseFloor      float32
	FramesProcessed uint64
}

func storeFloat(cell *atomic.Uint32, v float32) {
	cell.Store(math.Float32bits(v))
}

func loadFloat(cell *atomic.Uint32) float32 {
	return math.Float32frombits(cell.Load())
}

// SetInputRMS publishes the pre-processing RMS for the current frame.
func (r *Registers) SetInputRMS(v float32) { storeFloat(&r.inputRMS, v) }

// SetOutputRMS publishes the post-processing RMS for the current frame.
func (r *Registers) SetOutputRMS(v float32) { storeFloat(&r.outputRMS, v) }

// SetVADProbability publishes the current frame's voice activity
// probability.
func (r *Registers) SetVADProbability(v float32) { storeFloat(&r.vadProbability, v) }

// SetGateGain publishes the current frame's smoothed gate gain.
func (r *Registers) SetGateGain(v float32) { storeFloat(&r.gateGain, v) }

// SetNoiseFloor publishes the current learned noise floor.
func (r *Registers) SetNoiseFloor(v float32) { storeFloat(&r.noiseFloor, v) }

// IncrementFramesProcessed advances the frame counter by exactly one.
func (r *Registers) IncrementFramesProcessed() { r.framesProcessed.Add(1) }

// Reset zeroes every register except GateGain, which is reset to 1 (gate
// fully open). Called on engine start so a fresh run never observes a
// previous run's values.
func (r *Registers) Reset() {
	storeFloat(&r.inputRMS, 0)
	storeFloat(&r.outputRMS, 0)
	storeFloat(&r.vadProbability, 0)
	storeFloat(&r.gateGain, 1)
	storeFloat(&r.noiseFloor, 0)
	r.framesProcessed.Store(0)
}

// Read takes a consistent-enough snapshot of all registers for display.
func (r *Registers) Read() Snapshot {
	return Snapshot{
		InputRMS:        loadFloat(&r.inputRMS),
		OutputRMS:       loadFloat(&r.outputRMS),
		VADProbability:  loadFloat(&r.vadProbability),
		GateGain:        loadFloat(&r.gateGain),
		NoiseFloor:      loadFloat(&r.noiseFloor),
		FramesProcessed: r.framesProcessed.Load(),
	}
}
