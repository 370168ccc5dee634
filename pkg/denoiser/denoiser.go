// Package denoiser adapts the neural voice-activity/denoising network to
// the double-pass scheme the DSP frame processor requires. The network
// itself is an external black box (§1 of the spec): this package only
// owns lifetime and cascades two independent instances of it.
package denoiser

import "io"

// FrameSize is the number of samples the underlying neural network
// consumes and produces per call. It is a hard invariant imposed by the
// network, not a tunable.
const FrameSize = 480

// Engine is a single instance of the neural denoiser. Process operates
// in place on exactly FrameSize samples, already scaled to int16-equivalent
// magnitude by the caller, and returns that pass's VAD probability.
type Engine interface {
	io.Closer
	Process(frame []float32) (vadProbability float32)
}

// Factory constructs one Engine instance. Adapter calls it twice to get
// two independent instances for the cascaded passes.
type Factory func() (Engine, error)

// Adapter owns two independent Engine instances and runs them in series:
// pass two denoises the output of pass one, so pass two's network state
// reflects only pass one's output, never the same instance called twice.
type Adapter struct {
	pass1 Engine
	pass2 Engine
}

// New constructs both passes via factory. If either construction fails,
// any already-constructed instance is closed and the error is returned.
func New(factory Factory) (*Adapter, error) {
	pass1, err := factory()
	if err != nil {
		return nil, err
	}
	pass2, err := factory()
	if err != nil {
		pass1.Close()
		return nil, err
	}
	return &Adapter{pass1: pass1, pass2: pass2}, nil
}

// Process runs pass one then pass two in place on frame (which must
// already be scaled to int16-equivalent magnitude) and returns the
// maximum of the two passes' VAD probabilities.
func (a *Adapter) Process(frame []float32) float32 {
	vad1 := a.pass1.Process(frame)
	vad2 := a.pass2.Process(frame)
	if vad2 > vad1 {
		return vad2
	}
	return vad1
}

// Close destroys both underlying instances.
func (a *Adapter) Close() error {
	err1 := a.pass1.Close()
	err2 := a.pass2.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
