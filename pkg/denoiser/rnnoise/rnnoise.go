//go:build rnnoise
// +build rnnoise

// Package rnnoise binds the RNNoise C library as a denoiser.Engine.
package rnnoise

/*
#cgo pkg-config: rnnoise
#cgo CFLAGS: -march=native
#include <rnnoise.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/MdSalmanTd/noiceguard/pkg/denoiser"
)

// Engine wraps a single RNNoise DenoiseState.
type Engine struct {
	state *C.DenoiseState
}

var _ denoiser.Engine = (*Engine)(nil)

// New constructs one RNNoise instance.
func New() (*Engine, error) {
	state := C.rnnoise_create(nil)
	if state == nil {
		return nil, fmt.Errorf("rnnoise_create returned nil")
	}
	return &Engine{state: state}, nil
}

// Factory is a denoiser.Factory that constructs one rnnoise-backed Engine.
func Factory() (denoiser.Engine, error) {
	return New()
}

// Process runs one RNNoise frame in place. frame must have exactly
// denoiser.FrameSize samples.
func (e *Engine) Process(frame []float32) float32 {
	if len(frame) != denoiser.FrameSize {
		panic(fmt.Sprintf("rnnoise: frame size must be %d, got %d", denoiser.FrameSize, len(frame)))
	}
	ptr := (*C.float)(unsafe.Pointer(&frame[0]))
	vad := C.rnnoise_process_frame(e.state, ptr, ptr)
	return float32(vad)
}

// Close destroys the underlying RNNoise state.
func (e *Engine) Close() error {
	if e.state == nil {
		return fmt.Errorf("double-free attempt")
	}
	C.rnnoise_destroy(e.state)
	e.state = nil
	return nil
}
