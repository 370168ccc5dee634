// Package backend declares the abstraction the audio engine (C6) needs
// from an operating-system audio backend: device enumeration plus a
// callback-driven, fixed-buffer-size, mono, float32 input-only and
// output-only stream API that surfaces xrun status. §6 calls this out as
// an external collaborator; only its interface to the core is specified
// here.
package backend

import (
	"context"
	"errors"
)

// ErrDeviceNotFound is returned (wrapped) by OpenInputStream/OpenOutputStream
// when cfg.DeviceIndex does not name a device the backend knows about. The
// engine matches on it with errors.Is to distinguish a missing device from
// any other stream-open failure.
var ErrDeviceNotFound = errors.New("device not found")

// Device describes one audio device as returned by enumeration.
type Device struct {
	Index             int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// StreamConfig configures a half-duplex (input-only or output-only)
// stream. DeviceIndex -1 means "use the backend's default device for this
// direction".
type StreamConfig struct {
	DeviceIndex     int
	SampleRate      float64
	FramesPerBuffer int
	TryExclusive    bool
}

// InputCallback is invoked on the backend's real-time capture thread with
// exactly FramesPerBuffer freshly captured samples. xrun reports whether
// the backend flagged an input overflow/underflow for this callback. The
// callback must not allocate, lock, or block.
type InputCallback func(samples []float32, xrun bool)

// OutputCallback is invoked on the backend's real-time output thread and
// must fill out (exactly FramesPerBuffer samples) before returning. xrun
// reports whether the backend flagged an output overflow/underflow for
// this callback. The callback must not allocate, lock, or block.
type OutputCallback func(out []float32, xrun bool)

// Stream is a single half-duplex audio stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend is what the engine needs from the OS audio layer.
type Backend interface {
	// EnumerateDevices is safe to call at any time; implementations
	// initialize and tear down any backend state they need internally.
	EnumerateDevices(ctx context.Context) ([]Device, error)

	OpenInputStream(ctx context.Context, cfg StreamConfig, cb InputCallback) (Stream, error)
	OpenOutputStream(ctx context.Context, cfg StreamConfig, cb OutputCallback) (Stream, error)

	Close() error
}
