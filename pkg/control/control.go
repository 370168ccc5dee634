// Package control implements the control surface (C7): the thin,
// plain-value adapter a surrounding host (a UI process, over RPC/IPC)
// drives instead of touching the engine directly. It validates argument
// types, clamps numeric ranges at the boundary, and never returns a
// pointer into core memory.
package control

import (
	"context"

	"github.com/MdSalmanTd/noiceguard/pkg/backend"
	"github.com/MdSalmanTd/noiceguard/pkg/engine"
	"github.com/MdSalmanTd/noiceguard/pkg/metrics"
)

const (
	sampleRate      = 48000
	framesPerBuffer = 480
	tryExclusive    = true
)

// Device mirrors one enumerated audio device as the external interface
// describes it: plain fields, no backend-specific detail.
type Device struct {
	Index             int
	Name              string
	MaxChannels       int
	DefaultSampleRate float64
}

// Devices is the result of get_devices.
type Devices struct {
	Inputs  []Device
	Outputs []Device
}

// StartResult is the result of start.
type StartResult struct {
	Success bool
	Error   string
}

// SimpleResult is the result of stop/set_level/set_vad_threshold.
type SimpleResult struct {
	Success bool
}

// Status is the result of get_status.
type Status struct {
	Running bool
	Level   float32
}

// Surface is the control surface (C7). The zero value is not usable;
// construct with New.
type Surface struct {
	backend backend.Backend
	engine  *engine.Engine
}

// New wires a control surface around an already-constructed engine and the
// same backend it was given, which Surface uses only for device
// enumeration.
func New(be backend.Backend, eng *engine.Engine) *Surface {
	return &Surface{backend: be, engine: eng}
}

// GetDevices lists every input and output device the backend knows about.
func (s *Surface) GetDevices(ctx context.Context) (Devices, error) {
	devices, err := s.backend.EnumerateDevices(ctx)
	if err != nil {
		return Devices{}, err
	}

	var out Devices
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			out.Inputs = append(out.Inputs, Device{
				Index:             d.Index,
				Name:              d.Name,
				MaxChannels:       d.MaxInputChannels,
				DefaultSampleRate: d.DefaultSampleRate,
			})
		}
		if d.MaxOutputChannels > 0 {
			out.Outputs = append(out.Outputs, Device{
				Index:             d.Index,
				Name:              d.Name,
				MaxChannels:       d.MaxOutputChannels,
				DefaultSampleRate: d.DefaultSampleRate,
			})
		}
	}
	return out, nil
}

// Start brings the engine up against the given devices. inputIndex -1
// means the default input device; outputIndex -1 means the default output
// device and -2 means a muted (silent) output. The engine's own SampleRate
// and FramesPerBuffer are fixed by the backend requirement (§6); callers
// cannot override them.
func (s *Surface) Start(ctx context.Context, inputIndex, outputIndex int) StartResult {
	err := s.engine.Start(ctx, engine.Config{
		InputDeviceIndex:  inputIndex,
		OutputDeviceIndex: outputIndex,
		SampleRate:        sampleRate,
		FramesPerBuffer:   framesPerBuffer,
		TryExclusive:      tryExclusive,
	})
	if err != nil {
		return StartResult{Success: false, Error: err.Error()}
	}
	return StartResult{Success: true}
}

// Stop brings the engine back down. Always succeeds, including when
// already stopped.
func (s *Surface) Stop() SimpleResult {
	s.engine.Stop()
	return SimpleResult{Success: true}
}

// SetLevel clamps level into [0,1] and applies it.
func (s *Surface) SetLevel(level float32) SimpleResult {
	s.engine.SetSuppressionLevel(clampUnit(level))
	return SimpleResult{Success: true}
}

// SetVADThreshold clamps threshold into [0,1] and applies it.
func (s *Surface) SetVADThreshold(threshold float32) SimpleResult {
	s.engine.SetVADThreshold(clampUnit(threshold))
	return SimpleResult{Success: true}
}

// GetStatus reports whether the engine is running and the current
// suppression level.
func (s *Surface) GetStatus() Status {
	return Status{
		Running: s.engine.IsRunning(),
		Level:   s.engine.SuppressionLevel(),
	}
}

// GetMetrics returns the latest published per-frame metrics snapshot.
func (s *Surface) GetMetrics() metrics.Snapshot {
	return s.engine.Metrics()
}

// SetStatusCallback forwards engine-level status notifications (currently
// only restart exhaustion) to cb. This is not part of the external
// interface table in §6, but a host still needs some way to learn that the
// engine has gone running-but-silent after exhausting its restart
// attempts, rather than polling get_status in a tight loop.
func (s *Surface) SetStatusCallback(cb engine.StatusCallback) {
	s.engine.SetStatusCallback(cb)
}

func clampUnit(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
