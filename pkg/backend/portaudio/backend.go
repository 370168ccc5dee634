// Package portaudio adapts github.com/gordonklaus/portaudio to the
// backend.Backend interface. It is grounded in the teacher's
// pkg/audio/backends/portaudio package, but where the teacher opens
// streams in blocking Read()/Write() mode, this package opens them in
// callback mode: the engine's real-time contract (§4.6, §5) forbids the
// blocking syscalls that Read()/Write() perform on the audio thread.
package portaudio

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"

	"github.com/MdSalmanTd/noiceguard/pkg/backend"
)

// Backend owns one PortAudio library initialization.
type Backend struct {
	initialized bool
}

var _ backend.Backend = (*Backend)(nil)

// New initializes PortAudio.
func New() (*Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio.Initialize: %w", err)
	}
	return &Backend{initialized: true}, nil
}

// Close terminates PortAudio. Idempotent.
func (b *Backend) Close() error {
	if !b.initialized {
		return nil
	}
	b.initialized = false
	return portaudio.Terminate()
}

// EnumerateDevices lists every device PortAudio knows about, safe at any
// time: it initializes and tears down its own PortAudio handle so it
// never interferes with a Backend that is already running streams.
func (b *Backend) EnumerateDevices(ctx context.Context) ([]backend.Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio.Initialize: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio.Devices: %w", err)
	}

	out := make([]backend.Device, 0, len(devices))
	for i, d := range devices {
		if d == nil {
			continue
		}
		logger.Tracef(ctx, "device[%d]: %#+v", i, d)
		out = append(out, backend.Device{
			Index:             d.Index,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return out, nil
}

func resolveInputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", backend.ErrDeviceNotFound, err)
		}
		return device, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("%w: no input device at index %d", backend.ErrDeviceNotFound, index)
	}
	return devices[index], nil
}

func resolveOutputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		device, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", backend.ErrDeviceNotFound, err)
		}
		return device, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("%w: no output device at index %d", backend.ErrDeviceNotFound, index)
	}
	return devices[index], nil
}

// OpenInputStream opens a mono, float32, callback-driven, input-only
// stream. If cfg.TryExclusive is set and the platform offers a low-latency
// exclusive-mode hint, it is attempted once and silently dropped on
// failure (§4.6, §9 "capability probe, not a correctness requirement").
func (b *Backend) OpenInputStream(ctx context.Context, cfg backend.StreamConfig, cb backend.InputCallback) (backend.Stream, error) {
	device, err := resolveInputDevice(cfg.DeviceIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving input device: %w", err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}

	callback := func(in, _ []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		xrun := flags&(portaudio.InputUnderflow|portaudio.InputOverflow) != 0
		cb(in, xrun)
	}

	stream, err := openWithExclusiveFallback(ctx, params, cfg.TryExclusive, callback)
	if err != nil {
		return nil, fmt.Errorf("opening input stream: %w", err)
	}
	return &paStream{stream: stream}, nil
}

// OpenOutputStream opens a mono, float32, callback-driven, output-only
// stream.
func (b *Backend) OpenOutputStream(ctx context.Context, cfg backend.StreamConfig, cb backend.OutputCallback) (backend.Stream, error) {
	device, err := resolveOutputDevice(cfg.DeviceIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving output device: %w", err)
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowOutputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}

	callback := func(_, out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		xrun := flags&(portaudio.OutputUnderflow|portaudio.OutputOverflow) != 0
		cb(out, xrun)
	}

	stream, err := openWithExclusiveFallback(ctx, params, cfg.TryExclusive, callback)
	if err != nil {
		return nil, fmt.Errorf("opening output stream: %w", err)
	}
	return &paStream{stream: stream}, nil
}

// openWithExclusiveFallback attempts the exclusive-mode hint (if any is
// registered for this platform and the caller asked for it), then retries
// once in plain shared mode on failure.
func openWithExclusiveFallback(ctx context.Context, params portaudio.StreamParameters, tryExclusive bool, callback interface{}) (*portaudio.Stream, error) {
	if tryExclusive {
		hinted := params
		if applyExclusiveHint(&hinted) {
			stream, err := portaudio.OpenStream(hinted, callback)
			if err == nil {
				return stream, nil
			}
			logger.Debugf(ctx, "exclusive-mode stream open failed, falling back to shared mode: %v", err)
		}
	}
	return portaudio.OpenStream(params, callback)
}

type paStream struct {
	stream *portaudio.Stream
}

func (s *paStream) Start() error { return s.stream.Start() }
func (s *paStream) Stop() error  { return s.stream.Stop() }
func (s *paStream) Close() error { return s.stream.Close() }
