// Package engine implements the audio engine (C6): the state machine that
// owns the capture/output ring buffers, the DSP processor, and a pair of
// real-time audio streams opened against a backend.Backend, plus the
// exponential-backoff restart logic that reacts to backend-reported xruns.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"

	"github.com/MdSalmanTd/noiceguard/pkg/backend"
	"github.com/MdSalmanTd/noiceguard/pkg/denoiser"
	"github.com/MdSalmanTd/noiceguard/pkg/dsp"
	"github.com/MdSalmanTd/noiceguard/pkg/metrics"
	"github.com/MdSalmanTd/noiceguard/pkg/ring"
)

const (
	captureRingCapacity = 4096
	outputRingCapacity  = 4096

	// muteOutputDeviceIndex is the sentinel Config.OutputDeviceIndex value
	// that means "open the default output device but always emit silence,
	// while processing keeps running so metrics stay live" (§6).
	muteOutputDeviceIndex = -2

	idleWorkerSleep = 500 * time.Microsecond
)

// Config configures one Start() call.
type Config struct {
	InputDeviceIndex  int // -1 = default input device
	OutputDeviceIndex int // -1 = default output device, -2 = muted output
	SampleRate        float64
	FramesPerBuffer   int
	TryExclusive      bool
}

// StatusCallback is notified of engine-level events not represented in the
// polled metrics/status surface, currently only restart exhaustion.
type StatusCallback func(message string)

// runningSession bundles everything that exists only while the engine is
// Running or Restarting. It never outlives one Start()/Stop() cycle.
type runningSession struct {
	captureRing  *ring.Buffer
	outputRing   *ring.Buffer
	processor    *dsp.Processor
	inputStream  backend.Stream
	outputStream backend.Stream
	workerDone   chan struct{}
	muted        bool
}

// Engine is the audio engine (C6). The zero value is not usable; construct
// with New.
type Engine struct {
	backend         backend.Backend
	denoiserFactory denoiser.Factory
	metrics         *metrics.Registers

	mu             sync.Mutex
	state          State
	cfg            Config
	rootCancel     context.CancelFunc
	session        *runningSession
	statusCallback StatusCallback

	// running is the fast-path flag the real-time capture/output callbacks
	// consult. It is set before streams start and cleared before they stop,
	// so by the time Stop() tears down the session no callback can be
	// observing session fields concurrently with the teardown.
	running atomic.Bool

	// shouldRestart is set by either real-time callback on an xrun and
	// consumed by the processing worker, matching the single-writer(s)/
	// single-reader shape of the ring buffers themselves (§5).
	shouldRestart atomic.Bool

	// Control parameters (§6) persist across Start/Stop cycles and are the
	// source of truth; whatever Processor is live gets pushed the current
	// value on every set and on every (re)start.
	suppressionLevel    atomic.Uint32 // float32 bits, [0,1]
	vadThreshold        atomic.Uint32 // float32 bits, [0,1]
	comfortNoiseEnabled atomic.Bool
}

// New constructs an Engine bound to be, which must already be initialized,
// and denoiserFactory, which constructs one neural denoiser instance per
// call. The engine does not own be's lifetime; the caller closes it.
func New(be backend.Backend, denoiserFactory denoiser.Factory) *Engine {
	e := &Engine{
		backend:         be,
		denoiserFactory: denoiserFactory,
		metrics:         &metrics.Registers{},
	}
	e.metrics.Reset()
	e.SetSuppressionLevel(1)
	e.SetVADThreshold(0.65)
	e.SetComfortNoiseEnabled(true)
	return e
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsRunning reports whether the engine is actively processing audio. It is
// true during StateRunning and StateRestarting.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Metrics returns the latest published metrics snapshot. Safe to call at
// any time, including while stopped, in which case it reflects the last
// run's final values.
func (e *Engine) Metrics() metrics.Snapshot {
	return e.metrics.Read()
}

// SetStatusCallback registers a callback for engine-level status events.
// Passing nil clears it.
func (e *Engine) SetStatusCallback(cb StatusCallback) {
	e.mu.Lock()
	e.statusCallback = cb
	e.mu.Unlock()
}

func (e *Engine) notifyStatus(msg string) {
	e.mu.Lock()
	cb := e.statusCallback
	e.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
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

func (e *Engine) currentProcessor() *dsp.Processor {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.processor
}

// SetSuppressionLevel clamps and applies the dry/wet suppression level,
// live if the engine is running.
func (e *Engine) SetSuppressionLevel(level float32) {
	level = clampUnit(level)
	e.suppressionLevel.Store(math.Float32bits(level))
	if proc := e.currentProcessor(); proc != nil {
		proc.SetSuppressionLevel(level)
	}
}

// SuppressionLevel returns the currently configured suppression level.
func (e *Engine) SuppressionLevel() float32 {
	return math.Float32frombits(e.suppressionLevel.Load())
}

// SetVADThreshold clamps and applies the gate-opening VAD threshold, live
// if the engine is running.
func (e *Engine) SetVADThreshold(threshold float32) {
	threshold = clampUnit(threshold)
	e.vadThreshold.Store(math.Float32bits(threshold))
	if proc := e.currentProcessor(); proc != nil {
		proc.SetVADThreshold(threshold)
	}
}

// VADThreshold returns the currently configured VAD threshold.
func (e *Engine) VADThreshold() float32 {
	return math.Float32frombits(e.vadThreshold.Load())
}

// SetComfortNoiseEnabled toggles comfort-noise injection, live if the
// engine is running.
func (e *Engine) SetComfortNoiseEnabled(enabled bool) {
	e.comfortNoiseEnabled.Store(enabled)
	if proc := e.currentProcessor(); proc != nil {
		proc.SetComfortNoiseEnabled(enabled)
	}
}

// ComfortNoiseEnabled reports whether comfort-noise injection is on.
func (e *Engine) ComfortNoiseEnabled() bool {
	return e.comfortNoiseEnabled.Load()
}

// Start brings the engine from Stopped to Running: it builds a fresh DSP
// processor and pair of ring buffers, opens capture and output streams
// against cfg's devices, and launches the processing worker. It returns
// one of the sentinel errors in errors.go (wrapped with detail) on
// failure, and leaves the engine Stopped in that case.
func (e *Engine) Start(ctx context.Context, cfg Config) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.state = StateStarting
	e.cfg = cfg
	e.mu.Unlock()

	logger.Debugf(ctx, "engine: starting, input=%d output=%d rate=%v", cfg.InputDeviceIndex, cfg.OutputDeviceIndex, cfg.SampleRate)

	// §8 "Reset after stop/start": a fresh Start always begins from
	// frames_processed = 0, regardless of what the previous run left behind.
	e.metrics.Reset()

	rootCtx, rootCancel := context.WithCancel(ctx)
	e.running.Store(true)
	e.shouldRestart.Store(false)

	session, err := e.openSession(rootCtx, cfg)
	if err != nil {
		rootCancel()
		e.running.Store(false)
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
		return err
	}

	e.startWorker(rootCtx, session)

	e.mu.Lock()
	e.rootCancel = rootCancel
	e.session = session
	e.state = StateRunning
	e.mu.Unlock()

	logger.Debugf(ctx, "engine: running")
	return nil
}

// startWorker spawns the processing worker for session and records its
// completion channel on the session itself.
func (e *Engine) startWorker(ctx context.Context, session *runningSession) {
	session.workerDone = make(chan struct{})
	observability.Go(ctx, func() {
		defer close(session.workerDone)
		e.processingLoop(ctx, session)
	})
}

// openSession does the actual device/stream/processor setup shared by
// Start and the restart path. On any failure it unwinds whatever it
// already allocated.
func (e *Engine) openSession(ctx context.Context, cfg Config) (_ *runningSession, _err error) {
	adapter, err := denoiser.New(e.denoiserFactory)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDenoiserInit, err)
	}
	defer func() {
		if _err != nil {
			adapter.Close()
		}
	}()

	proc := dsp.New(adapter, e.metrics)
	proc.SetSuppressionLevel(e.SuppressionLevel())
	proc.SetVADThreshold(e.VADThreshold())
	proc.SetComfortNoiseEnabled(e.ComfortNoiseEnabled())

	captureRing := ring.New(captureRingCapacity)
	outputRing := ring.New(outputRingCapacity)

	muted := cfg.OutputDeviceIndex == muteOutputDeviceIndex
	outputDeviceIndex := cfg.OutputDeviceIndex
	if muted {
		outputDeviceIndex = -1
	}

	inCfg := backend.StreamConfig{
		DeviceIndex:     cfg.InputDeviceIndex,
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
		TryExclusive:    cfg.TryExclusive,
	}
	inputStream, err := e.backend.OpenInputStream(ctx, inCfg, e.captureCallback(captureRing))
	if err != nil {
		return nil, wrapStreamOpenErr(err)
	}
	defer func() {
		if _err != nil {
			inputStream.Close()
		}
	}()

	outCfg := backend.StreamConfig{
		DeviceIndex:     outputDeviceIndex,
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
		TryExclusive:    cfg.TryExclusive,
	}
	outputStream, err := e.backend.OpenOutputStream(ctx, outCfg, e.outputCallback(outputRing, muted))
	if err != nil {
		return nil, wrapStreamOpenErr(err)
	}
	defer func() {
		if _err != nil {
			outputStream.Close()
		}
	}()

	if err := inputStream.Start(); err != nil {
		return nil, fmt.Errorf("%w: input stream: %v", ErrStreamStart, err)
	}
	if err := outputStream.Start(); err != nil {
		inputStream.Stop()
		return nil, fmt.Errorf("%w: output stream: %v", ErrStreamStart, err)
	}

	return &runningSession{
		captureRing:  captureRing,
		outputRing:   outputRing,
		processor:    proc,
		inputStream:  inputStream,
		outputStream: outputStream,
		muted:        muted,
	}, nil
}

func wrapStreamOpenErr(err error) error {
	if errors.Is(err, backend.ErrDeviceNotFound) {
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return fmt.Errorf("%w: %v", ErrStreamOpen, err)
}

// Stop brings the engine from Running (or Restarting) back to Stopped. It
// is idempotent: calling it when already Stopped is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopping
	session := e.session
	e.session = nil
	rootCancel := e.rootCancel
	e.mu.Unlock()

	e.running.Store(false)
	if rootCancel != nil {
		rootCancel()
	}
	err := e.teardownSession(session)

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	return err
}

// teardownSession waits for session's worker to exit, then releases its
// streams and denoiser. Only Stop() calls this: it is the only caller that
// is never itself the worker goroutine it would be waiting on. A nil
// session (e.g. Stop() racing a restart between tearing its old session
// down and installing a new one) is a no-op.
func (e *Engine) teardownSession(session *runningSession) error {
	if session == nil {
		return nil
	}
	if session.workerDone != nil {
		<-session.workerDone
	}
	return closeSessionResources(session)
}

// closeSessionResources stops and closes session's streams and denoiser,
// without waiting for its worker. The restart path calls this directly
// from inside that very worker goroutine, where waiting for workerDone
// would deadlock.
func closeSessionResources(session *runningSession) error {
	var result *multierror.Error
	if err := session.inputStream.Stop(); err != nil {
		result = multierror.Append(result, fmt.Errorf("stopping input stream: %w", err))
	}
	if err := session.inputStream.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing input stream: %w", err))
	}
	if err := session.outputStream.Stop(); err != nil {
		result = multierror.Append(result, fmt.Errorf("stopping output stream: %w", err))
	}
	if err := session.outputStream.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing output stream: %w", err))
	}
	if err := session.processor.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing denoiser: %w", err))
	}
	return result.ErrorOrNil()
}
