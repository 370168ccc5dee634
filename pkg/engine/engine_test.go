package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MdSalmanTd/noiceguard/pkg/backend"
	"github.com/MdSalmanTd/noiceguard/pkg/denoiser"
	"github.com/MdSalmanTd/noiceguard/pkg/dsp"
)

type fakeStream struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	closeErr error
	started  bool
	closed   bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return s.stopErr
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeBackend is an in-memory backend.Backend: it never touches real audio
// hardware. Test code drives its stored callbacks directly to stand in for
// the real-time thread.
type fakeBackend struct {
	mu sync.Mutex

	openInputErr    error
	openOutputErr   error
	inputStartErr   error
	failInputFrom   int // if > 0, the Nth-and-later OpenInputStream call fails
	openInputCount  int
	openOutputCount int

	inputCb  backend.InputCallback
	outputCb backend.OutputCallback

	inputStream  *fakeStream
	outputStream *fakeStream
}

var _ backend.Backend = (*fakeBackend)(nil)

func (b *fakeBackend) EnumerateDevices(ctx context.Context) ([]backend.Device, error) {
	return nil, nil
}

func (b *fakeBackend) OpenInputStream(ctx context.Context, cfg backend.StreamConfig, cb backend.InputCallback) (backend.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openInputCount++
	if b.openInputErr != nil {
		return nil, b.openInputErr
	}
	if b.failInputFrom > 0 && b.openInputCount >= b.failInputFrom {
		return nil, errors.New("fake: input device vanished")
	}
	s := &fakeStream{startErr: b.inputStartErr}
	b.inputCb = cb
	b.inputStream = s
	return s, nil
}

func (b *fakeBackend) OpenOutputStream(ctx context.Context, cfg backend.StreamConfig, cb backend.OutputCallback) (backend.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openOutputCount++
	if b.openOutputErr != nil {
		return nil, b.openOutputErr
	}
	s := &fakeStream{}
	b.outputCb = cb
	b.outputStream = s
	return s, nil
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) pushCapture(samples []float32, xrun bool) {
	b.mu.Lock()
	cb := b.inputCb
	b.mu.Unlock()
	cb(samples, xrun)
}

func (b *fakeBackend) pullOutput(out []float32, xrun bool) {
	b.mu.Lock()
	cb := b.outputCb
	b.mu.Unlock()
	cb(out, xrun)
}

func (b *fakeBackend) inputOpens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openInputCount
}

func (b *fakeBackend) currentInputStream() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputStream
}

func (b *fakeBackend) currentOutputStream() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputStream
}

func testConfig() Config {
	return Config{
		InputDeviceIndex:  -1,
		OutputDeviceIndex: -1,
		SampleRate:        48000,
		FramesPerBuffer:   dsp.FrameSize,
	}
}

func failingDenoiserFactory(err error) denoiser.Factory {
	return func() (denoiser.Engine, error) { return nil, err }
}

func TestStartRunStop(t *testing.T) {
	fb := &fakeBackend{}
	e := New(fb, denoiser.NewDummyFactory(0.1))

	require.NoError(t, e.Start(context.Background(), testConfig()))
	assert.True(t, e.IsRunning())
	assert.Equal(t, StateRunning, e.State())

	fb.pushCapture(make([]float32, dsp.FrameSize), false)
	require.Eventually(t, func() bool {
		return e.Metrics().FramesProcessed > 0
	}, time.Second, time.Millisecond)

	require.NoError(t, e.Stop())
	assert.False(t, e.IsRunning())
	assert.Equal(t, StateStopped, e.State())
	assert.True(t, fb.currentInputStream().isClosed())
	assert.True(t, fb.currentOutputStream().isClosed())
}

func TestMetricsResetOnFreshStart(t *testing.T) {
	fb := &fakeBackend{}
	e := New(fb, denoiser.NewDummyFactory(0.1))

	require.NoError(t, e.Start(context.Background(), testConfig()))
	fb.pushCapture(make([]float32, dsp.FrameSize), false)
	require.Eventually(t, func() bool {
		return e.Metrics().FramesProcessed > 0
	}, time.Second, time.Millisecond)
	require.NoError(t, e.Stop())

	require.NoError(t, e.Start(context.Background(), testConfig()))
	defer e.Stop()
	assert.Equal(t, uint64(0), e.Metrics().FramesProcessed, "a fresh start must begin from frames_processed = 0 (§8)")
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	fb := &fakeBackend{}
	e := New(fb, denoiser.NewDummyFactory(0.1))

	require.NoError(t, e.Start(context.Background(), testConfig()))
	defer e.Stop()

	err := e.Start(context.Background(), testConfig())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	fb := &fakeBackend{}
	e := New(fb, denoiser.NewDummyFactory(0.1))
	assert.NoError(t, e.Stop())
	assert.Equal(t, StateStopped, e.State())
}

func TestStartNoDeviceError(t *testing.T) {
	fb := &fakeBackend{openInputErr: fmt.Errorf("%w: no such device", backend.ErrDeviceNotFound)}
	e := New(fb, denoiser.NewDummyFactory(0.1))

	err := e.Start(context.Background(), testConfig())
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.Equal(t, StateStopped, e.State())
}

func TestStartDenoiserInitFailure(t *testing.T) {
	fb := &fakeBackend{}
	e := New(fb, failingDenoiserFactory(errors.New("network unavailable")))

	err := e.Start(context.Background(), testConfig())
	assert.ErrorIs(t, err, ErrDenoiserInit)
	assert.Equal(t, StateStopped, e.State())
}

func TestStartStreamStartFailure(t *testing.T) {
	fb := &fakeBackend{inputStartErr: errors.New("device busy")}
	e := New(fb, denoiser.NewDummyFactory(0.1))

	err := e.Start(context.Background(), testConfig())
	assert.ErrorIs(t, err, ErrStreamStart)
	assert.Equal(t, StateStopped, e.State())
}

func TestMutedOutputAlwaysZeroFills(t *testing.T) {
	fb := &fakeBackend{}
	e := New(fb, denoiser.NewDummyFactory(0.1))

	cfg := testConfig()
	cfg.OutputDeviceIndex = -2
	require.NoError(t, e.Start(context.Background(), cfg))
	defer e.Stop()

	fb.pushCapture(make([]float32, dsp.FrameSize), false)
	require.Eventually(t, func() bool {
		return e.Metrics().FramesProcessed > 0
	}, time.Second, time.Millisecond)

	out := make([]float32, dsp.FrameSize)
	for i := range out {
		out[i] = 1
	}
	fb.pullOutput(out, false)
	for i, v := range out {
		assert.Equal(t, float32(0), v, "sample %d should have been zeroed", i)
	}
}

func TestControlParametersPersistAcrossRestartCycle(t *testing.T) {
	fb := &fakeBackend{}
	e := New(fb, denoiser.NewDummyFactory(0.1))

	e.SetSuppressionLevel(0.3)
	e.SetVADThreshold(0.8)
	e.SetComfortNoiseEnabled(false)

	require.NoError(t, e.Start(context.Background(), testConfig()))
	assert.Equal(t, float32(0.3), e.currentProcessor().SuppressionLevel())
	assert.Equal(t, float32(0.8), e.currentProcessor().VADThreshold())
	assert.False(t, e.currentProcessor().ComfortNoiseEnabled())
	require.NoError(t, e.Stop())

	assert.Equal(t, float32(0.3), e.SuppressionLevel())
	assert.Equal(t, float32(0.8), e.VADThreshold())
}

func TestXrunTriggersRestartAndReopensStreams(t *testing.T) {
	fb := &fakeBackend{}
	e := New(fb, denoiser.NewDummyFactory(0.1))

	require.NoError(t, e.Start(context.Background(), testConfig()))
	defer e.Stop()

	require.Equal(t, 1, fb.inputOpens())
	fb.pushCapture(make([]float32, dsp.FrameSize), true)

	require.Eventually(t, func() bool {
		return fb.inputOpens() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return e.State() == StateRunning
	}, time.Second, 5*time.Millisecond)
}

func TestRestartExhaustionStaysRunningSilentlyAndNotifies(t *testing.T) {
	fb := &fakeBackend{failInputFrom: 2}
	e := New(fb, denoiser.NewDummyFactory(0.1))

	var statusMu sync.Mutex
	var lastStatus string
	e.SetStatusCallback(func(msg string) {
		statusMu.Lock()
		lastStatus = msg
		statusMu.Unlock()
	})

	require.NoError(t, e.Start(context.Background(), testConfig()))
	fb.pushCapture(make([]float32, dsp.FrameSize), true)

	require.Eventually(t, func() bool {
		statusMu.Lock()
		defer statusMu.Unlock()
		return lastStatus != ""
	}, 10*time.Second, 10*time.Millisecond)

	// §4.6: exhausting every restart attempt leaves the engine Running but
	// silent, not Stopped — only the status callback fires.
	assert.True(t, e.IsRunning())
	assert.Equal(t, StateRunning, e.State())
	statusMu.Lock()
	assert.Contains(t, lastStatus, "restart failed")
	statusMu.Unlock()
}

func TestStopAbortsAnInFlightRestartBackoff(t *testing.T) {
	fb := &fakeBackend{failInputFrom: 2}
	e := New(fb, denoiser.NewDummyFactory(0.1))

	require.NoError(t, e.Start(context.Background(), testConfig()))
	fb.pushCapture(make([]float32, dsp.FrameSize), true)

	require.Eventually(t, func() bool {
		return e.State() == StateRestarting
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, e.Stop())
	assert.Equal(t, StateStopped, e.State())
	assert.False(t, e.IsRunning())
}
