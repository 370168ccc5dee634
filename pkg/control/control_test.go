package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MdSalmanTd/noiceguard/pkg/backend"
	"github.com/MdSalmanTd/noiceguard/pkg/denoiser"
	"github.com/MdSalmanTd/noiceguard/pkg/engine"
)

type fakeStream struct{}

func (fakeStream) Start() error { return nil }
func (fakeStream) Stop() error  { return nil }
func (fakeStream) Close() error { return nil }

type fakeBackend struct {
	devices []backend.Device
}

var _ backend.Backend = (*fakeBackend)(nil)

func (b *fakeBackend) EnumerateDevices(ctx context.Context) ([]backend.Device, error) {
	return b.devices, nil
}

func (b *fakeBackend) OpenInputStream(ctx context.Context, cfg backend.StreamConfig, cb backend.InputCallback) (backend.Stream, error) {
	return fakeStream{}, nil
}

func (b *fakeBackend) OpenOutputStream(ctx context.Context, cfg backend.StreamConfig, cb backend.OutputCallback) (backend.Stream, error) {
	return fakeStream{}, nil
}

func (b *fakeBackend) Close() error { return nil }

func newTestSurface() *Surface {
	be := &fakeBackend{
		devices: []backend.Device{
			{Index: 0, Name: "Built-in Mic", MaxInputChannels: 1, MaxOutputChannels: 0, DefaultSampleRate: 48000},
			{Index: 1, Name: "Built-in Speakers", MaxInputChannels: 0, MaxOutputChannels: 2, DefaultSampleRate: 48000},
		},
	}
	eng := engine.New(be, denoiser.NewDummyFactory(0.1))
	return New(be, eng)
}

func TestGetDevicesSplitsInputsAndOutputs(t *testing.T) {
	s := newTestSurface()
	devices, err := s.GetDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices.Inputs, 1)
	require.Len(t, devices.Outputs, 1)
	assert.Equal(t, "Built-in Mic", devices.Inputs[0].Name)
	assert.Equal(t, "Built-in Speakers", devices.Outputs[0].Name)
}

func TestStartStopRoundTrip(t *testing.T) {
	s := newTestSurface()

	result := s.Start(context.Background(), -1, -1)
	assert.True(t, result.Success)
	assert.Empty(t, result.Error)
	assert.True(t, s.GetStatus().Running)

	stopResult := s.Stop()
	assert.True(t, stopResult.Success)
	assert.False(t, s.GetStatus().Running)
}

func TestStopWithoutStartSucceeds(t *testing.T) {
	s := newTestSurface()
	assert.True(t, s.Stop().Success)
}

func TestStartTwiceReportsFailure(t *testing.T) {
	s := newTestSurface()
	require.True(t, s.Start(context.Background(), -1, -1).Success)
	defer s.Stop()

	result := s.Start(context.Background(), -1, -1)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestSetLevelClampsOutOfRangeValues(t *testing.T) {
	s := newTestSurface()
	assert.True(t, s.SetLevel(5).Success)
	assert.Equal(t, float32(1), s.GetStatus().Level)

	assert.True(t, s.SetLevel(-5).Success)
	assert.Equal(t, float32(0), s.GetStatus().Level)
}

func TestSetVADThresholdClampsOutOfRangeValues(t *testing.T) {
	s := newTestSurface()
	assert.True(t, s.SetVADThreshold(2).Success)
	assert.Equal(t, float32(1), s.engine.VADThreshold())

	assert.True(t, s.SetVADThreshold(-1).Success)
	assert.Equal(t, float32(0), s.engine.VADThreshold())
}

func TestGetMetricsReflectsStoppedEngine(t *testing.T) {
	s := newTestSurface()
	snap := s.GetMetrics()
	assert.Equal(t, uint64(0), snap.FramesProcessed)
}
