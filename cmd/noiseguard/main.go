package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"

	"github.com/MdSalmanTd/noiceguard/pkg/backend"
	portaudiobackend "github.com/MdSalmanTd/noiceguard/pkg/backend/portaudio"
	"github.com/MdSalmanTd/noiceguard/pkg/control"
	"github.com/MdSalmanTd/noiceguard/pkg/denoiser/rnnoise"
	"github.com/MdSalmanTd/noiceguard/pkg/engine"
)

func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	listDevices := pflag.Bool("list-devices", false, "list audio devices and exit")
	inputIndex := pflag.Int("input-device", -1, "input device index, -1 for system default")
	outputIndex := pflag.Int("output-device", -1, "output device index, -1 for system default, -2 for a muted output")
	suppressionLevel := pflag.Float32("suppression-level", 1, "dry/wet suppression level in [0,1]")
	vadThreshold := pflag.Float32("vad-threshold", 0.65, "VAD probability above which the gate opens, in [0,1]")
	comfortNoise := pflag.Bool("comfort-noise", true, "inject shaped comfort noise while the gate is closed")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.CtxWithLogger(ctx, l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	be, err := portaudiobackend.New()
	assertNoError(err)
	defer be.Close()

	if *listDevices {
		printDevices(ctx, be)
		return
	}

	// rnnoise.Factory builds a working denoiser only when built with
	// -tags rnnoise; otherwise it always fails, Start reports
	// ErrDenoiserInit and the engine refuses to start, which is the
	// correct behavior for a build that was never linked against the
	// real neural network.
	eng := engine.New(be, rnnoise.Factory)
	eng.SetSuppressionLevel(*suppressionLevel)
	eng.SetVADThreshold(*vadThreshold)
	eng.SetComfortNoiseEnabled(*comfortNoise)

	surface := control.New(be, eng)
	surface.SetStatusCallback(func(message string) {
		logger.Errorf(ctx, "engine status: %s", message)
	})

	logger.Infof(ctx, "starting engine: input=%d output=%d", *inputIndex, *outputIndex)
	startResult := surface.Start(ctx, *inputIndex, *outputIndex)
	if !startResult.Success {
		panic(fmt.Errorf("failed to start the engine: %s", startResult.Error))
	}
	defer surface.Stop()

	observability.Go(ctx, func() {
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				snap := surface.GetMetrics()
				logger.Debugf(
					ctx,
					"vad:%.2f gate:%.2f floor:%.4f in_rms:%.4f out_rms:%.4f frames:%d",
					snap.VADProbability, snap.GateGain, snap.NoiseFloor, snap.InputRMS, snap.OutputRMS, snap.FramesProcessed,
				)
			}
		}
	})

	logger.Infof(ctx, "running, press Ctrl-C to stop")
	<-ctx.Done()
	logger.Infof(ctx, "stopping")
}

func printDevices(ctx context.Context, be backend.Backend) {
	devices, err := be.EnumerateDevices(ctx)
	assertNoError(err)
	for _, d := range devices {
		fmt.Printf("[%d] %s (in:%d out:%d, default %.0f Hz)\n", d.Index, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
