package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"

	"github.com/MdSalmanTd/noiceguard/pkg/dsp"
)

const restartMaxAttempts = 5

// restartBackoff is the exponential backoff schedule between restart
// attempts (§7): 100, 200, 400, 800, 1600 ms.
var restartBackoff = [restartMaxAttempts]time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
	1600 * time.Millisecond,
}

// processingLoop drains the capture ring in FrameSize chunks, runs each
// frame through the DSP processor, and writes the result to the output
// ring, until ctx is cancelled or an xrun flags a restart. It allocates
// its scratch frame once, up front; each idle sleep allocates a timer.
func (e *Engine) processingLoop(ctx context.Context, session *runningSession) {
	frame := make([]float32, dsp.FrameSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if e.shouldRestart.CompareAndSwap(true, false) {
			e.restart(ctx, session)
			return
		}

		if session.captureRing.Readable() >= dsp.FrameSize {
			session.captureRing.Read(frame)
			session.processor.ProcessFrame(frame)
			session.outputRing.Write(frame)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(idleWorkerSleep):
		}
	}
}

// restart runs the exponential-backoff reconnection sequence after an
// xrun: it tears down oldSession itself (it is running inside oldSession's
// own worker goroutine, so it must not wait on oldSession.workerDone — that
// would deadlock) and repeatedly tries to open a fresh one against the
// same Config. After restartMaxAttempts failures it gives up without
// reopening a session, but leaves the engine Running rather than Stopped
// (§4.6: "remains Running but silent"), notifying the status callback
// instead. It aborts immediately without reopening anything if Stop()
// runs concurrently.
func (e *Engine) restart(ctx context.Context, oldSession *runningSession) {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = StateRestarting
	e.session = nil
	cfg := e.cfg
	e.mu.Unlock()

	logger.Warnf(ctx, "engine: xrun detected, restarting")
	if err := closeSessionResources(oldSession); err != nil {
		logger.Debugf(ctx, "engine: error tearing down session before restart: %v", err)
	}

	var lastErr error
	for attempt := 0; attempt < restartMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			e.abortRestart()
			return
		case <-time.After(restartBackoff[attempt]):
		}

		if !e.stillRestarting() {
			return
		}

		session, err := e.openSession(ctx, cfg)
		if err != nil {
			lastErr = err
			logger.Warnf(ctx, "engine: restart attempt %d/%d failed: %v", attempt+1, restartMaxAttempts, err)
			continue
		}

		e.mu.Lock()
		if e.state != StateRestarting {
			e.mu.Unlock()
			closeSessionResources(session)
			return
		}
		e.session = session
		e.state = StateRunning
		e.mu.Unlock()

		e.startWorker(ctx, session)
		logger.Infof(ctx, "engine: restart succeeded after %d attempt(s)", attempt+1)
		return
	}

	logger.Errorf(ctx, "engine: exhausted %d restart attempts, going silent: %v", restartMaxAttempts, lastErr)
	e.mu.Lock()
	if e.state == StateRestarting {
		e.state = StateRunning
	}
	e.mu.Unlock()
	e.notifyStatus(fmt.Sprintf("restart failed after %d attempts, engine running silent: %v", restartMaxAttempts, lastErr))
}

func (e *Engine) stillRestarting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateRestarting
}

func (e *Engine) abortRestart() {
	e.mu.Lock()
	if e.state == StateRestarting {
		e.state = StateStopped
	}
	e.mu.Unlock()
}
