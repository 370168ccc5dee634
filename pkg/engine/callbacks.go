package engine

import "github.com/MdSalmanTd/noiceguard/pkg/ring"

// captureCallback returns the real-time capture callback for one session.
// It closes over captureRing directly rather than reading it off e, so it
// never touches a field that Stop() might be mutating concurrently; the
// running flag is the only shared state it reads. It must not allocate,
// lock, or block (§5).
func (e *Engine) captureCallback(captureRing *ring.Buffer) func([]float32, bool) {
	return func(samples []float32, xrun bool) {
		if !e.running.Load() {
			return
		}
		captureRing.Write(samples)
		if xrun {
			e.shouldRestart.Store(true)
		}
	}
}

// outputCallback returns the real-time output callback for one session. If
// muted, it always emits silence regardless of what the output ring holds,
// while still draining nothing from it — the processing worker keeps
// consuming the capture ring and publishing metrics so a muted session
// looks identical to a live one from the control surface's point of view.
func (e *Engine) outputCallback(outputRing *ring.Buffer, muted bool) func([]float32, bool) {
	return func(out []float32, xrun bool) {
		if !e.running.Load() || muted {
			zero(out)
			return
		}
		n := outputRing.Read(out)
		if n < len(out) {
			zero(out[n:])
		}
		if xrun {
			e.shouldRestart.Store(true)
		}
	}
}

func zero(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}
