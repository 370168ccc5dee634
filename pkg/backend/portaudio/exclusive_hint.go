package portaudio

import "github.com/gordonklaus/portaudio"

// applyExclusiveHint mutates params in place to request a low-latency
// exclusive/pro-audio mode where the platform offers one, and reports
// whether it did so. The generic gordonklaus/portaudio binding this
// package wraps does not expose host-API-specific stream info (e.g.
// WASAPI's exclusive-mode flags on Windows); on platforms without such a
// hook this is a no-op and the caller skips straight to the ordinary
// shared-mode open, exactly as §9 describes for "platforms without such a
// mode".
func applyExclusiveHint(params *portaudio.StreamParameters) bool {
	return false
}
