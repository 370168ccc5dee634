package denoiser

// Dummy is a no-op Engine: it leaves the frame untouched and reports a
// fixed VAD probability. It is used by tests and by callers that want to
// exercise the DSP chain without a real neural network, mirroring the
// teacher's noisesuppression.Dummy pattern.
type Dummy struct {
	VAD float32
}

var _ Engine = (*Dummy)(nil)

// NewDummyFactory returns a Factory that always hands back a fresh Dummy
// reporting the given VAD probability.
func NewDummyFactory(vad float32) Factory {
	return func() (Engine, error) {
		return &Dummy{VAD: vad}, nil
	}
}

func (d *Dummy) Process(frame []float32) float32 { return d.VAD }
func (d *Dummy) Close() error                    { return nil }
