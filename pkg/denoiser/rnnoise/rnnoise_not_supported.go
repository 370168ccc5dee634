//go:build !rnnoise
// +build !rnnoise

package rnnoise

import (
	"fmt"

	"github.com/MdSalmanTd/noiceguard/pkg/denoiser"
)

// Engine is unavailable in this build; New always fails so that callers
// building without the rnnoise tag get a clear error instead of a silent
// pass-through black box.
type Engine struct{}

var _ denoiser.Engine = (*Engine)(nil)

// New always fails: this build was compiled without the "rnnoise" tag.
func New() (*Engine, error) {
	return nil, fmt.Errorf("built without tag 'rnnoise'")
}

// Factory is a denoiser.Factory that always fails in this build.
func Factory() (denoiser.Engine, error) {
	return New()
}

func (e *Engine) Process(frame []float32) float32 { return 0 }
func (e *Engine) Close() error                    { return nil }
