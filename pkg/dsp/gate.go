package dsp

import "math"

// gateState is owned exclusively by the processing worker; nothing else
// ever touches it concurrently, so none of its fields are atomic.
type gateState struct {
	smoothGain       float32
	holdCounter      int
	noiseFloor       float32
	calibrationCount int
	comfort          comfortNoise
}

func newGateState() gateState {
	return gateState{
		smoothGain: 1,
		comfort:    newComfortNoise(),
	}
}

func (g *gateState) reset() {
	g.smoothGain = 1
	g.holdCounter = 0
	g.noiseFloor = 0
	g.calibrationCount = 0
	g.comfort = newComfortNoise()
}

// updateNoiseFloor implements the noise-floor EMA update described in
// §4.4. It is only applied to frames conservatively classified as pure
// noise (vad < vadThreshold/2); the current floor is returned either way
// so the caller can publish it to metrics unconditionally.
func (g *gateState) updateNoiseFloor(vad, vadThreshold, postRMS float32) float32 {
	if vad < vadThreshold/2 {
		alpha := float32(floorAlphaFast)
		if g.calibrationCount >= calibrationFrames {
			alpha = floorAlphaSlow
		} else {
			g.calibrationCount++
		}
		if g.noiseFloor <= 0 {
			g.noiseFloor = postRMS
		} else {
			g.noiseFloor += alpha * (postRMS - g.noiseFloor)
		}
		if g.noiseFloor < floorMinimum {
			g.noiseFloor = floorMinimum
		}
	}
	return g.noiseFloor
}

// gateTarget implements the §4.4 "Gate target" computation, advancing the
// hold counter as a side effect.
func (g *gateState) gateTarget(vad, vadThreshold, postRMS float32) float32 {
	var gateThresh float32
	if g.noiseFloor > floorMinimum {
		gateThresh = g.noiseFloor * 1.5
	} else {
		gateThresh = floorFallbackThresh
	}

	speechByVAD := vad >= vadThreshold
	speechByEnergy := vad >= vadThreshold-vadHysteresis && postRMS > 2*gateThresh

	switch {
	case speechByVAD || speechByEnergy:
		g.holdCounter = holdFrames
		return 1.0
	case g.holdCounter > 0:
		g.holdCounter--
		return 1.0
	case postRMS < gateThresh:
		return 0.0
	default:
		denom := gateThresh
		if denom < 1e-4 {
			denom = 1e-4
		}
		ratio := (postRMS - gateThresh) / denom
		return clamp(ratio, 0.0, 0.5)
	}
}

// smooth applies the asymmetric-smoothing law from §4.4 step 11 and
// returns the clamped result, also storing it as the new smoothGain.
func (g *gateState) smooth(target float32) float32 {
	coeff := float32(openCoeff)
	if target < g.smoothGain {
		coeff = closeCoeff
	}
	g.smoothGain += coeff * (target - g.smoothGain)
	g.smoothGain = clamp(g.smoothGain, 0, 1)
	return g.smoothGain
}

func clamp(v, lo, hi float32) float32 {
	return float32(math.Min(float64(hi), math.Max(float64(lo), float64(v))))
}
