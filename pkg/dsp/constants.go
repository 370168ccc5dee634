package dsp

// Timing constants, all expressed at the fixed 10ms/frame cadence the
// neural denoiser imposes.
const (
	// closeCoeff is the asymmetric-smoothing coefficient applied when the
	// gate is closing (target below current smooth gain).
	closeCoeff = 0.40
	// openCoeff is the asymmetric-smoothing coefficient applied when the
	// gate is opening (target above current smooth gain).
	openCoeff = 0.15
	// holdFrames is how many frames the gate stays forced open after the
	// most recent speech detection (150ms at 10ms/frame).
	holdFrames = 15
	// vadHysteresis widens the VAD threshold band the energy criterion
	// uses, preventing gate chatter right at the boundary.
	vadHysteresis = 0.12

	// calibrationFrames bounds how many qualifying noise frames use the
	// fast noise-floor EMA coefficient before switching to the slow one.
	calibrationFrames = 200
	floorAlphaFast     = 0.08
	floorAlphaSlow      = 0.005
	floorMinimum        = 0.0003
	floorFallbackThresh = 0.002

	spectralClampGateCeiling = 0.3
	spectralClampFloorFactor = 2.0
	spectralClampMinimum     = 0.0009

	comfortNoiseGateCeiling = 0.1
	comfortNoiseLevel       = 0.001
	comfortNoiseShapeCoeff  = 0.7

	int16Scale = 32767.0
)
