// Package depthbridge specializes camerabridge for depth sensors (10-bit
// grayscale depth, monochrome AV1): video, depth, and metadata tracks
// published independently under one broadcast path, plus startup
// auto-calibration of the luma-to-millimeters mapping.
package depthbridge

// calibrationReadAheadFrames is how many startup frames are read before
// computing min/max depth, avoiding sensor warm-up noise in the first
// frame.
const calibrationReadAheadFrames = 30

// Calibration is the linear mapping from 10-bit luma to millimeters,
// either computed from a startup read-ahead or supplied as an operator
// override.
type Calibration struct {
	MinDepthMM float64
	MaxDepthMM float64
}

// ToMillimeters maps a 10-bit luma sample (0-1023) to millimeters under
// this calibration.
func (c Calibration) ToMillimeters(luma uint16) float64 {
	frac := float64(luma) / 1023.0
	return c.MinDepthMM + frac*(c.MaxDepthMM-c.MinDepthMM)
}

// Calibrate computes min/max depth in mm from a read-ahead of raw 10-bit
// luma frames, each a flat slice of per-pixel samples.
func Calibrate(frames [][]uint16) Calibration {
	min, max := uint16(1023), uint16(0)
	for _, frame := range frames {
		for _, luma := range frame {
			if luma < min {
				min = luma
			}
			if luma > max {
				max = luma
			}
		}
	}
	return Calibration{MinDepthMM: float64(min), MaxDepthMM: float64(max)}
}

// OverrideCalibration lets an operator-supplied config value win over the
// computed read-ahead result.
func OverrideCalibration(computed Calibration, override *Calibration) Calibration {
	if override != nil {
		return *override
	}
	return computed
}
