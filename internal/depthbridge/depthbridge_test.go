package depthbridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalibrateFindsMinMax(t *testing.T) {
	frames := [][]uint16{
		{100, 200, 50},
		{900, 300, 1000},
	}
	c := Calibrate(frames)
	require.Equal(t, float64(50), c.MinDepthMM)
	require.Equal(t, float64(1000), c.MaxDepthMM)
}

func TestCalibrationToMillimeters(t *testing.T) {
	c := Calibration{MinDepthMM: 100, MaxDepthMM: 1100}
	require.InDelta(t, 100, c.ToMillimeters(0), 0.001)
	require.InDelta(t, 1100, c.ToMillimeters(1023), 0.001)
}

func TestOverrideCalibrationPrefersOverride(t *testing.T) {
	computed := Calibration{MinDepthMM: 0, MaxDepthMM: 1000}
	override := Calibration{MinDepthMM: 200, MaxDepthMM: 800}
	got := OverrideCalibration(computed, &override)
	require.Equal(t, override, got)

	got = OverrideCalibration(computed, nil)
	require.Equal(t, computed, got)
}

func TestMetadataRoundTrip(t *testing.T) {
	m := Metadata{FX: 600.1, FY: 600.2, PPX: 320, PPY: 240, Width: 640, Height: 480, DepthScale: 0.001}
	data, err := EncodeMetadata(m)
	require.NoError(t, err)

	got, err := DecodeMetadata(data)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestMetadataOmitsGravityWhenNil(t *testing.T) {
	m := Metadata{Width: 640, Height: 480}
	data, err := EncodeMetadata(m)
	require.NoError(t, err)
	require.NotContains(t, string(data), "gravity")
}
