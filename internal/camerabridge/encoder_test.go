package camerabridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeBuf struct{ released bool }

func (b *fakeBuf) Data() []byte        { return []byte{1, 2, 3} }
func (b *fakeBuf) Format() PixelFormat { return PixelFormatNV12 }
func (b *fakeBuf) Width() int          { return 640 }
func (b *fakeBuf) Height() int         { return 480 }
func (b *fakeBuf) Release()            { b.released = true }

type fakeEncoder struct {
	codec   Codec
	failing bool
	closed  bool
}

func (e *fakeEncoder) Codec() Codec { return e.codec }
func (e *fakeEncoder) Encode(ctx context.Context, buf PixelBuffer) (EncodedUnit, error) {
	if e.failing {
		return EncodedUnit{}, errors.New("driver fault")
	}
	return EncodedUnit{Data: buf.Data(), Keyframe: true}, nil
}
func (e *fakeEncoder) Close() error { e.closed = true; return nil }

func TestFallbackEncoderSucceedsWithoutFailures(t *testing.T) {
	enc, err := NewFallbackEncoder(func(c Codec) (FrameEncoder, error) {
		return &fakeEncoder{codec: c}, nil
	}, []Codec{CodecH264})
	require.NoError(t, err)

	unit, err := enc.Encode(context.Background(), &fakeBuf{})
	require.NoError(t, err)
	require.True(t, unit.Keyframe)
}

func TestFallbackEncoderReinitsAfterThreeConsecutiveFailures(t *testing.T) {
	reinitCount := 0
	factory := func(c Codec) (FrameEncoder, error) {
		reinitCount++
		// Only the very first construction (the encoder that will fail
		// twice before the ladder triggers) is built failing; the
		// reinit rebuilds a working one.
		return &fakeEncoder{codec: c, failing: reinitCount == 1}, nil
	}
	enc, err := NewFallbackEncoder(factory, []Codec{CodecH264})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := enc.Encode(context.Background(), &fakeBuf{})
		require.Error(t, err)
	}
	// The third consecutive failure crosses the threshold, reinitializes,
	// and its retry succeeds transparently.
	unit, err := enc.Encode(context.Background(), &fakeBuf{})
	require.NoError(t, err)
	require.True(t, unit.Keyframe)
	require.Equal(t, 2, reinitCount)
}

func TestFallbackEncoderAdvancesCodecWhenReinitFails(t *testing.T) {
	factory := func(c Codec) (FrameEncoder, error) {
		return &fakeEncoder{codec: c, failing: c == CodecH264}, nil
	}
	enc, err := NewFallbackEncoder(factory, []Codec{CodecH264, CodecAV1})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := enc.Encode(context.Background(), &fakeBuf{})
		require.Error(t, err)
	}
	// The third failure crosses the threshold; reinit keeps failing (still
	// H264), so the ladder advances to AV1 and its retry succeeds.
	unit, err := enc.Encode(context.Background(), &fakeBuf{})
	require.NoError(t, err)
	require.True(t, unit.Keyframe)
	require.Equal(t, CodecAV1, enc.Codec())
}

func TestWallClockTimestampIsLittleEndianMillis(t *testing.T) {
	ts := time.UnixMilli(0x0102030405)
	buf := WallClockTimestamp(ts)
	require.Len(t, buf, 8)
	require.Equal(t, []byte{0x05, 0x04, 0x03, 0x02, 0x01, 0, 0, 0}, buf)
}
