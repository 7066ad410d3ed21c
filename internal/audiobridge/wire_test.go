package audiobridge

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := Frame{
			SampleRate:   rapid.Uint32Range(8000, 192000).Draw(t, "sample_rate"),
			Channels:     rapid.Uint16Range(1, 8).Draw(t, "channels"),
			SampleFormat: uint16(rapid.IntRange(0, 1).Draw(t, "format")),
			FrameCount:   rapid.Uint32Range(0, 4096).Draw(t, "frame_count"),
			TimestampUs:  rapid.Uint32Range(0, 1<<31).Draw(t, "timestamp_us"),
			Data:         rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "data"),
		}
		buf := EncodeFrame(f)
		got, err := DecodeFrame(buf)
		require.NoError(t, err)
		require.Equal(t, f, got)
	})
}

func TestDecodeFrameRejectsShortBuffer(t *testing.T) {
	_, err := DecodeFrame(make([]byte, 10))
	require.Error(t, err)
}

func TestDecodeFrameRejectsTruncatedPayload(t *testing.T) {
	buf := EncodeFrame(Frame{Data: []byte{1, 2, 3, 4}})
	_, err := DecodeFrame(buf[:len(buf)-1])
	require.Error(t, err)
}

func TestEncodeFrameHeaderLayout(t *testing.T) {
	buf := EncodeFrame(Frame{SampleRate: 48000, Channels: 2, SampleFormat: SampleFormatS16LE, Data: []byte{0xAA, 0xBB}})
	require.Len(t, buf, headerSize+2)
	require.Equal(t, []byte{0xAA, 0xBB}, buf[headerSize:])
}
