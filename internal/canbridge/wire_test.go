package canbridge

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := Frame{
			ID:       rapid.Uint32Range(0, 0x1FFFFFFF).Draw(t, "id"),
			Extended: rapid.Bool().Draw(t, "extended"),
			FD:       rapid.Bool().Draw(t, "fd"),
			BRS:      rapid.Bool().Draw(t, "brs"),
			ESI:      rapid.Bool().Draw(t, "esi"),
			Data:     rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "data"),
		}
		buf, err := EncodeFrame(f)
		require.NoError(t, err)

		got, err := DecodeFrame(buf)
		require.NoError(t, err)
		require.Equal(t, f.ID, got.ID)
		require.Equal(t, f.Extended, got.Extended)
		require.Equal(t, f.FD, got.FD)
		require.Equal(t, f.BRS, got.BRS)
		require.Equal(t, f.ESI, got.ESI)
		require.Equal(t, f.Data, got.Data)
	})
}

func TestEncodeFrameRejectsOversizeData(t *testing.T) {
	_, err := EncodeFrame(Frame{Data: make([]byte, 65)})
	require.Error(t, err)
}

func TestDecodeFrameRejectsShortBuffer(t *testing.T) {
	_, err := DecodeFrame([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
}

func TestDecodeFrameRejectsTruncatedPayload(t *testing.T) {
	buf, err := EncodeFrame(Frame{ID: 1, Data: []byte{1, 2, 3, 4}})
	require.NoError(t, err)
	_, err = DecodeFrame(buf[:len(buf)-1])
	require.Error(t, err)
}

func TestEncodeFrameHeaderLayout(t *testing.T) {
	buf, err := EncodeFrame(Frame{ID: 0x123, Extended: true, Data: []byte{0xAA, 0xBB}})
	require.NoError(t, err)
	require.Equal(t, byte(FlagExtended), buf[0])
	require.Equal(t, byte(2), buf[5])
	require.Equal(t, []byte{0xAA, 0xBB}, buf[6:])
}
