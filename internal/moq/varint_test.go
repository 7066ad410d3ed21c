package moq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestVarintRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Uint64Range(0, maxVarint8).Draw(t, "v")

		buf, err := AppendVarint(nil, v)
		require.NoError(t, err)
		require.Len(t, buf, varintLen(v))

		got, n, err := DecodeVarint(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)

		var w bytes.Buffer
		require.NoError(t, WriteVarint(&w, v))
		require.Equal(t, buf, w.Bytes())

		read, err := ReadVarint(&w)
		require.NoError(t, err)
		require.Equal(t, v, read)
	})
}

func TestVarintMinimumEncoding(t *testing.T) {
	cases := []struct {
		v       uint64
		wantLen int
	}{
		{0, 1},
		{maxVarint1, 1},
		{maxVarint1 + 1, 2},
		{maxVarint2, 2},
		{maxVarint2 + 1, 4},
		{maxVarint4, 4},
		{maxVarint4 + 1, 8},
		{maxVarint8, 8},
	}
	for _, c := range cases {
		buf, err := AppendVarint(nil, c.v)
		require.NoError(t, err)
		require.Lenf(t, buf, c.wantLen, "value %d", c.v)
	}
}

func TestVarintOverflow(t *testing.T) {
	_, err := AppendVarint(nil, maxVarint8+1)
	require.Error(t, err)
}

func TestBytesRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "data")

		buf := AppendBytes(nil, data)
		got, err := ReadBytes(bytes.NewReader(buf))
		require.NoError(t, err)
		require.Equal(t, data, got)
	})
}

func TestStringRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")

		buf := AppendString(nil, s)
		got, err := ReadString(bytes.NewReader(buf))
		require.NoError(t, err)
		require.Equal(t, s, got)
	})
}
