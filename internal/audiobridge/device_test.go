package audiobridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCapturer struct {
	frames []Frame
	idx    int
}

func (c *fakeCapturer) Capture(ctx context.Context) (Frame, error) {
	if c.idx >= len(c.frames) {
		return Frame{}, errors.New("no more frames")
	}
	f := c.frames[c.idx]
	c.idx++
	return f, nil
}

func (c *fakeCapturer) Close() error { return nil }

type fakePlayer struct {
	played []Frame
}

func (p *fakePlayer) Play(ctx context.Context, f Frame) error {
	p.played = append(p.played, f)
	return nil
}

func (p *fakePlayer) Close() error { return nil }

func TestDuplexDeviceReadFromEncodesCapturedFrame(t *testing.T) {
	cap := &fakeCapturer{frames: []Frame{{SampleRate: 48000, Channels: 2, Data: []byte{1, 2, 3, 4}}}}
	dev, err := Open("mic0", cap, &fakePlayer{})(context.Background())
	require.NoError(t, err)

	data, err := dev.ReadFrom(context.Background())
	require.NoError(t, err)

	got, err := DecodeFrame(data)
	require.NoError(t, err)
	require.Equal(t, uint32(48000), got.SampleRate)
	require.Equal(t, []byte{1, 2, 3, 4}, got.Data)
}

func TestDuplexDeviceWriteToPlaysDecodedFrame(t *testing.T) {
	player := &fakePlayer{}
	dev, err := Open("speaker0", &fakeCapturer{}, player)(context.Background())
	require.NoError(t, err)

	encoded := EncodeFrame(Frame{SampleRate: 44100, Data: []byte{9, 9}})
	require.NoError(t, dev.WriteTo(context.Background(), encoded))
	require.Len(t, player.played, 1)
	require.Equal(t, uint32(44100), player.played[0].SampleRate)
}

func TestListInputsWrapsListerError(t *testing.T) {
	_, err := ListInputs(func() ([]string, error) { return nil, errors.New("no backend") })
	require.Error(t, err)
}
