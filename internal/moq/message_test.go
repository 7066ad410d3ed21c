package moq

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientServerSetupRoundTrip(t *testing.T) {
	var wire bytes.Buffer
	client := ClientSetup{Versions: []uint64{CurrentVersion, 7}, Extensions: []byte("ext")}
	require.NoError(t, client.WriteTo(&wire))

	got, err := ReadClientSetup(&wire)
	require.NoError(t, err)
	require.Equal(t, client, got)
}

func TestNegotiateVersionPicksFirstCommon(t *testing.T) {
	v, err := NegotiateVersion([]uint64{5, CurrentVersion, 9}, []uint64{CurrentVersion, 9})
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, v)
}

func TestNegotiateVersionNoCommon(t *testing.T) {
	_, err := NegotiateVersion([]uint64{1, 2}, []uint64{3, 4})
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestHandshakeEndToEnd(t *testing.T) {
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	clientSide := pipeRW{r: s2cR, w: c2sW}
	serverSide := pipeRW{r: c2sR, w: s2cW}

	serverDone := make(chan uint64, 1)
	go func() {
		v, err := ServerHandshake(serverSide, SupportedVersions)
		require.NoError(t, err)
		serverDone <- v
	}()

	v, err := ClientHandshake(clientSide, []uint64{CurrentVersion})
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, v)
	require.Equal(t, CurrentVersion, <-serverDone)
}

type pipeRW struct {
	r io.Reader
	w io.Writer
}

func (p pipeRW) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeRW) Write(b []byte) (int, error) { return p.w.Write(b) }

func TestSubscribeRequestRoundTrip(t *testing.T) {
	req := SubscribeRequest{SubscribeID: 42, BroadcastPath: "/camera/abc", TrackName: "video", PriorityOffset: -5}
	got, err := DecodeSubscribeRequest(req.Encode())
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestAnnounceRequestResponseRoundTrip(t *testing.T) {
	req := AnnounceRequest{Prefix: "/camera/"}
	gotReq, err := DecodeAnnounceRequest(req.Encode())
	require.NoError(t, err)
	require.Equal(t, req, gotReq)

	resp := AnnounceResponse{Paths: []string{"/camera/abc", "/camera/def"}}
	gotResp, err := DecodeAnnounceResponse(resp.Encode())
	require.NoError(t, err)
	require.Equal(t, resp, gotResp)
}

func TestGroupHeaderRoundTrip(t *testing.T) {
	var wire bytes.Buffer
	header := GroupHeader{SubscribeID: 3, GroupSequence: 99}
	require.NoError(t, header.WriteTo(&wire))

	got, err := ReadGroupHeader(&wire)
	require.NoError(t, err)
	require.Equal(t, header, got)
}

func TestZigzagRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 127, -128, 1 << 20, -(1 << 20)} {
		require.Equal(t, v, zigzagDecode(zigzagEncode(v)))
	}
}
