package cmaf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func annexBUnit(nalType byte, payload []byte) []byte {
	out := []byte{0, 0, 0, 1, nalType}
	return append(out, payload...)
}

func TestParseAnnexBSeparatesSPSPPSAndSlice(t *testing.T) {
	sps := annexBUnit(NALSPS, []byte{0x42, 0x00, 0x1F})
	pps := annexBUnit(NALPPS, []byte{0xCE})
	slice := annexBUnit(NALIDRSlice, []byte{0xAA, 0xBB})
	au := append(append(append([]byte{}, sps...), pps...), slice...)

	parsed := ParseAnnexB(au)
	require.True(t, parsed.IsKeyframe)
	require.Len(t, parsed.NALs, 1)
	require.Equal(t, uint8(NALIDRSlice), parsed.NALs[0].Type)
}

func obu(obuType uint8, payload []byte) []byte {
	header := byte(obuType<<3) | 0x02 // has_size_field
	out := []byte{header, byte(len(payload))}
	return append(out, payload...)
}

func TestExtractSequenceHeader(t *testing.T) {
	sh := obu(OBUSequenceHeader, []byte{1, 2, 3})
	frame := obu(OBUFrame, []byte{9, 9})
	data := append(append([]byte{}, sh...), frame...)

	got := ExtractSequenceHeader(data)
	require.Equal(t, []byte{1, 2, 3}, got)
}

func TestPrependSequenceHeaderSkipsIfAlreadyPresent(t *testing.T) {
	sh := obu(OBUSequenceHeader, []byte{1, 2, 3})
	frame := append(append([]byte{}, sh...), obu(OBUFrame, []byte{9})...)

	out := PrependSequenceHeader(sh, frame)
	require.Equal(t, frame, out)
}

func TestPrependSequenceHeaderAddsWhenMissing(t *testing.T) {
	sh := obu(OBUSequenceHeader, []byte{1, 2, 3})
	frame := obu(OBUFrame, []byte{9})

	out := PrependSequenceHeader(sh, frame)
	require.Equal(t, append(append([]byte{}, sh...), frame...), out)
}

func TestInitSegmentStartsWithFtyp(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1F}
	pps := []byte{0x68, 0xCE}
	entry := AVCSampleEntry(1280, 720, sps, pps)
	seg := InitSegment(1, 1280, 720, 90000, entry)

	require.Equal(t, "ftyp", string(seg[4:8]))
	size := binary.BigEndian.Uint32(seg[0:4])
	require.Equal(t, "moov", string(seg[size+4:size+8]))
}

func TestH264MuxerProducesInitAfterSPSPPS(t *testing.T) {
	m := NewH264Muxer(Config{Width: 640, Height: 480, Timescale: 90000, TrackID: 1})
	require.Nil(t, m.InitSegment())

	sps := annexBUnit(NALSPS, []byte{0x42, 0x00, 0x1F})
	pps := annexBUnit(NALPPS, []byte{0xCE})
	slice := annexBUnit(NALIDRSlice, []byte{0xAA})
	require.NoError(t, m.AddFrame(append(append(append([]byte{}, sps...), pps...), slice...), 3000))

	require.NotNil(t, m.InitSegment())

	frag := m.Flush()
	require.NotNil(t, frag)
	require.Equal(t, "styp", string(frag[4:8]))
	require.Nil(t, m.Flush())
}

func TestAV1MuxerBuildsInitAndFragmentFromKeyframe(t *testing.T) {
	m := NewAV1Muxer(Config{Width: 640, Height: 480, Timescale: 90000, TrackID: 2}, 0, 0, 0, false)

	sh := obu(OBUSequenceHeader, []byte{9, 9, 9})
	keyframe := obu(OBUFrame, []byte{1})
	m.AddFrame(append(append([]byte{}, sh...), keyframe...), 3000)

	require.NotNil(t, m.InitSegment())
	frag := m.Flush()
	require.NotNil(t, frag)
}
