package cmaf

import "encoding/binary"

// box writes an ISO BMFF box: a 4-byte big-endian size (including itself and
// boxType), the 4-byte type, then body.
func box(boxType string, body []byte) []byte {
	out := make([]byte, 8+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(body)))
	copy(out[4:8], boxType)
	copy(out[8:], body)
	return out
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func ftyp() []byte {
	body := append([]byte("iso5"), u32(0)...)
	body = append(body, []byte("iso5")...)
	body = append(body, []byte("dash")...)
	return box("ftyp", body)
}

// avcC builds the AVCDecoderConfigurationRecord sample entry from one SPS
// and one PPS, the shape a browser's H.264 WebCodecs decoder expects.
func avcC(sps, pps []byte) []byte {
	body := []byte{0x01}                        // configurationVersion
	body = append(body, sps[1], sps[2], sps[3]) // profile, compat, level
	body = append(body, 0xFF)                   // 6 reserved bits + lengthSizeMinusOne=3 (4-byte NAL length)
	body = append(body, 0xE1)                   // 3 reserved bits + numOfSequenceParameterSets=1
	body = append(body, u16(uint16(len(sps)))...)
	body = append(body, sps...)
	body = append(body, 0x01) // numOfPictureParameterSets
	body = append(body, u16(uint16(len(pps)))...)
	body = append(body, pps...)
	return box("avcC", body)
}

// av1C builds the AV1CodecConfigurationRecord from the caller-supplied
// profile/level/tier/bitdepth values and the Sequence Header bytes. The
// values are written as given; they are not read from seqHeader.
func av1C(seqHeader []byte, profile, level, tier uint8, highBitdepth bool) []byte {
	marker := byte(0x81) // marker=1, version=1
	var secondByte byte
	secondByte |= profile << 5
	secondByte |= level & 0x1F
	body := []byte{marker, secondByte}
	var thirdByte byte
	if tier != 0 {
		thirdByte |= 0x80
	}
	if highBitdepth {
		thirdByte |= 0x40
	}
	body = append(body, thirdByte, 0x00) // initial_presentation_delay not present
	body = append(body, seqHeader...)
	return box("av1C", body)
}

func mvhd(timescale, duration uint32) []byte {
	body := make([]byte, 0, 100)
	body = append(body, 0, 0, 0, 0) // version+flags
	body = append(body, u32(0)...)  // creation_time
	body = append(body, u32(0)...)  // modification_time
	body = append(body, u32(timescale)...)
	body = append(body, u32(duration)...)
	body = append(body, u32(0x00010000)...) // rate 1.0
	body = append(body, u16(0x0100)...)     // volume 1.0
	body = append(body, make([]byte, 10)...)
	body = append(body, identityMatrix()...)
	body = append(body, make([]byte, 24)...) // pre_defined
	body = append(body, u32(2)...)           // next_track_ID
	return box("mvhd", body)
}

func identityMatrix() []byte {
	m := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	out := make([]byte, 0, 36)
	for _, v := range m {
		out = append(out, u32(v)...)
	}
	return out
}

func tkhd(trackID, width, height uint32) []byte {
	body := make([]byte, 0, 92)
	body = append(body, 0, 0, 0, 0x07) // version+flags: enabled|in_movie|in_preview
	body = append(body, u32(0)...)     // creation_time
	body = append(body, u32(0)...)     // modification_time
	body = append(body, u32(trackID)...)
	body = append(body, u32(0)...) // reserved
	body = append(body, u32(0)...) // duration
	body = append(body, make([]byte, 8)...)
	body = append(body, u16(0)...) // layer
	body = append(body, u16(0)...) // alternate_group
	body = append(body, u16(0)...) // volume
	body = append(body, u16(0)...) // reserved
	body = append(body, identityMatrix()...)
	body = append(body, u32(width<<16)...)
	body = append(body, u32(height<<16)...)
	return box("tkhd", body)
}

func mdhd(timescale uint32) []byte {
	body := make([]byte, 0, 24)
	body = append(body, 0, 0, 0, 0)
	body = append(body, u32(0)...)
	body = append(body, u32(0)...)
	body = append(body, u32(timescale)...)
	body = append(body, u32(0)...)
	body = append(body, 0x55, 0xC4, 0, 0) // language "und", pre_defined
	return box("mdhd", body)
}

func hdlr() []byte {
	body := make([]byte, 0, 32)
	body = append(body, 0, 0, 0, 0)
	body = append(body, u32(0)...)
	body = append(body, []byte("vide")...)
	body = append(body, make([]byte, 12)...)
	body = append(body, []byte("XoQ\x00")...)
	return box("hdlr", body)
}

func vmhd() []byte {
	return box("vmhd", []byte{0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0})
}

func dref() []byte {
	url := box("url ", []byte{0, 0, 0, 1})
	body := append([]byte{0, 0, 0, 0}, u32(1)...)
	body = append(body, url...)
	return box("dref", body)
}

func dinf() []byte {
	return box("dinf", dref())
}

func stsd(sampleEntry []byte) []byte {
	body := append([]byte{0, 0, 0, 0}, u32(1)...)
	body = append(body, sampleEntry...)
	return box("stsd", body)
}

// visualSampleEntry wraps a codec config box (avcC or av1C) in the
// VisualSampleEntry shape stsd expects.
func visualSampleEntry(codec string, width, height uint16, config []byte) []byte {
	body := make([]byte, 0, 86+len(config))
	body = append(body, make([]byte, 6)...) // reserved
	body = append(body, u16(1)...)          // data_reference_index
	body = append(body, make([]byte, 16)...)
	body = append(body, u16(width)...)
	body = append(body, u16(height)...)
	body = append(body, u32(0x00480000)...)  // horizresolution 72dpi
	body = append(body, u32(0x00480000)...)  // vertresolution 72dpi
	body = append(body, u32(0)...)           // reserved
	body = append(body, u16(1)...)           // frame_count
	body = append(body, make([]byte, 32)...) // compressorname
	body = append(body, u16(0x0018)...)      // depth
	body = append(body, u16(0xFFFF)...)      // pre_defined
	body = append(body, config...)
	return box(codec, body)
}

func stts() []byte {
	return box("stts", []byte{0, 0, 0, 0, 0, 0, 0, 0})
}

func stsc() []byte {
	return box("stsc", []byte{0, 0, 0, 0, 0, 0, 0, 0})
}

func stsz() []byte {
	return box("stsz", []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
}

func stco() []byte {
	return box("stco", []byte{0, 0, 0, 0, 0, 0, 0, 0})
}

func stbl(sampleEntry []byte) []byte {
	body := stsd(sampleEntry)
	body = append(body, stts()...)
	body = append(body, stsc()...)
	body = append(body, stsz()...)
	body = append(body, stco()...)
	return box("stbl", body)
}

func minf(sampleEntry []byte) []byte {
	body := vmhd()
	body = append(body, dinf()...)
	body = append(body, stbl(sampleEntry)...)
	return box("minf", body)
}

func mdia(timescale uint32, sampleEntry []byte) []byte {
	body := mdhd(timescale)
	body = append(body, hdlr()...)
	body = append(body, minf(sampleEntry)...)
	return box("mdia", body)
}

func trak(trackID, width, height, timescale uint32, sampleEntry []byte) []byte {
	body := tkhd(trackID, width, height)
	body = append(body, mdia(timescale, sampleEntry)...)
	return box("trak", body)
}

func mvex(trackID uint32) []byte {
	body := make([]byte, 0, 28)
	body = append(body, 0, 0, 0, 0) // version+flags
	body = append(body, u32(trackID)...)
	body = append(body, u32(1)...) // default_sample_description_index
	body = append(body, u32(0)...) // default_sample_duration
	body = append(body, u32(0)...) // default_sample_size
	body = append(body, u32(0)...) // default_sample_flags
	return box("mvex", box("trex", body))
}

// InitSegment builds the ftyp+moov initialization segment for one video
// track, carried at the start of a camera/depth track's group stream and
// again in every group that starts with a keyframe.
func InitSegment(trackID uint32, width, height, timescale uint32, sampleEntry []byte) []byte {
	body := mvhd(timescale, 0)
	body = append(body, trak(trackID, width, height, timescale, sampleEntry)...)
	body = append(body, mvex(trackID)...)
	moov := box("moov", body)

	out := ftyp()
	out = append(out, moov...)
	return out
}

// AVCSampleEntry builds the avc1 VisualSampleEntry for an H.264 track.
func AVCSampleEntry(width, height uint16, sps, pps []byte) []byte {
	return visualSampleEntry("avc1", width, height, avcC(sps, pps))
}

// AV1SampleEntry builds the av01 VisualSampleEntry for an AV1 track.
func AV1SampleEntry(width, height uint16, seqHeader []byte, profile, level, tier uint8, highBitdepth bool) []byte {
	return visualSampleEntry("av01", width, height, av1C(seqHeader, profile, level, tier, highBitdepth))
}
