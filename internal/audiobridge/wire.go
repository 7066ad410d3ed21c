// Package audiobridge exposes a local audio input/output pair as a duplex
// device: inbound PCM (to the speaker) and outbound PCM (from the
// microphone) share one connection, framed with a fixed header ahead of
// each chunk of interleaved samples.
package audiobridge

import (
	"encoding/binary"
	"fmt"
)

// Sample formats carried in a frame header.
const (
	SampleFormatS16LE = 0
	SampleFormatF32LE = 1
)

// headerSize is [sample_rate:u32][channels:u16][sample_format:u16]
// [frame_count:u32][timestamp_us:u32][data_length:u32], all little-endian.
const headerSize = 20

// Frame is one chunk of PCM audio together with the format it was captured
// or should be played back in. Sample rate, channel count, and format are
// negotiated implicitly: the first outbound frame's header is authoritative
// for the whole duplex session.
type Frame struct {
	SampleRate   uint32
	Channels     uint16
	SampleFormat uint16
	FrameCount   uint32
	TimestampUs  uint32
	Data         []byte
}

// EncodeFrame serializes f as its 20-byte header followed by Data.
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, headerSize+len(f.Data))
	binary.LittleEndian.PutUint32(buf[0:4], f.SampleRate)
	binary.LittleEndian.PutUint16(buf[4:6], f.Channels)
	binary.LittleEndian.PutUint16(buf[6:8], f.SampleFormat)
	binary.LittleEndian.PutUint32(buf[8:12], f.FrameCount)
	binary.LittleEndian.PutUint32(buf[12:16], f.TimestampUs)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(f.Data)))
	copy(buf[headerSize:], f.Data)
	return buf
}

// DecodeFrame parses a wire-format audio frame.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < headerSize {
		return Frame{}, fmt.Errorf("audio frame too short: %d bytes", len(buf))
	}
	dataLength := binary.LittleEndian.Uint32(buf[16:20])
	if uint32(len(buf)-headerSize) < dataLength {
		return Frame{}, fmt.Errorf("audio frame declares %d data bytes, has %d", dataLength, len(buf)-headerSize)
	}
	return Frame{
		SampleRate:   binary.LittleEndian.Uint32(buf[0:4]),
		Channels:     binary.LittleEndian.Uint16(buf[4:6]),
		SampleFormat: binary.LittleEndian.Uint16(buf[6:8]),
		FrameCount:   binary.LittleEndian.Uint32(buf[8:12]),
		TimestampUs:  binary.LittleEndian.Uint32(buf[12:16]),
		Data:         append([]byte{}, buf[headerSize:headerSize+dataLength]...),
	}, nil
}
