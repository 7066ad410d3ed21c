// Package canbridge exposes a SocketCAN interface as a from_device/to_device
// track pair: every frame read off the bus becomes one bridge frame, encoded
// with a fixed 6-byte header ahead of its payload.
package canbridge

import (
	"encoding/binary"
	"fmt"
)

// Header flag bits.
const (
	FlagFD       = 0x01
	FlagExtended = 0x02
	FlagBRS      = 0x04
	FlagESI      = 0x08
)

// headerSize is [flags:u8][can_id:u32 LE][len:u8].
const headerSize = 6

// Frame is one CAN frame in wire form, classic or FD.
type Frame struct {
	ID       uint32
	Extended bool
	FD       bool
	BRS      bool
	ESI      bool
	Data     []byte
}

// EncodeFrame serializes f as [flags][can_id LE][len][data].
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Data) > 64 {
		return nil, fmt.Errorf("can frame data too long: %d bytes", len(f.Data))
	}
	var flags byte
	if f.FD {
		flags |= FlagFD
	}
	if f.Extended {
		flags |= FlagExtended
	}
	if f.BRS {
		flags |= FlagBRS
	}
	if f.ESI {
		flags |= FlagESI
	}

	buf := make([]byte, headerSize+len(f.Data))
	buf[0] = flags
	binary.LittleEndian.PutUint32(buf[1:5], f.ID)
	buf[5] = byte(len(f.Data))
	copy(buf[headerSize:], f.Data)
	return buf, nil
}

// DecodeFrame parses a wire-format CAN frame.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < headerSize {
		return Frame{}, fmt.Errorf("can frame too short: %d bytes", len(buf))
	}
	flags := buf[0]
	id := binary.LittleEndian.Uint32(buf[1:5])
	length := int(buf[5])
	if len(buf) < headerSize+length {
		return Frame{}, fmt.Errorf("can frame declares %d data bytes, has %d", length, len(buf)-headerSize)
	}
	return Frame{
		ID:       id,
		Extended: flags&FlagExtended != 0,
		FD:       flags&FlagFD != 0,
		BRS:      flags&FlagBRS != 0,
		ESI:      flags&FlagESI != 0,
		Data:     append([]byte{}, buf[headerSize:headerSize+length]...),
	}, nil
}
