package moq

import (
	"bytes"
	"fmt"
	"io"
)

// Control message types carried inside a size-prefixed frame on a
// bidirectional control stream
const (
	MsgAnnounce      = 1
	MsgSubscribe     = 2
	MsgSubscribeOk   = 3
	MsgAnnounceEntry = 4 // incremental announcement: active flag + path
)

// Data stream types. Every unidirectional stream opens with one of these.
const (
	DataTypeGroup = 0
)

// CurrentVersion is the only version identifier XoQ's MoQ engine speaks.
// Version identifiers are opaque 32-bit magic constants.
const CurrentVersion uint64 = 0xff00_0001

// ErrUnsupportedVersion is returned when ClientSetup/ServerSetup fail to
// agree on a common version.
var ErrUnsupportedVersion = fmt.Errorf("moq: unsupported version")

// WriteFrameBytes writes a complete size-prefixed message in one call:
// varint(len(payload)) + payload.
func WriteFrameBytes(w io.Writer, payload []byte) error {
	if err := WriteVarint(w, uint64(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrameBytes reads a complete size-prefixed message into memory.
func ReadFrameBytes(r io.Reader) ([]byte, error) {
	n, err := ReadVarint(r)
	if err != nil {
		return nil, err
	}
	if n > maxMessageBytes {
		return nil, fmt.Errorf("moq: frame too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ClientSetup is the first message a client writes on a freshly opened
// bidirectional control stream.
type ClientSetup struct {
	Versions   []uint64
	Extensions []byte
}

// Encode serializes the ClientSetup body (without the outer size prefix).
func (c ClientSetup) Encode() []byte {
	var buf []byte
	buf, _ = AppendVarint(buf, uint64(len(c.Versions)))
	for _, v := range c.Versions {
		buf, _ = AppendVarint(buf, v)
	}
	buf = AppendBytes(buf, c.Extensions)
	return buf
}

// WriteTo writes the size-prefixed ClientSetup to w.
func (c ClientSetup) WriteTo(w io.Writer) error {
	return WriteFrameBytes(w, c.Encode())
}

// ReadClientSetup reads and decodes a size-prefixed ClientSetup from r.
func ReadClientSetup(r io.Reader) (ClientSetup, error) {
	body, err := ReadFrameBytes(r)
	if err != nil {
		return ClientSetup{}, err
	}
	br := bytes.NewReader(body)
	count, err := ReadVarint(br)
	if err != nil {
		return ClientSetup{}, fmt.Errorf("moq: decode ClientSetup version_count: %w", err)
	}
	versions := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		v, err := ReadVarint(br)
		if err != nil {
			return ClientSetup{}, fmt.Errorf("moq: decode ClientSetup version[%d]: %w", i, err)
		}
		versions = append(versions, v)
	}
	ext, err := ReadBytes(br)
	if err != nil {
		return ClientSetup{}, fmt.Errorf("moq: decode ClientSetup extensions: %w", err)
	}
	return ClientSetup{Versions: versions, Extensions: ext}, nil
}

// ServerSetup is the server's reply to ClientSetup, selecting one version.
type ServerSetup struct {
	Version    uint64
	Extensions []byte
}

func (s ServerSetup) Encode() []byte {
	var buf []byte
	buf, _ = AppendVarint(buf, s.Version)
	buf = AppendBytes(buf, s.Extensions)
	return buf
}

func (s ServerSetup) WriteTo(w io.Writer) error {
	return WriteFrameBytes(w, s.Encode())
}

func ReadServerSetup(r io.Reader) (ServerSetup, error) {
	body, err := ReadFrameBytes(r)
	if err != nil {
		return ServerSetup{}, err
	}
	br := bytes.NewReader(body)
	version, err := ReadVarint(br)
	if err != nil {
		return ServerSetup{}, fmt.Errorf("moq: decode ServerSetup version: %w", err)
	}
	ext, err := ReadBytes(br)
	if err != nil {
		return ServerSetup{}, fmt.Errorf("moq: decode ServerSetup extensions: %w", err)
	}
	return ServerSetup{Version: version, Extensions: ext}, nil
}

// NegotiateVersion picks the first version in offered that appears in
// supported, or returns ErrUnsupportedVersion.
func NegotiateVersion(offered []uint64, supported []uint64) (uint64, error) {
	supportedSet := make(map[uint64]struct{}, len(supported))
	for _, v := range supported {
		supportedSet[v] = struct{}{}
	}
	for _, v := range offered {
		if _, ok := supportedSet[v]; ok {
			return v, nil
		}
	}
	return 0, ErrUnsupportedVersion
}

// SubscribeRequest is the body of a MsgSubscribe control message.
type SubscribeRequest struct {
	SubscribeID    uint64
	BroadcastPath  string
	TrackName      string
	PriorityOffset int32 // signed offset from 128
}

func (s SubscribeRequest) Encode() []byte {
	var buf []byte
	buf, _ = AppendVarint(buf, MsgSubscribe)
	buf, _ = AppendVarint(buf, s.SubscribeID)
	buf = AppendString(buf, s.BroadcastPath)
	buf = AppendString(buf, s.TrackName)
	buf, _ = AppendVarint(buf, zigzagEncode(s.PriorityOffset))
	return buf
}

func DecodeSubscribeRequest(body []byte) (SubscribeRequest, error) {
	br := bytes.NewReader(body)
	msgType, err := ReadVarint(br)
	if err != nil {
		return SubscribeRequest{}, err
	}
	if msgType != MsgSubscribe {
		return SubscribeRequest{}, fmt.Errorf("moq: expected MsgSubscribe, got %d", msgType)
	}
	id, err := ReadVarint(br)
	if err != nil {
		return SubscribeRequest{}, err
	}
	path, err := ReadString(br)
	if err != nil {
		return SubscribeRequest{}, err
	}
	track, err := ReadString(br)
	if err != nil {
		return SubscribeRequest{}, err
	}
	priRaw, err := ReadVarint(br)
	if err != nil {
		return SubscribeRequest{}, err
	}
	return SubscribeRequest{
		SubscribeID:    id,
		BroadcastPath:  path,
		TrackName:      track,
		PriorityOffset: zigzagDecode(priRaw),
	}, nil
}

// SubscribeOk acknowledges a subscription.
type SubscribeOk struct {
	SubscribeID uint64
}

func (s SubscribeOk) Encode() []byte {
	var buf []byte
	buf, _ = AppendVarint(buf, MsgSubscribeOk)
	buf, _ = AppendVarint(buf, s.SubscribeID)
	return buf
}

func DecodeSubscribeOk(body []byte) (SubscribeOk, error) {
	br := bytes.NewReader(body)
	msgType, err := ReadVarint(br)
	if err != nil {
		return SubscribeOk{}, err
	}
	if msgType != MsgSubscribeOk {
		return SubscribeOk{}, fmt.Errorf("moq: expected MsgSubscribeOk, got %d", msgType)
	}
	id, err := ReadVarint(br)
	if err != nil {
		return SubscribeOk{}, err
	}
	return SubscribeOk{SubscribeID: id}, nil
}

// AnnounceRequest asks the relay for every broadcast path under prefix.
type AnnounceRequest struct {
	Prefix string
}

func (a AnnounceRequest) Encode() []byte {
	var buf []byte
	buf, _ = AppendVarint(buf, MsgAnnounce)
	buf = AppendString(buf, a.Prefix)
	return buf
}

func DecodeAnnounceRequest(body []byte) (AnnounceRequest, error) {
	br := bytes.NewReader(body)
	msgType, err := ReadVarint(br)
	if err != nil {
		return AnnounceRequest{}, err
	}
	if msgType != MsgAnnounce {
		return AnnounceRequest{}, fmt.Errorf("moq: expected MsgAnnounce, got %d", msgType)
	}
	prefix, err := ReadString(br)
	if err != nil {
		return AnnounceRequest{}, err
	}
	return AnnounceRequest{Prefix: prefix}, nil
}

// AnnounceResponse lists the broadcast paths matching the request's prefix
// at the moment of the request.
type AnnounceResponse struct {
	Paths []string
}

func (a AnnounceResponse) Encode() []byte {
	var buf []byte
	buf, _ = AppendVarint(buf, uint64(len(a.Paths)))
	for _, p := range a.Paths {
		buf = AppendString(buf, p)
	}
	return buf
}

func DecodeAnnounceResponse(body []byte) (AnnounceResponse, error) {
	br := bytes.NewReader(body)
	count, err := ReadVarint(br)
	if err != nil {
		return AnnounceResponse{}, err
	}
	paths := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		p, err := ReadString(br)
		if err != nil {
			return AnnounceResponse{}, err
		}
		paths = append(paths, p)
	}
	return AnnounceResponse{Paths: paths}, nil
}

// AnnounceEntry is an incremental announcement delivered on the still-open
// discovery stream after the initial AnnounceResponse.
type AnnounceEntry struct {
	Active bool
	Path   string
}

func (a AnnounceEntry) Encode() []byte {
	var buf []byte
	buf, _ = AppendVarint(buf, MsgAnnounceEntry)
	active := uint64(0)
	if a.Active {
		active = 1
	}
	buf, _ = AppendVarint(buf, active)
	buf = AppendString(buf, a.Path)
	return buf
}

func DecodeAnnounceEntry(body []byte) (AnnounceEntry, error) {
	br := bytes.NewReader(body)
	msgType, err := ReadVarint(br)
	if err != nil {
		return AnnounceEntry{}, err
	}
	if msgType != MsgAnnounceEntry {
		return AnnounceEntry{}, fmt.Errorf("moq: expected MsgAnnounceEntry, got %d", msgType)
	}
	active, err := ReadVarint(br)
	if err != nil {
		return AnnounceEntry{}, err
	}
	path, err := ReadString(br)
	if err != nil {
		return AnnounceEntry{}, err
	}
	return AnnounceEntry{Active: active != 0, Path: path}, nil
}

// GroupHeader begins every unidirectional data stream carrying a group.
type GroupHeader struct {
	SubscribeID   uint64
	GroupSequence uint64
}

func (g GroupHeader) Encode() []byte {
	var buf []byte
	buf, _ = AppendVarint(buf, DataTypeGroup)
	buf, _ = AppendVarint(buf, g.SubscribeID)
	buf, _ = AppendVarint(buf, g.GroupSequence)
	return buf
}

func (g GroupHeader) WriteTo(w io.Writer) error {
	return WriteFrameBytes(w, g.Encode())
}

func ReadGroupHeader(r io.Reader) (GroupHeader, error) {
	body, err := ReadFrameBytes(r)
	if err != nil {
		return GroupHeader{}, err
	}
	br := bytes.NewReader(body)
	dataType, err := ReadVarint(br)
	if err != nil {
		return GroupHeader{}, err
	}
	if dataType != DataTypeGroup {
		return GroupHeader{}, fmt.Errorf("moq: expected data_type=0 (group), got %d", dataType)
	}
	subID, err := ReadVarint(br)
	if err != nil {
		return GroupHeader{}, err
	}
	seq, err := ReadVarint(br)
	if err != nil {
		return GroupHeader{}, err
	}
	return GroupHeader{SubscribeID: subID, GroupSequence: seq}, nil
}

func zigzagEncode(v int32) uint64 {
	return uint64((v << 1) ^ (v >> 31))
}

func zigzagDecode(v uint64) int32 {
	return int32(v>>1) ^ -int32(v&1)
}
