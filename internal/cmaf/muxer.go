package cmaf

import "fmt"

// Config describes the track a Muxer produces fragments for.
type Config struct {
	Width, Height uint32
	Timescale     uint32 // ticks per second, e.g. 90000
	TrackID       uint32
}

// H264Muxer turns parsed Annex B access units into CMAF init/media
// segments. Grounded on the source muxer's stateful add_frame/flush split:
// the caller supplies one access unit at a time, and the muxer buffers
// until told to flush a fragment.
type H264Muxer struct {
	cfg         Config
	sps, pps    []byte
	initWritten bool
	seq         uint32
	pending     []Sample
	nextDTS     uint64
}

func NewH264Muxer(cfg Config) *H264Muxer {
	return &H264Muxer{cfg: cfg}
}

// InitSegment returns the ftyp+moov segment once SPS/PPS have been seen.
// Returns nil until then.
func (m *H264Muxer) InitSegment() []byte {
	if m.sps == nil || m.pps == nil {
		return nil
	}
	entry := AVCSampleEntry(uint16(m.cfg.Width), uint16(m.cfg.Height), m.sps, m.pps)
	return InitSegment(m.cfg.TrackID, m.cfg.Width, m.cfg.Height, m.cfg.Timescale, entry)
}

// AddFrame parses one Annex B access unit, updating SPS/PPS if present and
// queuing its slice data as a pending sample.
func (m *H264Muxer) AddFrame(annexB []byte, durationTS uint32) error {
	parsed := ParseAnnexB(annexB)
	if parsed.SPS != nil {
		m.sps = parsed.SPS
	}
	if parsed.PPS != nil {
		m.pps = parsed.PPS
	}
	if len(parsed.NALs) == 0 && !parsed.IsKeyframe {
		return fmt.Errorf("access unit carries no slice data")
	}

	data := make([]byte, 0, len(annexB))
	for _, n := range parsed.NALs {
		length := len(n.Data)
		data = append(data, byte(length>>24), byte(length>>16), byte(length>>8), byte(length))
		data = append(data, n.Data...)
	}
	m.pending = append(m.pending, Sample{Data: data, DurationTS: durationTS, Keyframe: parsed.IsKeyframe})
	return nil
}

// Flush packages every pending sample into one media fragment and resets
// the buffer. Returns nil if nothing is pending.
func (m *H264Muxer) Flush() []byte {
	if len(m.pending) == 0 {
		return nil
	}
	frag := BuildFragment(m.seq, m.cfg.TrackID, m.nextDTS, m.pending)
	m.seq++
	for _, s := range m.pending {
		m.nextDTS += uint64(s.DurationTS)
	}
	m.pending = nil
	return frag
}

// AV1Muxer mirrors H264Muxer for AV1, tracking the Sequence Header OBU
// instead of SPS/PPS and applying the SHOBU keyframe self-containment rule.
type AV1Muxer struct {
	cfg          Config
	seqHeader    []byte
	profile      uint8
	level        uint8
	tier         uint8
	highBitdepth bool
	seq          uint32
	pending      []Sample
	nextDTS      uint64
}

func NewAV1Muxer(cfg Config, profile, level, tier uint8, highBitdepth bool) *AV1Muxer {
	return &AV1Muxer{cfg: cfg, profile: profile, level: level, tier: tier, highBitdepth: highBitdepth}
}

func (m *AV1Muxer) InitSegment() []byte {
	if m.seqHeader == nil {
		return nil
	}
	entry := AV1SampleEntry(uint16(m.cfg.Width), uint16(m.cfg.Height), m.seqHeader, m.profile, m.level, m.tier, m.highBitdepth)
	return InitSegment(m.cfg.TrackID, m.cfg.Width, m.cfg.Height, m.cfg.Timescale, entry)
}

// AddFrame queues one AV1 access unit. ParseAV1Frame counts a unit as a
// keyframe only when it carries a Sequence Header OBU, so every queued
// keyframe already holds one and PrependSequenceHeader returns it unchanged.
func (m *AV1Muxer) AddFrame(obus []byte, durationTS uint32) {
	parsed := ParseAV1Frame(obus)
	if parsed.IsKeyframe {
		m.seqHeader = parsed.SequenceHeader
	}

	data := obus
	if parsed.IsKeyframe {
		data = PrependSequenceHeader(m.seqHeader, obus)
	}
	m.pending = append(m.pending, Sample{Data: data, DurationTS: durationTS, Keyframe: parsed.IsKeyframe})
}

func (m *AV1Muxer) Flush() []byte {
	if len(m.pending) == 0 {
		return nil
	}
	frag := BuildFragment(m.seq, m.cfg.TrackID, m.nextDTS, m.pending)
	m.seq++
	for _, s := range m.pending {
		m.nextDTS += uint64(s.DurationTS)
	}
	m.pending = nil
	return frag
}
