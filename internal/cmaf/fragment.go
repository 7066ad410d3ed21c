package cmaf

// Sample flags bit for a non-sync (non-keyframe) sample, written into each
// non-keyframe sample's entry in trun.
const sampleDependsOnNonKeyframe = 0x00010000

// Sample is one encoded access unit going into a media fragment.
type Sample struct {
	Data       []byte
	DurationTS uint32
	Keyframe   bool
}

// styp mirrors ftyp for media segments.
func styp() []byte {
	body := append([]byte("msdh"), u32(0)...)
	body = append(body, []byte("msdh")...)
	body = append(body, []byte("msix")...)
	return box("styp", body)
}

func mfhd(sequenceNumber uint32) []byte {
	body := append([]byte{0, 0, 0, 0}, u32(sequenceNumber)...)
	return box("mfhd", body)
}

func tfhd(trackID uint32) []byte {
	// flags: default-base-is-moof (0x020000)
	body := []byte{0x00, 0x02, 0x00, 0x00}
	body = append(body, u32(trackID)...)
	return box("tfhd", body)
}

func tfdt(baseMediaDecodeTime uint64) []byte {
	body := []byte{1, 0, 0, 0} // version 1: 64-bit time
	body = append(body, make([]byte, 8)...)
	b := body[4:12]
	b[0] = byte(baseMediaDecodeTime >> 56)
	b[1] = byte(baseMediaDecodeTime >> 48)
	b[2] = byte(baseMediaDecodeTime >> 40)
	b[3] = byte(baseMediaDecodeTime >> 32)
	b[4] = byte(baseMediaDecodeTime >> 24)
	b[5] = byte(baseMediaDecodeTime >> 16)
	b[6] = byte(baseMediaDecodeTime >> 8)
	b[7] = byte(baseMediaDecodeTime)
	return box("tfdt", body)
}

// trun lists every sample's size, duration and sync flag, plus the
// data_offset into the sibling mdat box (filled in by buildMoof once the
// moof's total size is known).
func trun(samples []Sample, dataOffset int32) []byte {
	// flags: data-offset-present(0x01), sample-duration-present(0x100),
	// sample-size-present(0x200), sample-flags-present(0x400)
	body := []byte{0, 0, 0x07, 0x01}
	body = append(body, u32(uint32(len(samples)))...)
	body = append(body, u32(uint32(dataOffset))...)
	for _, s := range samples {
		body = append(body, u32(s.DurationTS)...)
		body = append(body, u32(uint32(len(s.Data)))...)
		var flags uint32
		if !s.Keyframe {
			flags = sampleDependsOnNonKeyframe
		}
		body = append(body, u32(flags)...)
	}
	return box("trun", body)
}

func traf(trackID uint32, baseMediaDecodeTime uint64, samples []Sample, dataOffset int32) []byte {
	body := tfhd(trackID)
	body = append(body, tfdt(baseMediaDecodeTime)...)
	body = append(body, trun(samples, dataOffset)...)
	return box("traf", body)
}

// BuildFragment assembles one styp+moof+mdat media segment carrying samples
// for trackID, with a two-pass data_offset fixup: trun's data_offset field
// must point past the moof box, whose size depends on trun's own contents.
func BuildFragment(sequenceNumber, trackID uint32, baseMediaDecodeTime uint64, samples []Sample) []byte {
	mdatBody := make([]byte, 0, 4096)
	for _, s := range samples {
		mdatBody = append(mdatBody, s.Data...)
	}
	mdat := box("mdat", mdatBody)

	moofBody := mfhd(sequenceNumber)
	moofBody = append(moofBody, traf(trackID, baseMediaDecodeTime, samples, 0)...)
	moof := box("moof", moofBody)

	dataOffset := int32(len(moof) + 8) // moof size + mdat's own header

	moofBody = mfhd(sequenceNumber)
	moofBody = append(moofBody, traf(trackID, baseMediaDecodeTime, samples, dataOffset)...)
	moof = box("moof", moofBody)

	out := styp()
	out = append(out, moof...)
	out = append(out, mdat...)
	return out
}
