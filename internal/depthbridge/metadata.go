package depthbridge

import jsoniter "github.com/json-iterator/go"

// Metadata is the JSON object sent alongside each depth keyframe, matching
// the intrinsics a browser-side point-cloud reconstruction needs.
type Metadata struct {
	FX         float64  `json:"fx"`
	FY         float64  `json:"fy"`
	PPX        float64  `json:"ppx"`
	PPY        float64  `json:"ppy"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	DepthScale float64  `json:"depth_scale"`
	Gravity    *Gravity `json:"gravity,omitempty"`
}

// Gravity is the optional accelerometer-derived gravity vector some depth
// cameras (RealSense with an onboard IMU) can supply.
type Gravity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodeMetadata marshals m the way every depth keyframe's metadata frame
// is serialized before publishing on the metadata track.
func EncodeMetadata(m Metadata) ([]byte, error) {
	return jsonAPI.Marshal(m)
}

// DecodeMetadata parses a metadata frame, used by tests and by any
// in-process consumer that wants to inspect the latest calibration without
// a full subscriber.
func DecodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	err := jsonAPI.Unmarshal(data, &m)
	return m, err
}
