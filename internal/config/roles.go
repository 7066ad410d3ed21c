package config

import "time"

// Serial is the config for `xoq serial-server` / `xoq serial-client`.
type Serial struct {
	Path     string `yaml:"path"`
	BaudRate int    `yaml:"baud_rate"`
	Listen   string `yaml:"listen"`
	KeyDir   string `yaml:"key_dir"`
	Quic     Quic   `yaml:"quic"`
}

func (s *Serial) ApplyDefaults() {
	if s.BaudRate == 0 {
		s.BaudRate = 115200
	}
	if s.Listen == "" {
		s.Listen = "0.0.0.0:4433"
	}
	s.Quic.ApplyDefaults()
}

// CANInterface names one SocketCAN interface and whether it runs in FD mode
// (a trailing ":fd" suffix on the CLI/YAML value, e.g. "can0:fd").
type CANInterface struct {
	Name string `yaml:"name"`
	FD   bool   `yaml:"fd"`
}

// CAN is the config for `xoq bus-server` / `xoq bus-client`.
type CAN struct {
	Interfaces []CANInterface `yaml:"interfaces"`
	Listen     string         `yaml:"listen"`
	KeyDir     string         `yaml:"key_dir"`
	Quic       Quic           `yaml:"quic"`
	RestartMS  int            `yaml:"restart_ms"`
}

func (c *CAN) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = "0.0.0.0:4434"
	}
	if c.RestartMS == 0 {
		c.RestartMS = 100
	}
	c.Quic.ApplyDefaults()
}

// Camera is the config for `xoq camera-server`.
type Camera struct {
	Device           string        `yaml:"device"`
	Listen           string        `yaml:"listen"`
	KeyDir           string        `yaml:"key_dir"`
	Quic             Quic          `yaml:"quic"`
	BitrateKbps      int           `yaml:"bitrate_kbps"`
	KeyframeInterval time.Duration `yaml:"keyframe_interval"`
	Width            int           `yaml:"width"`
	Height           int           `yaml:"height"`
	FPS              int           `yaml:"fps"`
}

func (c *Camera) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = "0.0.0.0:4435"
	}
	if c.BitrateKbps == 0 {
		c.BitrateKbps = 4000
	}
	if c.KeyframeInterval == 0 {
		c.KeyframeInterval = time.Second
	}
	if c.Width == 0 {
		c.Width = 1280
	}
	if c.Height == 0 {
		c.Height = 720
	}
	if c.FPS == 0 {
		c.FPS = 30
	}
	c.Quic.ApplyDefaults()
}

// Depth is the config for `xoq depth-server`, a camera-bridge specialization.
type Depth struct {
	Camera             `yaml:",inline"`
	CalibrationFrames  int     `yaml:"calibration_frames"`
	DepthScaleOverride float64 `yaml:"depth_scale_override"`
	MinDepthMMOverride int     `yaml:"min_depth_mm_override"`
	MaxDepthMMOverride int     `yaml:"max_depth_mm_override"`
}

func (d *Depth) ApplyDefaults() {
	d.Camera.ApplyDefaults()
	if d.CalibrationFrames == 0 {
		d.CalibrationFrames = 30
	}
}

// Audio is the config for `xoq audio-server`.
type Audio struct {
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`
	Listen       string `yaml:"listen"`
	KeyDir       string `yaml:"key_dir"`
	Quic         Quic   `yaml:"quic"`
	SampleRate   uint32 `yaml:"sample_rate"`
	Channels     uint16 `yaml:"channels"`
}

func (a *Audio) ApplyDefaults() {
	if a.Listen == "" {
		a.Listen = "0.0.0.0:4436"
	}
	if a.SampleRate == 0 {
		a.SampleRate = 48000
	}
	if a.Channels == 0 {
		a.Channels = 1
	}
	a.Quic.ApplyDefaults()
}

// Relay is the config for `xoq relay`, the self-hosted MoQ broker.
type Relay struct {
	Listen     string `yaml:"listen"`
	KeyDir     string `yaml:"key_dir"`
	Quic       Quic   `yaml:"quic"`
	WebSocket  string `yaml:"websocket_listen"`
	CertPinSHA string `yaml:"cert_pin_sha256"`
}

func (r *Relay) ApplyDefaults() {
	if r.Listen == "" {
		r.Listen = "0.0.0.0:4443"
	}
	r.Quic.ApplyDefaults()
}
