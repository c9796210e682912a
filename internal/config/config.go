// Package config loads the target output format and pipeline tuning
// knobs from a strict YAML document: the fixed video/audio format every
// producer normalizes its input to, plus queue sizes and timeouts.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"playhead/internal/filter"
	"playhead/internal/media"
)

// Config is the top-level document loaded from disk.
type Config struct {
	Video            VideoConfig   `yaml:"video"`
	Audio            AudioConfig   `yaml:"audio"`
	QueueCapacity    int           `yaml:"queue_capacity"`
	ReadWriteTimeout time.Duration `yaml:"read_write_timeout"`
	Reconnect        bool          `yaml:"reconnect"`
}

// VideoConfig is the YAML shape of filter.VideoSpec.
type VideoConfig struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	PixelFormat string `yaml:"pixel_format"`
	FrameRate   string `yaml:"frame_rate"` // "num/den", e.g. "30000/1001"
	Interlaced  bool   `yaml:"interlaced"`
	FieldOrder  string `yaml:"field_order"`

	// FieldCount is 2 for interlaced output, 1 (the default) for
	// progressive.
	FieldCount int `yaml:"field_count"`

	// FilterSpec is the avfilter chain body normalized video frames flow
	// through before the mandatory deinterlace/retime stages, in the
	// "[in0]...[out]" pad-label syntax. Empty means a bare passthrough.
	FilterSpec string `yaml:"filter_spec"`
}

// AudioConfig is the YAML shape of filter.AudioSpec.
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	SampleFmt  string `yaml:"sample_format"`
	Channels   int    `yaml:"channels"`

	// FilterSpec mirrors VideoConfig.FilterSpec for the audio graph.
	FilterSpec string `yaml:"filter_spec"`
}

// Load reads and strictly decodes the YAML document at path, rejecting
// unknown fields so a typo in a config file fails fast instead of
// silently falling back to a zero value.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		return fmt.Errorf("config: video width/height must be positive")
	}
	if c.Video.PixelFormat == "" {
		return fmt.Errorf("config: video.pixel_format is required")
	}
	if _, _, err := parseRational(c.Video.FrameRate); err != nil {
		return fmt.Errorf("config: video.frame_rate: %w", err)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("config: audio.sample_rate must be positive")
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("config: audio.channels must be positive")
	}
	return nil
}

func parseRational(s string) (num, den int, err error) {
	if s == "" {
		return 0, 0, fmt.Errorf("empty rational")
	}
	if _, err := fmt.Sscanf(s, "%d/%d", &num, &den); err != nil {
		return 0, 0, fmt.Errorf("expected NUM/DEN, got %q: %w", s, err)
	}
	if den == 0 {
		return 0, 0, fmt.Errorf("denominator cannot be zero in %q", s)
	}
	return num, den, nil
}

// VideoSpec converts the YAML video config into a filter.VideoSpec.
func (c *Config) VideoSpec() filter.VideoSpec {
	num, den, _ := parseRational(c.Video.FrameRate)
	fieldCount := c.Video.FieldCount
	if fieldCount < 1 {
		if c.Video.Interlaced {
			fieldCount = 2
		} else {
			fieldCount = 1
		}
	}
	return filter.VideoSpec{
		Width:       c.Video.Width,
		Height:      c.Video.Height,
		PixelFormat: c.Video.PixelFormat,
		FrameRate:   media.Rational{Num: num, Den: den},
		Interlaced:  c.Video.Interlaced,
		FieldOrder:  c.Video.FieldOrder,
		FieldCount:  fieldCount,
		Spec:        c.Video.FilterSpec,
	}
}

// AudioSpec converts the YAML audio config into a filter.AudioSpec.
func (c *Config) AudioSpec() filter.AudioSpec {
	return filter.AudioSpec{
		SampleRate: c.Audio.SampleRate,
		SampleFmt:  c.Audio.SampleFmt,
		Channels:   c.Audio.Channels,
		Spec:       c.Audio.FilterSpec,
	}
}
