package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "playhead.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
video:
  width: 1920
  height: 1080
  pixel_format: yuv444p
  frame_rate: "30000/1001"
  interlaced: true
audio:
  sample_rate: 48000
  sample_format: s32
  channels: 2
queue_capacity: 32
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Video.Width != 1920 || cfg.Video.Height != 1080 {
		t.Fatalf("unexpected video dims: %+v", cfg.Video)
	}
	if cfg.QueueCapacity != 32 {
		t.Fatalf("QueueCapacity = %d, want 32", cfg.QueueCapacity)
	}

	spec := cfg.VideoSpec()
	if spec.FrameRate.Num != 30000 || spec.FrameRate.Den != 1001 {
		t.Fatalf("VideoSpec.FrameRate = %+v, want 30000/1001", spec.FrameRate)
	}
	if spec.FieldCount != 2 {
		t.Fatalf("interlaced config should default FieldCount to 2, got %d", spec.FieldCount)
	}

	aspec := cfg.AudioSpec()
	if aspec.SampleRate != 48000 || aspec.Channels != 2 {
		t.Fatalf("unexpected AudioSpec: %+v", aspec)
	}
}

func TestLoadProgressiveDefaultsFieldCountToOne(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
video:
  width: 1280
  height: 720
  pixel_format: yuv444p
  frame_rate: "25/1"
audio:
  sample_rate: 48000
  channels: 2
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.VideoSpec().FieldCount; got != 1 {
		t.Fatalf("FieldCount = %d, want 1", got)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, validYAML+"\nbogus_field: true\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown top-level field")
	}
}

func TestLoadRejectsMissingPixelFormat(t *testing.T) {
	_, err := Load(writeConfig(t, `
video:
  width: 1920
  height: 1080
  frame_rate: "30/1"
audio:
  sample_rate: 48000
  channels: 2
`))
	if err == nil {
		t.Fatal("expected an error for a missing pixel_format")
	}
}

func TestLoadRejectsBadFrameRate(t *testing.T) {
	_, err := Load(writeConfig(t, `
video:
  width: 1920
  height: 1080
  pixel_format: yuv444p
  frame_rate: "not-a-rational"
audio:
  sample_rate: 48000
  channels: 2
`))
	if err == nil {
		t.Fatal("expected an error for a malformed frame_rate")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error opening a nonexistent file")
	}
}
