package rtmpproto

import (
	"bytes"
	"testing"
)

func TestWriteChunkReassemblesExactBody(t *testing.T) {
	body := bytes.Repeat([]byte{0x11, 0x22, 0x33}, 100)

	var buf bytes.Buffer
	if err := WriteChunk(&buf, 4, MessageTypeVideo, 42, 1, body, DefaultChunkSize); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	p := NewChunkParser()
	var got []byte
	var csID uint32
	var msgType byte
	var ts int64
	for got == nil {
		var err error
		csID, err = p.ReadChunk(&buf)
		if err != nil {
			t.Fatalf("ReadChunk: %v", err)
		}
		if b, mt, t2, ok := p.GetCompleteMessage(csID); ok {
			got, msgType, ts = b, mt, t2
		}
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("reassembled body length %d, want %d (mismatch)", len(got), len(body))
	}
	if msgType != MessageTypeVideo {
		t.Fatalf("msgType = %d, want MessageTypeVideo", msgType)
	}
	if ts != 42 {
		t.Fatalf("timestamp = %d, want 42", ts)
	}
	if _, _, _, ok := p.GetCompleteMessage(csID); ok {
		t.Fatal("GetCompleteMessage should only return a completed message once")
	}
}

func TestParseSetChunkSize(t *testing.T) {
	body := []byte{0x00, 0x00, 0x10, 0x00} // 4096
	size, err := ParseSetChunkSize(body)
	if err != nil {
		t.Fatalf("ParseSetChunkSize: %v", err)
	}
	if size != 4096 {
		t.Fatalf("size = %d, want 4096", size)
	}
}

func TestParseSetChunkSizeRejectsOversized(t *testing.T) {
	body := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := ParseSetChunkSize(body); err != ErrChunkTooLarge {
		t.Fatalf("err = %v, want ErrChunkTooLarge", err)
	}
}

func TestParseSetChunkSizeRejectsShortBody(t *testing.T) {
	if _, err := ParseSetChunkSize([]byte{0x01}); err == nil {
		t.Fatal("expected an error for a truncated body")
	}
}

func TestParseVideoTagAVCSequenceHeader(t *testing.T) {
	// frame_type=1 (key), codec_id=7 (AVC); packet_type=0 (sequence
	// header); composition offset 0.
	body := []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0xDE, 0xAD}
	tag, err := ParseVideoTag(body)
	if err != nil {
		t.Fatalf("ParseVideoTag: %v", err)
	}
	if tag.FrameType != 1 || tag.CodecID != CodecIDAVC || !tag.IsSequence {
		t.Fatalf("tag = %+v, want key frame AVC sequence header", tag)
	}
	if !bytes.Equal(tag.Payload, []byte{0xDE, 0xAD}) {
		t.Fatalf("payload = %v, want [DE AD]", tag.Payload)
	}
}

func TestParseVideoTagNegativeComposition(t *testing.T) {
	// packet_type=1 (NALU), composition = -1 (0xFFFFFF, sign bit set).
	body := []byte{0x27, 0x01, 0xFF, 0xFF, 0xFF, 0x01}
	tag, err := ParseVideoTag(body)
	if err != nil {
		t.Fatalf("ParseVideoTag: %v", err)
	}
	if tag.Composition != -1 {
		t.Fatalf("Composition = %d, want -1", tag.Composition)
	}
}

func TestParseVideoTagNonAVCHasNoPacketHeader(t *testing.T) {
	// codec_id=2 (Sorenson H.263): no AVC packet header to strip.
	body := []byte{0x12, 0xAA, 0xBB}
	tag, err := ParseVideoTag(body)
	if err != nil {
		t.Fatalf("ParseVideoTag: %v", err)
	}
	if tag.IsSequence {
		t.Fatal("non-AVC codec should never report IsSequence")
	}
	if !bytes.Equal(tag.Payload, []byte{0xAA, 0xBB}) {
		t.Fatalf("payload = %v, want [AA BB]", tag.Payload)
	}
}

func TestParseAudioTagAACSequenceHeader(t *testing.T) {
	// sound_format=10 (AAC), packet_type=0 (AudioSpecificConfig).
	body := []byte{0xAF, 0x00, 0x12, 0x10}
	tag, err := ParseAudioTag(body)
	if err != nil {
		t.Fatalf("ParseAudioTag: %v", err)
	}
	if tag.SoundFormat != CodecIDAAC || !tag.IsSequence {
		t.Fatalf("tag = %+v, want AAC sequence header", tag)
	}
	if !bytes.Equal(tag.Payload, []byte{0x12, 0x10}) {
		t.Fatalf("payload = %v, want [12 10]", tag.Payload)
	}
}

func TestParseAudioTagNonAACHasNoPacketType(t *testing.T) {
	body := []byte{0x20, 0x01, 0x02} // sound_format=2 (MP3)
	tag, err := ParseAudioTag(body)
	if err != nil {
		t.Fatalf("ParseAudioTag: %v", err)
	}
	if !bytes.Equal(tag.Payload, []byte{0x01, 0x02}) {
		t.Fatalf("payload = %v, want [01 02]", tag.Payload)
	}
}

func TestVideoCodecName(t *testing.T) {
	if VideoCodecName(CodecIDAVC) != "h264" {
		t.Fatalf("VideoCodecName(AVC) = %q, want h264", VideoCodecName(CodecIDAVC))
	}
}

func TestAudioCodecName(t *testing.T) {
	if AudioCodecName(CodecIDAAC) != "aac" {
		t.Fatalf("AudioCodecName(AAC) = %q, want aac", AudioCodecName(CodecIDAAC))
	}
}
