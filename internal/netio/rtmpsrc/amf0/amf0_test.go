package amf0

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeString(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, "connect"); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeString(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "connect" {
		t.Fatalf("got %q, want %q", got, "connect")
	}
}

func TestEncodeDecodeNumber(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, float64(42)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.(float64) != 42 {
		t.Fatalf("got %v, want 42", v)
	}
}

func TestEncodeDecodeObject(t *testing.T) {
	obj := Object{"app": "live", "audioChannels": float64(2)}
	var buf bytes.Buffer
	if err := Encode(&buf, obj); err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := v.(Object)
	if got["app"] != "live" || got["audioChannels"] != float64(2) {
		t.Fatalf("got %+v, want app=live audioChannels=2", got)
	}
}

func TestEncodeDecodeStrictArray(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Array{"a", float64(1), true}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	arr, ok := v.(Array)
	if !ok || len(arr) != 3 {
		t.Fatalf("got %#v, want a 3-element Array", v)
	}
	if arr[0].(string) != "a" || arr[1].(float64) != 1 || arr[2].(bool) != true {
		t.Fatalf("got %+v, want [a 1 true]", arr)
	}
}

func TestDecodeLongString(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(TypeLongString)
	binary.Write(&buf, binary.BigEndian, uint32(5))
	buf.WriteString("hello")

	v, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.(string) != "hello" {
		t.Fatalf("got %v, want hello", v)
	}
}

func TestDecodeDateIgnoresTimezone(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(TypeDate)
	binary.Write(&buf, binary.BigEndian, float64(1000))
	binary.Write(&buf, binary.BigEndian, int16(120))

	v, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.(float64) != 1000 {
		t.Fatalf("got %v, want 1000", v)
	}
}

func TestStatusCodeFindsCodeInInfoObject(t *testing.T) {
	cmd := Array{
		"onStatus", float64(0), nil,
		Object{"level": "status", "code": "NetStream.Play.Start"},
	}
	code, ok := StatusCode(cmd)
	if !ok || code != "NetStream.Play.Start" {
		t.Fatalf("StatusCode = (%q, %v), want (NetStream.Play.Start, true)", code, ok)
	}
}

func TestStatusCodeMissingReportsNotOK(t *testing.T) {
	cmd := Array{"_result", float64(1)}
	if _, ok := StatusCode(cmd); ok {
		t.Fatal("StatusCode should report ok=false when no argument carries a code")
	}
}

func TestDecodeCommandDecodesTrailingInfoObjectInFull(t *testing.T) {
	var buf bytes.Buffer
	Encode(&buf, "onStatus")
	Encode(&buf, float64(0))
	Encode(&buf, nil)
	Encode(&buf, Object{"level": "error", "code": "NetStream.Publish.BadName"})

	arr, err := DecodeCommand(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode command: %v", err)
	}
	code, ok := StatusCode(arr)
	if !ok || code != "NetStream.Publish.BadName" {
		t.Fatalf("StatusCode(DecodeCommand(...)) = (%q, %v), want (NetStream.Publish.BadName, true)", code, ok)
	}
}

func TestDecodeCommandReadsNameAndTransactionID(t *testing.T) {
	var buf bytes.Buffer
	Encode(&buf, "connect")
	Encode(&buf, float64(1))
	Encode(&buf, Object{"app": "live"})

	arr, err := DecodeCommand(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if len(arr) < 2 {
		t.Fatalf("got %d values, want at least 2", len(arr))
	}
	if arr[0].(string) != "connect" {
		t.Fatalf("got name %v, want connect", arr[0])
	}
	if arr[1].(float64) != 1 {
		t.Fatalf("got transaction id %v, want 1", arr[1])
	}
}
