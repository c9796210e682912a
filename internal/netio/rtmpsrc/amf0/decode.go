// This file implements AMF0 decoding for RTMP command messages.
// Decodes the types an RTMP client meets in command replies: number,
// boolean, string, null, object, ECMA array, strict array, date and long
// string.

package amf0

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrUnexpectedType = errors.New("unexpected AMF0 type")
	ErrInvalidData    = errors.New("invalid AMF0 data")
)

// Decode reads and decodes a single AMF0 value from the reader.
// Returns the decoded value and any error.
func Decode(r io.Reader) (Value, error) {
	var typeMarker byte
	if err := binary.Read(r, binary.BigEndian, &typeMarker); err != nil {
		return nil, err
	}

	switch typeMarker {
	case TypeNumber:
		return decodeNumber(r)
	case TypeBoolean:
		return decodeBoolean(r)
	case TypeString:
		return decodeString(r)
	case TypeNull, TypeUndefined:
		return nil, nil
	case TypeObject:
		return decodeObject(r)
	case TypeECMAArray:
		return decodeECMAArray(r)
	case TypeStrictArray:
		return decodeStrictArray(r)
	case TypeDate:
		return decodeDate(r)
	case TypeLongString:
		return decodeLongString(r)
	default:
		return nil, ErrUnexpectedType
	}
}

// decodeStrictArray decodes an AMF0 strict array, the type onStatus/_result
// info objects use for nested lists (e.g. a "data" or "trackInfo" member).
func decodeStrictArray(r io.Reader) (Array, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	arr := make(Array, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := Decode(r)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	return arr, nil
}

// decodeDate decodes an AMF0 date: a double milliseconds-since-epoch
// followed by a 16-bit timezone offset that every encoder sets to zero and
// every decoder should therefore ignore.
func decodeDate(r io.Reader) (float64, error) {
	var ms float64
	if err := binary.Read(r, binary.BigEndian, &ms); err != nil {
		return 0, err
	}
	var tz int16
	if err := binary.Read(r, binary.BigEndian, &tz); err != nil {
		return 0, err
	}
	return ms, nil
}

// decodeLongString decodes an AMF0 long string (32-bit length prefix),
// used for description strings in onStatus info objects long enough to
// overflow the regular 16-bit string type.
func decodeLongString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// DecodeString reads an AMF0 string value.
func DecodeString(r io.Reader) (string, error) {
	var typeMarker byte
	if err := binary.Read(r, binary.BigEndian, &typeMarker); err != nil {
		return "", err
	}
	if typeMarker != TypeString {
		return "", ErrUnexpectedType
	}
	return decodeString(r)
}

// decodeNumber decodes an AMF0 number (double precision float64).
func decodeNumber(r io.Reader) (float64, error) {
	var num float64
	err := binary.Read(r, binary.BigEndian, &num)
	return num, err
}

// decodeBoolean decodes an AMF0 boolean.
func decodeBoolean(r io.Reader) (bool, error) {
	var b byte
	if err := binary.Read(r, binary.BigEndian, &b); err != nil {
		return false, err
	}
	return b != 0, nil
}

// decodeString decodes an AMF0 string.
func decodeString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// decodeObject decodes an AMF0 object.
func decodeObject(r io.Reader) (Object, error) {
	obj := make(Object)
	for {
		var keyLen uint16
		if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
			return nil, err
		}
		if keyLen == 0 {
			// Object end marker
			var endMarker byte
			if err := binary.Read(r, binary.BigEndian, &endMarker); err != nil {
				return nil, err
			}
			if endMarker != TypeObjectEnd {
				return nil, ErrInvalidData
			}
			break
		}
		keyBuf := make([]byte, keyLen)
		if _, err := io.ReadFull(r, keyBuf); err != nil {
			return nil, err
		}
		key := string(keyBuf)
		value, err := Decode(r)
		if err != nil {
			return nil, err
		}
		obj[key] = value
	}
	return obj, nil
}

// decodeECMAArray decodes an AMF0 ECMA array.
func decodeECMAArray(r io.Reader) (Object, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	// ECMA arrays are decoded as objects
	return decodeObject(r)
}

// SkipAny skips over any AMF0 value without decoding it.
// This allows us to skip complex types we don't need to parse.
func SkipAny(r io.Reader) error {
	var typeMarker byte
	if err := binary.Read(r, binary.BigEndian, &typeMarker); err != nil {
		return err
	}

	switch typeMarker {
	case TypeNumber:
		// Skip 8 bytes (double)
		var buf [8]byte
		_, err := io.ReadFull(r, buf[:])
		return err
	case TypeBoolean:
		// Skip 1 byte
		var b byte
		return binary.Read(r, binary.BigEndian, &b)
	case TypeString:
		// Read length, then skip that many bytes
		var length uint16
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return err
		}
		if length > 0 {
			buf := make([]byte, length)
			_, err := io.ReadFull(r, buf)
			return err
		}
		return nil
	case TypeObject:
		// Skip object key-value pairs until object end marker
		for {
			var keyLen uint16
			if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
				return err
			}
			if keyLen == 0 {
				// Object end marker
				var endMarker byte
				return binary.Read(r, binary.BigEndian, &endMarker)
			}
			// Skip key
			keyBuf := make([]byte, keyLen)
			if _, err := io.ReadFull(r, keyBuf); err != nil {
				return err
			}
			// Skip value (recursive)
			if err := SkipAny(r); err != nil {
				return err
			}
		}
	case TypeECMAArray:
		// Skip count (4 bytes), then skip as object
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return err
		}
		// ECMA arrays are structured like objects
		return SkipAny(r) // Will skip as object
	case TypeStrictArray:
		// Read count, then skip each element
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return err
		}
		for i := uint32(0); i < count; i++ {
			if err := SkipAny(r); err != nil {
				return err
			}
		}
		return nil
	case TypeNull, TypeUndefined:
		// No data to skip
		return nil
	case TypeLongString:
		// Read length (4 bytes), then skip that many bytes
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return err
		}
		if length > 0 {
			buf := make([]byte, length)
			_, err := io.ReadFull(r, buf)
			return err
		}
		return nil
	case 0x11: // AVMPlus object marker (AMF3 switch)
		// Skip AMF3 data (for now, just skip the marker)
		// NOTE: Full AMF3 support would require decoding, but we can skip it
		return nil
	default:
		return ErrUnexpectedType
	}
}

// DecodeCommand decodes an AMF0 command message: command_name (string),
// transaction_id (number), then every remaining argument decoded in full
// (command object, info object, ...) rather than skipped, so a caller can
// inspect an onStatus/_result info object's "code" and "description"
// members to tell success from rejection.
func DecodeCommand(r io.Reader) (Array, error) {
	arr := make(Array, 0, 4)

	cmdName, err := Decode(r)
	if err != nil {
		return nil, err
	}
	arr = append(arr, cmdName)

	transID, err := Decode(r)
	if err != nil {
		return arr, nil
	}
	arr = append(arr, transID)

	for {
		v, err := Decode(r)
		if err != nil {
			if err == io.EOF {
				break
			}
			// Whatever arrived so far is usable; a truncated or unknown
			// trailing argument isn't fatal to the command itself.
			break
		}
		arr = append(arr, v)
	}

	return arr, nil
}

// StatusCode extracts the "code" member of a command's info/command object,
// the field RTMP status events (onStatus, _result, _error) key off of, e.g.
// "NetConnection.Connect.Success" or "NetStream.Play.Start". ok is false if
// cmd has no object argument or the object has no "code" member.
func StatusCode(cmd Array) (code string, ok bool) {
	for _, v := range cmd {
		obj, isObj := v.(Object)
		if !isObj {
			continue
		}
		c, isStr := obj["code"].(string)
		if isStr {
			return c, true
		}
	}
	return "", false
}
