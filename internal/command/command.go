// Package command parses the producer's small text command surface
// (LOOP, IN, OUT, LENGTH, SEEK) used to control an already-open Producer
// from a higher-level protocol layer.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownCommand is returned for any verb this package does not
// recognize.
var ErrUnknownCommand = errors.New("command: unknown command")

// ErrBadArgs is returned when a recognized verb has malformed arguments.
var ErrBadArgs = errors.New("command: bad arguments")

// Kind identifies which command a parsed Command carries.
type Kind int

const (
	KindLoop Kind = iota
	KindIn
	KindOut
	KindLength
	KindSeek
)

// SeekBase names what a SEEK offset is relative to.
type SeekBase int

const (
	SeekAbsolute SeekBase = iota
	SeekRelative
	SeekIn
	SeekOut
	SeekEnd
)

// Command is one parsed instruction from the text command surface.
type Command struct {
	Kind     Kind
	Bool     bool
	Frame    int64
	Base     SeekBase
	Offset   int64
}

// Parse parses a single command line such as "SEEK IN 10" or "LOOP 1".
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrBadArgs
	}
	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	switch verb {
	case "LOOP":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: LOOP takes exactly one argument", ErrBadArgs)
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrBadArgs, err)
		}
		return Command{Kind: KindLoop, Bool: v != 0}, nil

	case "IN":
		f, err := parseFrame(args)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindIn, Frame: f}, nil

	case "OUT":
		f, err := parseFrame(args)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindOut, Frame: f}, nil

	case "LENGTH":
		f, err := parseFrame(args)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindLength, Frame: f}, nil

	case "SEEK":
		return parseSeek(args)

	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
}

func parseFrame(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected a single frame index", ErrBadArgs)
	}
	f, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	return f, nil
}

func parseSeek(args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("%w: SEEK needs at least one argument", ErrBadArgs)
	}

	switch strings.ToUpper(args[0]) {
	case "REL":
		off, err := parseOffset(args[1:])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindSeek, Base: SeekRelative, Offset: off}, nil
	case "IN":
		off, err := parseOffset(args[1:])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindSeek, Base: SeekIn, Offset: off}, nil
	case "OUT":
		off, err := parseOffset(args[1:])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindSeek, Base: SeekOut, Offset: off}, nil
	case "END":
		off, err := parseOffset(args[1:])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindSeek, Base: SeekEnd, Offset: off}, nil
	default:
		f, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrBadArgs, err)
		}
		return Command{Kind: KindSeek, Base: SeekAbsolute, Frame: f}, nil
	}
}

func parseOffset(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, nil
	}
	off, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	return off, nil
}

// Resolve turns a KindSeek Command into an absolute frame index, clamped
// to [0, nbFrames), given the current position and the clip's IN/OUT
// bounds.
func Resolve(c Command, current, in, out, nbFrames int64) int64 {
	var target int64
	switch c.Base {
	case SeekRelative:
		target = current + c.Offset
	case SeekIn:
		target = in + c.Offset
	case SeekOut:
		target = out + c.Offset
	case SeekEnd:
		target = nbFrames - 1 + c.Offset
	default:
		target = c.Frame
	}
	if target < 0 {
		target = 0
	}
	if nbFrames > 0 && target >= nbFrames {
		target = nbFrames - 1
	}
	return target
}
