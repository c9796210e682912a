package command

import "testing"

func TestParseLoop(t *testing.T) {
	c, err := Parse("LOOP 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Kind != KindLoop || !c.Bool {
		t.Fatalf("got %+v, want LOOP true", c)
	}

	c, err = Parse("loop 0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Bool {
		t.Fatalf("got LOOP true, want false")
	}
}

func TestParseInOut(t *testing.T) {
	c, err := Parse("IN 100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Kind != KindIn || c.Frame != 100 {
		t.Fatalf("got %+v, want IN 100", c)
	}
	c, err = Parse("OUT 200")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Kind != KindOut || c.Frame != 200 {
		t.Fatalf("got %+v, want OUT 200", c)
	}
}

func TestParseSeekVariants(t *testing.T) {
	cases := []struct {
		line string
		base SeekBase
	}{
		{"SEEK 42", SeekAbsolute},
		{"SEEK REL 10", SeekRelative},
		{"SEEK IN 5", SeekIn},
		{"SEEK OUT -5", SeekOut},
		{"SEEK END 0", SeekEnd},
	}
	for _, tc := range cases {
		c, err := Parse(tc.line)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.line, err)
		}
		if c.Kind != KindSeek || c.Base != tc.base {
			t.Fatalf("%q: got %+v, want base %v", tc.line, c, tc.base)
		}
	}
}

func TestParseUnknownCommand(t *testing.T) {
	if _, err := Parse("FROB 1"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestParseBadArgs(t *testing.T) {
	if _, err := Parse("LOOP"); err == nil {
		t.Fatal("expected error for missing LOOP argument")
	}
	if _, err := Parse("IN abc"); err == nil {
		t.Fatal("expected error for non-numeric IN argument")
	}
}

func TestResolveClampsToBounds(t *testing.T) {
	c := Command{Kind: KindSeek, Base: SeekAbsolute, Frame: 1000}
	if got := Resolve(c, 0, 0, 0, 100); got != 99 {
		t.Fatalf("got %d, want 99", got)
	}

	c = Command{Kind: KindSeek, Base: SeekRelative, Offset: -50}
	if got := Resolve(c, 10, 0, 0, 100); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}

	c = Command{Kind: KindSeek, Base: SeekIn, Offset: 5}
	if got := Resolve(c, 0, 20, 0, 100); got != 25 {
		t.Fatalf("got %d, want 25", got)
	}
}
