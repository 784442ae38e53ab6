package namelist

import (
	"reflect"
	"strings"
	"testing"
)

func TestFormatReal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{in: 80, want: "80.0"},
		{in: 0.2, want: "0.2"},
		{in: 0.001, want: "0.001"},
		{in: 0.005781, want: "0.005781"},
		{in: 1e-05, want: "1e-05"},
		{in: 0, want: "0.0"},
		{in: -4, want: "-4.0"},
		{in: 1.5e16, want: "1.5e+16"},
		{in: 0.703000030517578, want: "0.703000030517578"},
	}

	for _, tt := range tests {
		if got := FormatReal(tt.in); got != tt.want {
			t.Fatalf("FormatReal(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigString(t *testing.T) {
	t.Parallel()

	c := New()
	c.Set("af", 1.0)
	c.Set("npart", 100)
	c.Set("method", "MSM")
	c.Set("cdm", false)
	c.Set("SC", true)

	want := strings.Join([]string{
		"af                   = 1.0",
		"npart                = 100",
		"method               = MSM",
		"cdm                  = .false.",
		"SC                   = .true.",
	}, "\n")
	if got := c.String(); got != want {
		t.Fatalf("String() =\n%s\nwant\n%s", got, want)
	}
}

func TestLongKeyIsNotTruncated(t *testing.T) {
	t.Parallel()

	c := New()
	c.Set("a_very_long_parameter_name", 1)
	if got, want := c.String(), "a_very_long_parameter_name = 1"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestSetKeepsPosition(t *testing.T) {
	t.Parallel()

	c := New()
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	want := []Entry{{Key: "a", Value: 3}, {Key: "b", Value: 2}}
	if got := c.Entries(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Entries() = %v, want %v", got, want)
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	c := New()
	c.Set("npart", 100)
	c.Set("FlagPeriod", 1)
	c.Merge(map[string]any{
		"flagperiod": 0,
		"zeta":       true,
		"alpha":      "x",
	})

	want := []Entry{
		{Key: "npart", Value: 100},
		{Key: "FlagPeriod", Value: 0},
		{Key: "alpha", Value: "x"},
		{Key: "zeta", Value: true},
	}
	if got := c.Entries(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Entries() = %v, want %v", got, want)
	}
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	c := New()
	c.Set("af", 0.5)
	c.Set("nsteps", 12)
	c.Set("method", "MSM")
	c.Set("verbose", false)
	c.Set("dcell_min", 1e-05)

	parsed, err := Parse(strings.NewReader(c.String()))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !reflect.DeepEqual(parsed.Entries(), c.Entries()) {
		t.Fatalf("Parse(String()) = %v, want %v", parsed.Entries(), c.Entries())
	}
}

func TestParseValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want any
	}{
		{in: ".TRUE.", want: true},
		{in: ".f.", want: false},
		{in: "42", want: 42},
		{in: "0.1D+01", want: 1.0},
		{in: "'tree_bricks001'", want: "tree_bricks001"},
		{in: "MSM", want: "MSM"},
	}
	for _, tt := range tests {
		if got := ParseValue(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParseValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestParseRejectsMissingEquals(t *testing.T) {
	t.Parallel()

	if _, err := Parse(strings.NewReader("af = 1.0\nnonsense\n")); err == nil {
		t.Fatalf("Parse expected error for a line without '='")
	}
}
