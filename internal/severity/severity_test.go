package severity

import "testing"

func TestCodeRoundTrip(t *testing.T) {
	cases := []struct {
		sev  Severity
		code int
	}{
		{Debug, 2},
		{Info, 4},
		{Warn, 6},
		{Error, 8},
		{Fatal, 1000},
	}

	for _, tc := range cases {
		if got := tc.sev.Code(); got != tc.code {
			t.Errorf("%s.Code() = %d, want %d", tc.sev, got, tc.code)
		}
		if got := FromCode(tc.code); got != tc.sev {
			t.Errorf("FromCode(%d) = %s, want %s", tc.code, got, tc.sev)
		}
	}
}

func TestFromCodeFallback(t *testing.T) {
	for _, code := range []int{0, 1, 3, 5, 7, 9, 999, 1001, -4} {
		if got := FromCode(code); got != Info {
			t.Errorf("FromCode(%d) = %s, want INFO", code, got)
		}
	}
}

func TestOrdering(t *testing.T) {
	if !(Debug < Info && Info < Warn && Warn < Error && Error < Fatal) {
		t.Fatal("severity ordering broken")
	}
}

func TestParse(t *testing.T) {
	cases := map[string]Severity{
		"debug":   Debug,
		"INFO":    Info,
		"Warn":    Warn,
		"warning": Warn,
		"error":   Error,
		"FATAL":   Fatal,
		"":        Info,
		"verbose": Info,
		" error ": Error,
	}
	for in, want := range cases {
		if got := Parse(in); got != want {
			t.Errorf("Parse(%q) = %s, want %s", in, got, want)
		}
	}
}
