package dsv

import (
	"strings"
	"testing"
)

func assertColumns(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d columns %q, want %d %q", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("column %d = %q, want %q (all: %q)", i, got[i], want[i], got)
		}
	}
}

func TestTokenizeBlankLineIsAbsent(t *testing.T) {
	for _, line := range []string{"", "   ", "\t \t"} {
		if got := Tokenize(line, ","); got != nil {
			t.Fatalf("Tokenize(%q) = %q, want nil", line, got)
		}
	}
}

func TestTokenizeJoinRoundTrip(t *testing.T) {
	cases := [][]string{
		{"a"},
		{"a", "b"},
		{"alpha", "beta", "gamma", "delta"},
		{"x", "", "z"},
	}
	for _, want := range cases {
		for _, delim := range []string{",", "::", "|#|"} {
			line := strings.Join(want, delim)
			assertColumns(t, Tokenize(line, delim), want)
		}
	}
}

func TestTokenizeMultiCharDelimiter(t *testing.T) {
	assertColumns(t, Tokenize("a::b::c", "::"), []string{"a", "b", "c"})
}

func TestTokenizeQuotedSpanHidesDelimiter(t *testing.T) {
	// Two values, a::b and c, quoted and joined by the :: delimiter. The
	// delimiter inside the quoted span is data, not a separator.
	assertColumns(t, Tokenize(`"a::b"::"c"`, "::"), []string{"a::b", "c"})
	assertColumns(t, Tokenize(`"x,y",z`, ","), []string{"x,y", "z"})
}

func TestTokenizePartialDelimiterIsLiteral(t *testing.T) {
	assertColumns(t, Tokenize("a:b", "::"), []string{"a:b"})
	assertColumns(t, Tokenize("a:", "::"), []string{"a"})
	assertColumns(t, Tokenize("a:::b", "::"), []string{"a", ":b"})
}

func TestTokenizeBrokenMatchCanRestartDelimiter(t *testing.T) {
	// The 'a' that breaks the first partial "ab" match itself begins a
	// fresh, completing match.
	assertColumns(t, Tokenize("xaab y", "ab"), []string{"xa", "y"})
}

func TestTokenizeTrailingDelimiterEmitsEmptyColumn(t *testing.T) {
	assertColumns(t, Tokenize("a,b,", ","), []string{"a", "b", ""})
	assertColumns(t, Tokenize("a::", "::"), []string{"a", ""})
}

func TestTokenizeWhitespaceAfterDelimiterSkipped(t *testing.T) {
	assertColumns(t, Tokenize("a,\t  b,  c", ","), []string{"a", "b", "c"})
}

func TestTokenizeColumnsAreTrimmed(t *testing.T) {
	assertColumns(t, Tokenize("  a  ,b  ", ","), []string{"a", "b"})
}

func TestTokenizeEmbeddedQuoteIsLiteral(t *testing.T) {
	// A quote arriving while the buffer has content does not open a span.
	assertColumns(t, Tokenize(`ab"cd,e`, ","), []string{`ab"cd`, "e"})
}

func TestTokenizeUnterminatedQuoteAbsorbed(t *testing.T) {
	assertColumns(t, Tokenize(`"abc,def`, ","), []string{"abc,def"})
}

func TestTokenizeEmptyDelimiterSingleColumn(t *testing.T) {
	assertColumns(t, Tokenize("  a,b  ", ""), []string{"a,b"})
}
