// Package dsv splits delimiter-separated text lines into raw column strings.
// The delimiter may be any non-empty string, and double quotes open a span
// inside which delimiter characters are ordinary data. Tokenization is
// best-effort and never fails: unbalanced quotes and trailing delimiters are
// absorbed rather than reported.
package dsv

import "strings"

// Tokenize splits one line into its ordered raw columns.
//
// A blank or all-whitespace line yields nil, not a one-element slice holding
// an empty string. Each emitted column is trimmed of surrounding whitespace;
// a trailing delimiter therefore produces a trailing empty column. When
// delimiter is empty the whole line is a single column.
//
// The scan is a single left-to-right pass. Whitespace directly after a
// delimiter is skipped. Inside a quoted span the quote state takes priority:
// delimiter characters are literal data and a '"' closes the span. Outside a
// span, characters are matched against the delimiter one at a time; when a
// partial match breaks, the already-consumed delimiter prefix is re-injected
// as literal text and the breaking character is re-evaluated from scratch,
// since it may itself start a fresh match or open a quote. A '"' seen with
// an empty column buffer opens a quoted span (the quote is dropped); with a
// non-empty buffer it is kept as a literal embedded quote.
func Tokenize(line, delimiter string) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if delimiter == "" {
		return []string{strings.TrimSpace(line)}
	}

	var (
		cols       []string
		buf        strings.Builder
		inQuotes   bool
		afterDelim bool
		di         int // next delimiter byte expected
	)

	for i := 0; i < len(line); i++ {
		ch := line[i]

		if afterDelim {
			if isSpace(ch) {
				continue
			}
			afterDelim = false
		}

		// The inner loop re-evaluates ch after a broken partial match.
		for {
			if inQuotes {
				if ch == '"' {
					inQuotes = false
				} else {
					buf.WriteByte(ch)
				}
				break
			}

			if ch == delimiter[di] {
				di++
				if di == len(delimiter) {
					cols = append(cols, strings.TrimSpace(buf.String()))
					buf.Reset()
					di = 0
					afterDelim = true
				}
				break
			}

			if di > 0 {
				// ch broke a partial delimiter match: the consumed prefix
				// was ordinary data after all.
				buf.WriteString(delimiter[:di])
				di = 0
				continue
			}

			if ch == '"' {
				if buf.Len() == 0 {
					inQuotes = true
				} else {
					buf.WriteByte('"')
				}
				break
			}

			buf.WriteByte(ch)
			break
		}
	}

	cols = append(cols, strings.TrimSpace(buf.String()))
	return cols
}

func isSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
