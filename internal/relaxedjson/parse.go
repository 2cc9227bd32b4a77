package relaxedjson

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Options configures a single Parse call. There is no shared parser state:
// every call builds its result from the options it was handed, so concurrent
// callers with different options never observe each other.
type Options struct {
	// CoerceKeys converts textual object keys to typed scalar keys via
	// CoerceKey, recursively in every nested object. Array elements and
	// string values are never coerced.
	CoerceKeys bool
}

// ErrNoValue is returned by Parse for an empty or all-whitespace document.
// It is not a syntax error; callers decide whether an absent document is
// acceptable.
var ErrNoValue = errors.New("relaxedjson: document holds no value")

// ParseError describes malformed input, with the byte offset and 1-based
// line of the offending character.
type ParseError struct {
	Message string
	Offset  int
	Line    int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("relaxedjson: %s at line %d (offset %d)", e.Message, e.Line, e.Offset)
}

// Parse reads a single relaxed-JSON document from text. Trailing and leading
// whitespace is tolerated; anything else after the first value is an error.
// An empty document yields (NullValue(), ErrNoValue).
func Parse(text string, opts Options) (Value, error) {
	p := &scanner{src: text, line: 1, coerce: opts.CoerceKeys}
	p.skipSpace()
	if p.eof() {
		return NullValue(), ErrNoValue
	}
	v, err := p.parseValue()
	if err != nil {
		return NullValue(), err
	}
	p.skipSpace()
	if !p.eof() {
		return NullValue(), p.errf("unexpected character %q after document", p.src[p.pos])
	}
	return v, nil
}

type scanner struct {
	src    string
	pos    int
	line   int
	coerce bool
}

func (p *scanner) eof() bool { return p.pos >= len(p.src) }

func (p *scanner) errf(format string, args ...any) error {
	return &ParseError{Message: fmt.Sprintf(format, args...), Offset: p.pos, Line: p.line}
}

func (p *scanner) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\n':
			p.line++
			p.pos++
		case ' ', '\t', '\r', '\f', '\v':
			p.pos++
		default:
			return
		}
	}
}

func (p *scanner) parseValue() (Value, error) {
	if p.eof() {
		return NullValue(), p.errf("unexpected end of input")
	}
	switch c := p.src[p.pos]; {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"' || c == '\'':
		s, err := p.parseQuoted(c)
		if err != nil {
			return NullValue(), err
		}
		return StringValue(s), nil
	case c == 't', c == 'f', c == 'n':
		return p.parseLiteral()
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return NullValue(), p.errf("unexpected character %q", c)
	}
}

func (p *scanner) parseObject() (Value, error) {
	p.pos++ // consume '{'
	var entries []Entry
	p.skipSpace()
	if !p.eof() && p.src[p.pos] == '}' {
		p.pos++
		return MapValue(entries), nil
	}
	for {
		p.skipSpace()
		rawKey, err := p.parseKey()
		if err != nil {
			return NullValue(), err
		}
		p.skipSpace()
		if p.eof() || p.src[p.pos] != ':' {
			return NullValue(), p.errf("expected ':' after object key %q", rawKey)
		}
		p.pos++
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return NullValue(), err
		}
		key := StringValue(rawKey)
		if p.coerce {
			key = CoerceKey(rawKey)
		}
		entries = append(entries, Entry{Key: key, Val: val})

		p.skipSpace()
		if p.eof() {
			return NullValue(), p.errf("unterminated object")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return MapValue(entries), nil
		default:
			return NullValue(), p.errf("expected ',' or '}' in object, found %q", p.src[p.pos])
		}
	}
}

func (p *scanner) parseArray() (Value, error) {
	p.pos++ // consume '['
	var elems []Value
	p.skipSpace()
	if !p.eof() && p.src[p.pos] == ']' {
		p.pos++
		return ListValue(elems), nil
	}
	for {
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return NullValue(), err
		}
		elems = append(elems, v)

		p.skipSpace()
		if p.eof() {
			return NullValue(), p.errf("unterminated array")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return ListValue(elems), nil
		default:
			return NullValue(), p.errf("expected ',' or ']' in array, found %q", p.src[p.pos])
		}
	}
}

// parseKey reads an object key: double-quoted, single-quoted, or a bare
// token. Bare keys cover identifiers as well as numeric and boolean keys
// such as {1: "a", true: "b"}; they end at ':', ',', a brace, or whitespace.
func (p *scanner) parseKey() (string, error) {
	if p.eof() {
		return "", p.errf("unexpected end of input in object")
	}
	if c := p.src[p.pos]; c == '"' || c == '\'' {
		return p.parseQuoted(c)
	}
	start := p.pos
	for p.pos < len(p.src) && isBareKeyByte(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errf("expected object key, found %q", p.src[p.pos])
	}
	return p.src[start:p.pos], nil
}

func isBareKeyByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '$' || c == '.' || c == '-' || c == '+':
		return true
	case c >= utf8.RuneSelf:
		// Non-ASCII identifier characters pass through verbatim.
		return true
	default:
		return false
	}
}

func (p *scanner) parseQuoted(quote byte) (string, error) {
	p.pos++ // consume opening quote
	var sb strings.Builder
	for {
		if p.eof() {
			return "", p.errf("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return sb.String(), nil
		case c == '\\':
			p.pos++
			if err := p.readEscape(&sb); err != nil {
				return "", err
			}
		case c == '\n':
			return "", p.errf("newline in string")
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
}

func (p *scanner) readEscape(sb *strings.Builder) error {
	if p.eof() {
		return p.errf("unterminated escape sequence")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '"', '\'', '\\', '/':
		sb.WriteByte(c)
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'u':
		r, err := p.readHexRune()
		if err != nil {
			return err
		}
		if utf16.IsSurrogate(r) && p.pos+1 < len(p.src) && p.src[p.pos] == '\\' && p.src[p.pos+1] == 'u' {
			p.pos += 2
			r2, err := p.readHexRune()
			if err != nil {
				return err
			}
			r = utf16.DecodeRune(r, r2)
		}
		sb.WriteRune(r)
	default:
		return p.errf("invalid escape character %q", c)
	}
	return nil
}

func (p *scanner) readHexRune() (rune, error) {
	if p.pos+4 > len(p.src) {
		return 0, p.errf("truncated \\u escape")
	}
	n, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32)
	if err != nil {
		return 0, p.errf("invalid \\u escape %q", p.src[p.pos:p.pos+4])
	}
	p.pos += 4
	return rune(n), nil
}

func (p *scanner) parseLiteral() (Value, error) {
	rest := p.src[p.pos:]
	switch {
	case strings.HasPrefix(rest, "true"):
		p.pos += 4
		return BoolValue(true), nil
	case strings.HasPrefix(rest, "false"):
		p.pos += 5
		return BoolValue(false), nil
	case strings.HasPrefix(rest, "null"):
		p.pos += 4
		return NullValue(), nil
	default:
		return NullValue(), p.errf("invalid literal")
	}
}

func (p *scanner) parseNumber() (Value, error) {
	start := p.pos
	if c := p.src[p.pos]; c == '-' || c == '+' {
		p.pos++
	}
	digits := 0
	isFloat := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c >= '0' && c <= '9':
			digits++
			p.pos++
		case c == '.' || c == 'e' || c == 'E':
			isFloat = true
			p.pos++
			if c != '.' && p.pos < len(p.src) && (p.src[p.pos] == '-' || p.src[p.pos] == '+') {
				p.pos++
			}
		default:
			goto done
		}
	}
done:
	lit := p.src[start:p.pos]
	if digits == 0 {
		return NullValue(), p.errf("invalid number %q", lit)
	}
	if !isFloat {
		n, err := strconv.ParseInt(lit, 10, 64)
		if err == nil {
			if n >= math.MinInt32 && n <= math.MaxInt32 {
				return Int32Value(int32(n)), nil
			}
			return Int64Value(n), nil
		}
		// Integer overflow degrades to float, like the number handling of
		// ordinary JSON decoders.
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return NullValue(), p.errf("invalid number %q", lit)
	}
	return Float64Value(f), nil
}
