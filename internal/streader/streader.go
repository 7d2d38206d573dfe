// Package streader implements the core's JSON-subset pull parser: the
// Streader. It is a hand-rolled byte-indexed recursive-descent scanner in
// the idiom of a music-tracker text parser (each production is a method
// that reads from the Streader's current byte offset and advances it),
// extended with two domain literals JSON itself doesn't have — Tstamp
// pairs and pattern-instance references — and with the ability to mark a
// position and restart from it. The expression evaluator in internal/expr
// scans its own input and does not use the Streader.
//
// No third-party JSON library exposes restart marks or these extra
// literal kinds, so unlike the leaf document decoding in internal/tree
// (which hands plain JSON off to json-iterator), this scanner is
// handwritten — see DESIGN.md.
package streader

import (
	"strconv"
	"strings"

	"github.com/kunquat/kunquat-go/internal/kqterror"
	"github.com/kunquat/kunquat-go/internal/tstamp"
)

// Mark is a restartable position: byte offset plus the line count needed to
// keep error messages accurate after a restart.
type Mark struct {
	pos  int
	line int
}

// Streader pulls tokens from a JSON-subset byte buffer.
type Streader struct {
	data []byte
	pos  int
	line int
	path string // for error reporting; set by callers that know the source file
}

// New creates a Streader over data. path is used only for error messages.
func New(data []byte, path string) *Streader {
	return &Streader{data: data, line: 1, path: path}
}

// Mark captures the current position for a later Restart.
func (s *Streader) Mark() Mark { return Mark{pos: s.pos, line: s.line} }

// Restart rewinds to a previously captured Mark.
func (s *Streader) Restart(m Mark) { s.pos = m.pos; s.line = m.line }

// AtEnd reports whether the buffer (ignoring trailing whitespace) is exhausted.
func (s *Streader) AtEnd() bool {
	s.skipSpace()
	return s.pos >= len(s.data)
}

func (s *Streader) errf(kind kqterror.Kind, format string, args ...any) error {
	return &kqterror.Error{Kind: kind, Path: s.path, Line: s.line, Err: fmtErr(format, args...)}
}

func fmtErr(format string, args ...any) error {
	return kqterror.New(kqterror.Format, format, args...).Err
}

func (s *Streader) skipSpace() {
	for s.pos < len(s.data) {
		switch s.data[s.pos] {
		case ' ', '\t', '\r':
			s.pos++
		case '\n':
			s.pos++
			s.line++
		default:
			return
		}
	}
}

func (s *Streader) peek() (byte, bool) {
	s.skipSpace()
	if s.pos >= len(s.data) {
		return 0, false
	}
	return s.data[s.pos], true
}

func (s *Streader) expect(b byte) error {
	c, ok := s.peek()
	if !ok || c != b {
		return s.errf(kqterror.Format, "expected %q", b)
	}
	s.pos++
	return nil
}

// ReadNull consumes a `null` literal.
func (s *Streader) ReadNull() error {
	return s.readLiteral("null")
}

func (s *Streader) readLiteral(word string) error {
	s.skipSpace()
	if s.pos+len(word) > len(s.data) || string(s.data[s.pos:s.pos+len(word)]) != word {
		return s.errf(kqterror.Format, "expected %q", word)
	}
	end := s.pos + len(word)
	if end < len(s.data) && isBareContinuation(s.data[end]) {
		return s.errf(kqterror.Format, "trailing garbage after %q", word)
	}
	s.pos = end
	return nil
}

func isBareContinuation(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// IsNull reports (without consuming) whether the next token is `null`.
func (s *Streader) IsNull() bool {
	s.skipSpace()
	return strings.HasPrefix(string(s.data[s.pos:]), "null")
}

// ReadBool consumes `true` or `false`.
func (s *Streader) ReadBool() (bool, error) {
	s.skipSpace()
	if strings.HasPrefix(string(s.data[s.pos:]), "true") {
		return true, s.readLiteral("true")
	}
	if strings.HasPrefix(string(s.data[s.pos:]), "false") {
		return false, s.readLiteral("false")
	}
	return false, s.errf(kqterror.Format, "expected bool")
}

func (s *Streader) scanNumber() (string, bool /*isFloat*/, error) {
	start := s.pos
	s.skipSpace()
	start = s.pos
	if s.pos < len(s.data) && (s.data[s.pos] == '-' || s.data[s.pos] == '+') {
		s.pos++
	}
	digitsStart := s.pos
	for s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
		s.pos++
	}
	if s.pos == digitsStart {
		s.pos = start
		return "", false, s.errf(kqterror.Format, "expected number")
	}
	isFloat := false
	if s.pos < len(s.data) && s.data[s.pos] == '.' {
		isFloat = true
		s.pos++
		fracStart := s.pos
		for s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
			s.pos++
		}
		if s.pos == fracStart {
			return "", false, s.errf(kqterror.Format, "malformed float: missing fractional digits")
		}
	}
	if s.pos < len(s.data) && (s.data[s.pos] == 'e' || s.data[s.pos] == 'E') {
		isFloat = true
		s.pos++
		if s.pos < len(s.data) && (s.data[s.pos] == '-' || s.data[s.pos] == '+') {
			s.pos++
		}
		expStart := s.pos
		for s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
			s.pos++
		}
		if s.pos == expStart {
			return "", false, s.errf(kqterror.Format, "malformed float: missing exponent digits")
		}
	}
	end := s.pos
	if end < len(s.data) && (s.data[end] == '.' || isBareContinuation(s.data[end])) {
		return "", false, s.errf(kqterror.Format, "trailing garbage after number")
	}
	return string(s.data[start:end]), isFloat, nil
}

// ReadInt64 consumes a signed 64-bit integer literal, rejecting overflow
// explicitly rather than truncating it the way a naive parse would.
func (s *Streader) ReadInt64() (int64, error) {
	tok, isFloat, err := s.scanNumber()
	if err != nil {
		return 0, err
	}
	if isFloat {
		return 0, s.errf(kqterror.Format, "expected integer, got float literal %q", tok)
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, s.errf(kqterror.Format, "integer overflow: %q", tok)
	}
	return v, nil
}

// ReadFloat64 consumes an IEEE-754 double, parsed explicitly via strconv
// rather than relying on a platform default formatter, for cross-platform
// portability of the resulting bit pattern.
func (s *Streader) ReadFloat64() (float64, error) {
	tok, _, err := s.scanNumber()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, s.errf(kqterror.Format, "malformed float %q", tok)
	}
	return v, nil
}

// ReadString consumes a JSON string, decoding \uXXXX escapes restricted to
// the printable ASCII range [U+0020, U+007E] (the core's composition tree
// never needs non-ASCII text in string literals).
func (s *Streader) ReadString() (string, error) {
	if err := s.expect('"'); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		if s.pos >= len(s.data) {
			return "", s.errf(kqterror.Format, "unterminated string")
		}
		c := s.data[s.pos]
		if c == '"' {
			s.pos++
			return b.String(), nil
		}
		if c == '\\' {
			s.pos++
			if s.pos >= len(s.data) {
				return "", s.errf(kqterror.Format, "unterminated escape")
			}
			switch s.data[s.pos] {
			case '"':
				b.WriteByte('"')
				s.pos++
			case '\\':
				b.WriteByte('\\')
				s.pos++
			case '/':
				b.WriteByte('/')
				s.pos++
			case 'n':
				b.WriteByte('\n')
				s.pos++
			case 't':
				b.WriteByte('\t')
				s.pos++
			case 'r':
				b.WriteByte('\r')
				s.pos++
			case 'u':
				s.pos++
				if s.pos+4 > len(s.data) {
					return "", s.errf(kqterror.Format, "truncated \\u escape")
				}
				code, err := strconv.ParseUint(string(s.data[s.pos:s.pos+4]), 16, 32)
				if err != nil {
					return "", s.errf(kqterror.Format, "malformed \\u escape")
				}
				if code < 0x0020 || code > 0x007E {
					return "", s.errf(kqterror.Format, "\\u escape %04x outside printable ASCII range", code)
				}
				b.WriteByte(byte(code))
				s.pos += 4
			default:
				return "", s.errf(kqterror.Format, "unknown escape \\%c", s.data[s.pos])
			}
			continue
		}
		if c < 0x20 {
			return "", s.errf(kqterror.Format, "unescaped control byte 0x%02x in string", c)
		}
		b.WriteByte(c)
		s.pos++
	}
}

// ReadTstamp consumes a [beats, rem] pair.
func (s *Streader) ReadTstamp() (tstamp.Tstamp, error) {
	if err := s.expect('['); err != nil {
		return tstamp.Tstamp{}, err
	}
	beats, err := s.ReadInt64()
	if err != nil {
		return tstamp.Tstamp{}, err
	}
	if err := s.expect(','); err != nil {
		return tstamp.Tstamp{}, err
	}
	rem, err := s.ReadInt64()
	if err != nil {
		return tstamp.Tstamp{}, err
	}
	if err := s.expect(']'); err != nil {
		return tstamp.Tstamp{}, err
	}
	return tstamp.New(beats, rem), nil
}

// PatternInstanceRef identifies one occurrence of a pattern in an order list.
type PatternInstanceRef struct {
	Pattern  int64
	Instance int64
}

// ReadPatternInstance consumes a [pattern, instance] pair.
func (s *Streader) ReadPatternInstance() (PatternInstanceRef, error) {
	if err := s.expect('['); err != nil {
		return PatternInstanceRef{}, err
	}
	pat, err := s.ReadInt64()
	if err != nil {
		return PatternInstanceRef{}, err
	}
	if err := s.expect(','); err != nil {
		return PatternInstanceRef{}, err
	}
	inst, err := s.ReadInt64()
	if err != nil {
		return PatternInstanceRef{}, err
	}
	if err := s.expect(']'); err != nil {
		return PatternInstanceRef{}, err
	}
	return PatternInstanceRef{Pattern: pat, Instance: inst}, nil
}

// ReadList visits each element of a JSON array with visit, which must
// consume exactly one value from s before returning.
func (s *Streader) ReadList(visit func(index int, s *Streader) error) error {
	if err := s.expect('['); err != nil {
		return err
	}
	if c, ok := s.peek(); ok && c == ']' {
		s.pos++
		return nil
	}
	for i := 0; ; i++ {
		if err := visit(i, s); err != nil {
			return err
		}
		c, ok := s.peek()
		if !ok {
			return s.errf(kqterror.Format, "unterminated list")
		}
		if c == ']' {
			s.pos++
			return nil
		}
		if err := s.expect(','); err != nil {
			return err
		}
	}
}

// ReadDict visits each key/value pair of a JSON object with visit, which
// must consume exactly one value from s before returning.
func (s *Streader) ReadDict(visit func(key string, s *Streader) error) error {
	if err := s.expect('{'); err != nil {
		return err
	}
	if c, ok := s.peek(); ok && c == '}' {
		s.pos++
		return nil
	}
	for {
		key, err := s.ReadString()
		if err != nil {
			return err
		}
		if err := s.expect(':'); err != nil {
			return err
		}
		if err := visit(key, s); err != nil {
			return err
		}
		c, ok := s.peek()
		if !ok {
			return s.errf(kqterror.Format, "unterminated dict")
		}
		if c == '}' {
			s.pos++
			return nil
		}
		if err := s.expect(','); err != nil {
			return err
		}
	}
}

// SkipValue consumes and discards the next JSON value of any recognized
// kind, for callers routing by key that only care about a subset of an
// object's members.
func (s *Streader) SkipValue() error {
	c, ok := s.peek()
	if !ok {
		return s.errf(kqterror.Format, "expected value, got end of input")
	}
	switch c {
	case '{':
		return s.ReadDict(func(string, *Streader) error { return s.SkipValue() })
	case '[':
		return s.ReadList(func(int, *Streader) error { return s.SkipValue() })
	case '"':
		_, err := s.ReadString()
		return err
	case 't', 'f':
		_, err := s.ReadBool()
		return err
	case 'n':
		return s.ReadNull()
	default:
		_, _, err := s.scanNumber()
		return err
	}
}
