// Package repair turns almost-JSON text, as commonly produced by large
// language models, into syntactically valid JSON. It fixes single-quoted
// strings, comments, unescaped newlines, trailing commas, unquoted keys,
// and JavaScript sentinel values, optionally reporting every change it made.
package repair

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies one class of repair.
type Kind string

const (
	// KindTrailingComma is a comma immediately before a closing } or ].
	KindTrailingComma Kind = "trailing_comma"

	// KindSingleQuote is a single-quoted string converted to double quotes.
	KindSingleQuote Kind = "single_quote"

	// KindSingleLineComment is a // comment stripped from the input.
	KindSingleLineComment Kind = "single_line_comment"

	// KindMultiLineComment is a /* */ comment stripped from the input.
	KindMultiLineComment Kind = "multi_line_comment"

	// KindUnquotedKey is a bare identifier object key that was quoted.
	KindUnquotedKey Kind = "unquoted_key"

	// KindInvalidValue is a JavaScript sentinel (undefined, NaN, Infinity)
	// replaced with null.
	KindInvalidValue Kind = "invalid_value"

	// KindUnescapedNewline is a raw newline inside a string replaced with
	// its escape sequence.
	KindUnescapedNewline Kind = "unescaped_newline"
)

// Log records a single repair applied to the input.
type Log struct {
	Kind        Kind   `json:"kind"`
	Position    int    `json:"position"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Description string `json:"description"`
	Fixed       bool   `json:"fixed"`
}

// Rules toggles each repair class independently. The zero value disables
// everything; use DefaultRules as a starting point.
type Rules struct {
	TrailingCommas     bool
	SingleQuotes       bool
	SingleLineComments bool
	MultiLineComments  bool
	UnquotedKeys       bool
	InvalidValues      bool
	EscapeNewlines     bool
}

// DefaultRules returns the rule set with every repair enabled.
func DefaultRules() Rules {
	return Rules{
		TrailingCommas:     true,
		SingleQuotes:       true,
		SingleLineComments: true,
		MultiLineComments:  true,
		UnquotedKeys:       true,
		InvalidValues:      true,
		EscapeNewlines:     true,
	}
}

// Option configures a repair call.
type Option func(*options)

type options struct {
	rules Rules
}

// WithRules overrides the default rule set.
func WithRules(rules Rules) Option {
	return func(o *options) {
		o.rules = rules
	}
}

func applyOptions(opts []Option) options {
	cfg := options{rules: DefaultRules()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Repair rewrites text into best-effort valid JSON. It never fails: if the
// input has defects outside the rule set (missing brackets, garbage), the
// output may still not parse, and the caller should treat a subsequent
// parse failure as "could not repair".
func Repair(text string, opts ...Option) string {
	out, _ := run(text, applyOptions(opts).rules, false)
	return out
}

// RepairWithLog is Repair plus an ordered log of every change made.
func RepairWithLog(text string, opts ...Option) (string, []Log) {
	return run(text, applyOptions(opts).rules, true)
}

func run(text string, rules Rules, track bool) (string, []Log) {
	m := &machine{rules: rules, track: track, line: 1, col: 1}
	m.scan(text)
	out := m.out.String()
	out = m.fixTrailingCommas(out)
	out = m.fixUnquotedKeys(out)
	out = m.fixInvalidValues(out)
	return out, m.logs
}

type lexState int

const (
	stateNormal lexState = iota
	stateDoubleString
	stateDoubleStringEscape
	stateSingleString
	stateSingleStringEscape
	stateSingleLineComment
	stateMultiLineComment
	stateMultiLineCommentStar
)

// machine is the single-pass lexical repairer. It owns the output
// accumulator, position counters, and the repair log for one invocation.
type machine struct {
	state lexState
	out   strings.Builder
	rules Rules
	track bool
	logs  []Log

	pos  int
	line int
	col  int

	// inNewlineRun collapses a contiguous run of raw newlines inside a
	// string into a single log entry.
	inNewlineRun bool
}

func (m *machine) log(kind Kind, description string) {
	if !m.track {
		return
	}
	m.logs = append(m.logs, Log{
		Kind:        kind,
		Position:    m.pos,
		Line:        m.line,
		Column:      m.col,
		Description: description,
		Fixed:       true,
	})
}

func (m *machine) scan(text string) {
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		skip := m.step(ch, next)
		m.advance(ch)
		if skip {
			m.advance(next)
			i++
		}
	}
}

// advance updates the absolute, line, and column counters for ch.
func (m *machine) advance(ch rune) {
	m.pos++
	if ch == '\n' {
		m.line++
		m.col = 1
		return
	}
	m.col++
}

// step processes one character with one character of lookahead. It returns
// true when the lookahead character was consumed as well.
func (m *machine) step(ch, next rune) bool {
	switch m.state {
	case stateNormal:
		return m.stepNormal(ch, next)
	case stateDoubleString:
		m.stepString(ch, next, '"', stateDoubleStringEscape)
	case stateSingleString:
		m.stepString(ch, next, '\'', stateSingleStringEscape)
	case stateDoubleStringEscape:
		m.out.WriteRune(ch)
		m.state = stateDoubleString
	case stateSingleStringEscape:
		// A \' escape is not valid JSON once the delimiters become double
		// quotes, so the backslash is dropped for quotes and kept otherwise.
		switch ch {
		case '\'':
			m.out.WriteRune('\'')
		case '"':
			m.out.WriteString(`\"`)
		default:
			m.out.WriteRune('\\')
			m.out.WriteRune(ch)
		}
		m.state = stateSingleString
	case stateSingleLineComment:
		if ch == '\n' {
			m.state = stateNormal
		}
	case stateMultiLineComment:
		if ch == '*' {
			m.state = stateMultiLineCommentStar
		}
	case stateMultiLineCommentStar:
		switch ch {
		case '/':
			m.state = stateNormal
		case '*':
			// stay, so ***/ still closes
		default:
			m.state = stateMultiLineComment
		}
	}
	return false
}

func (m *machine) stepNormal(ch, next rune) bool {
	switch ch {
	case '"':
		m.state = stateDoubleString
		m.inNewlineRun = false
		m.out.WriteRune(ch)
	case '\'':
		if m.rules.SingleQuotes {
			m.log(KindSingleQuote, "converted single-quoted string to double quotes")
			m.state = stateSingleString
			m.inNewlineRun = false
			m.out.WriteRune('"')
			return false
		}
		m.out.WriteRune(ch)
	case '/':
		if next == '/' && m.rules.SingleLineComments {
			m.log(KindSingleLineComment, "removed single-line comment")
			m.state = stateSingleLineComment
			return true
		}
		if next == '*' && m.rules.MultiLineComments {
			m.log(KindMultiLineComment, "removed multi-line comment")
			m.state = stateMultiLineComment
			return true
		}
		m.out.WriteRune(ch)
	default:
		m.out.WriteRune(ch)
	}
	return false
}

// stepString handles one character inside a string. For single-quoted
// strings the closing delimiter is rewritten to a double quote, and any
// embedded double quote is escaped so the converted string stays valid.
func (m *machine) stepString(ch, next rune, delim rune, escape lexState) {
	if ch == '\n' || ch == '\r' {
		if m.rules.EscapeNewlines {
			if !m.inNewlineRun {
				m.log(KindUnescapedNewline, "escaped raw newline inside string")
				m.inNewlineRun = true
			}
			if ch == '\r' {
				m.out.WriteString(`\r`)
			} else {
				m.out.WriteString(`\n`)
			}
			return
		}
		m.out.WriteRune(ch)
		return
	}
	m.inNewlineRun = false

	switch {
	case ch == '\\':
		m.state = escape
		if delim == '"' {
			m.out.WriteRune('\\')
		}
	case ch == delim:
		m.state = stateNormal
		m.out.WriteRune('"')
	case ch == '"' && delim == '\'':
		m.out.WriteString(`\"`)
	default:
		m.out.WriteRune(ch)
	}
}

var (
	trailingCommaRe = regexp.MustCompile(`,(?:\s*,)*(\s*[}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_$][A-Za-z0-9_$]*)(\s*:)`)
	invalidValueRe  = regexp.MustCompile(`(:\s*)(-?Infinity|NaN|undefined)`)
)

// stringMask marks which byte offsets of already-lexically-clean output sit
// inside a double-quoted string, so the structural regex fixes never touch
// string contents.
func stringMask(s string) []bool {
	mask := make([]bool, len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case inString && s[i] == '\\':
			escaped = true
		case s[i] == '"':
			inString = !inString
			mask[i] = true
			continue
		}
		if inString {
			mask[i] = true
		}
	}
	return mask
}

// replaceOutsideStrings applies re to every match of s that starts outside a
// string literal, calling repl with the submatch slice to build the
// replacement and onMatch with the match offset for logging.
func replaceOutsideStrings(s string, re *regexp.Regexp, repl func([]string) string, onMatch func(pos int, groups []string)) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}
	mask := stringMask(s)
	var b strings.Builder
	last := 0
	for _, loc := range matches {
		start, end := loc[0], loc[1]
		if start < last || mask[start] {
			continue
		}
		groups := make([]string, 0, len(loc)/2)
		for g := 0; g < len(loc); g += 2 {
			if loc[g] < 0 {
				groups = append(groups, "")
				continue
			}
			groups = append(groups, s[loc[g]:loc[g+1]])
		}
		if onMatch != nil {
			onMatch(start, groups)
		}
		b.WriteString(s[last:start])
		b.WriteString(repl(groups))
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

func (m *machine) fixTrailingCommas(s string) string {
	if !m.rules.TrailingCommas {
		return s
	}
	return replaceOutsideStrings(s, trailingCommaRe,
		func(groups []string) string { return groups[1] },
		func(pos int, groups []string) {
			if !m.track {
				return
			}
			// The match covers a whole run of commas; log each one.
			for off, ch := range groups[0] {
				if ch != ',' {
					continue
				}
				m.logs = append(m.logs, Log{
					Kind:        KindTrailingComma,
					Position:    pos + off,
					Description: "removed trailing comma",
					Fixed:       true,
				})
			}
		})
}

func (m *machine) fixUnquotedKeys(s string) string {
	if !m.rules.UnquotedKeys {
		return s
	}
	return replaceOutsideStrings(s, unquotedKeyRe,
		func(groups []string) string {
			return groups[1] + `"` + groups[2] + `"` + groups[3]
		},
		func(pos int, groups []string) {
			if m.track {
				m.logs = append(m.logs, Log{
					Kind:        KindUnquotedKey,
					Position:    pos,
					Description: fmt.Sprintf("quoted bare key %q", groups[2]),
					Fixed:       true,
				})
			}
		})
}

func (m *machine) fixInvalidValues(s string) string {
	if !m.rules.InvalidValues {
		return s
	}
	counts := map[string]int{}
	out := replaceOutsideStrings(s, invalidValueRe,
		func(groups []string) string { return groups[1] + "null" },
		func(_ int, groups []string) {
			counts[groups[2]]++
		})
	if m.track {
		// One entry per sentinel kind, with the aggregate count.
		for _, sentinel := range []string{"undefined", "NaN", "Infinity", "-Infinity"} {
			if n := counts[sentinel]; n > 0 {
				m.logs = append(m.logs, Log{
					Kind:        KindInvalidValue,
					Description: fmt.Sprintf("replaced %d occurrence(s) of %s with null", n, sentinel),
					Fixed:       true,
				})
			}
		}
	}
	return out
}
