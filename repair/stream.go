package repair

import (
	"strings"
	"unicode/utf8"
)

// lookbackMargin is how far the emission boundary stays behind the newest
// input, so a multi-character pattern still forming at the head of the
// stream (a trailing comma before a close bracket, a bare key) is never
// split across two repair calls.
const lookbackMargin = 10

// Streamer repairs JSON arriving in arbitrary chunks. Each AddChunk returns
// a repaired prefix that is safe to emit; suffixes that might still change
// meaning (an open string, an unfinished comment) are withheld until more
// input arrives or Flush is called.
//
// A Streamer is tied to one logical stream and must not be used
// concurrently.
type Streamer struct {
	opts []Option
	buf  strings.Builder

	// consumed tracks how much input has already been repaired and emitted,
	// so log positions stay meaningful across chunk boundaries.
	consumedBytes int
	consumedLines int
	consumedCols  int

	logs []Log
}

// NewStreamer returns a Streamer applying the given repair options to every
// emitted segment.
func NewStreamer(opts ...Option) *Streamer {
	return &Streamer{opts: opts}
}

// AddChunk appends text to the stream and returns the longest repaired
// prefix that is safe to emit. The remainder stays buffered.
func (s *Streamer) AddChunk(text string) string {
	s.buf.WriteString(text)
	buffered := s.buf.String()

	boundary := safeBoundary(buffered, len(buffered)-lookbackMargin)
	if boundary == 0 {
		return ""
	}

	prefix := buffered[:boundary]
	s.buf.Reset()
	s.buf.WriteString(buffered[boundary:])
	return s.emit(prefix)
}

// Flush repairs and returns everything still withheld.
func (s *Streamer) Flush() string {
	rest := s.buf.String()
	s.buf.Reset()
	if rest == "" {
		return ""
	}
	return s.emit(rest)
}

// Repairs returns the ordered log of every repair made so far, with
// positions relative to the whole stream.
func (s *Streamer) Repairs() []Log {
	return s.logs
}

// Reset discards buffered input, logs, and offsets.
func (s *Streamer) Reset() {
	s.buf.Reset()
	s.consumedBytes = 0
	s.consumedLines = 0
	s.consumedCols = 0
	s.logs = nil
}

func (s *Streamer) emit(segment string) string {
	out, logs := RepairWithLog(segment, s.opts...)
	for _, l := range logs {
		l.Position += s.consumedBytes
		if l.Line == 1 {
			l.Column += s.consumedCols
		}
		l.Line += s.consumedLines
		s.logs = append(s.logs, l)
	}
	s.consumedBytes += len(segment)
	s.consumedLines += strings.Count(segment, "\n")
	if nl := strings.LastIndexByte(segment, '\n'); nl >= 0 {
		s.consumedCols = utf8.RuneCountInString(segment[nl+1:])
	} else {
		s.consumedCols += utf8.RuneCountInString(segment)
	}
	return out
}

// safeBoundary runs a reduced copy of the repair state machine over buffered
// input, purely for boundary detection. It returns the end of the longest
// prefix, at most limit bytes long, that finishes outside any string or
// comment immediately after a completed value (a closing brace, bracket, or
// string delimiter). Cutting only at such points keeps every structural
// repair pattern — a trailing comma and its bracket, a bare key and its
// colon, a sentinel and its colon — whole within a single repaired segment,
// so streamed output stays equivalent to one-shot repair regardless of how
// the input was chunked.
func safeBoundary(text string, limit int) int {
	state := stateNormal
	boundary := 0
	runes := []rune(text)
	byteOffset := 0
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch state {
		case stateNormal:
			switch {
			case ch == '"':
				state = stateDoubleString
			case ch == '\'':
				state = stateSingleString
			case ch == '/' && next == '/':
				state = stateSingleLineComment
				byteOffset += len(string(next))
				i++
			case ch == '/' && next == '*':
				state = stateMultiLineComment
				byteOffset += len(string(next))
				i++
			}
		case stateDoubleString:
			switch ch {
			case '\\':
				state = stateDoubleStringEscape
			case '"':
				state = stateNormal
			}
		case stateSingleString:
			switch ch {
			case '\\':
				state = stateSingleStringEscape
			case '\'':
				state = stateNormal
			}
		case stateDoubleStringEscape:
			state = stateDoubleString
		case stateSingleStringEscape:
			state = stateSingleString
		case stateSingleLineComment:
			if ch == '\n' {
				state = stateNormal
			}
		case stateMultiLineComment:
			if ch == '*' {
				state = stateMultiLineCommentStar
			}
		case stateMultiLineCommentStar:
			switch ch {
			case '/':
				state = stateNormal
			case '*':
			default:
				state = stateMultiLineComment
			}
		}
		byteOffset += len(string(ch))
		if state == stateNormal && isCutTerminator(ch) && byteOffset <= limit {
			boundary = byteOffset
		}
	}
	return boundary
}

func isCutTerminator(ch rune) bool {
	switch ch {
	case '}', ']', '"', '\'':
		return true
	}
	return false
}
