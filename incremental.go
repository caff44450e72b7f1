package loot

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	xjson "github.com/charmbracelet/x/json"

	"charm.land/loot/repair"
)

// DefaultMaxBufferSize is the buffer size above which the incremental
// parser compacts already-processed input.
const DefaultMaxBufferSize = 64 * 1024

// IncrementalConfig configures an IncrementalParser. The zero value tracks
// every top-level field, repairs on completion, buffers up to
// DefaultMaxBufferSize, and does not recover.
type IncrementalConfig struct {
	// Fields restricts completion reporting to the named top-level keys.
	// Empty means every top-level key is tracked.
	Fields []string

	// Repair controls whether field and document substrings that fail to
	// parse directly are run through the repairer. Defaults to true; use
	// Opt(false) to disable.
	Repair *bool

	// MaxBufferSize is the buffer length that triggers compaction. Zero
	// means DefaultMaxBufferSize.
	MaxBufferSize int

	// Recover makes document finalization fall back to the fields
	// completed so far when the full document cannot be parsed.
	Recover bool

	OnFieldStart    func(name string)
	OnFieldComplete func(name string, value any)
	OnValueChunk    func(name string, data string)
	OnProgress      func(p Progress)
	OnComplete      func(value any)
	OnError         func(err error)
	OnRecovery      func(strategy string, value any)
}

// Progress is reported after each chunk when OnProgress is set.
type Progress struct {
	BytesProcessed  int
	BufferSize      int
	CompletedFields []string

	// TrackedTotal and Estimate are populated only when a field
	// allow-list was configured.
	TrackedTotal int
	Estimate     float64
}

// Stats summarizes an IncrementalParser's progress so far.
type Stats struct {
	BytesProcessed  int
	BufferSize      int
	FieldsCompleted int
	IsComplete      bool
}

// StepResult is a snapshot of parser state after one AddChunk call.
type StepResult struct {
	complete  bool
	completed []string
	fields    map[string]any
	buffer    string
}

// IsComplete reports whether the whole document has closed.
func (r *StepResult) IsComplete() bool { return r.complete }

// IsFieldComplete reports whether the named top-level field has completed.
func (r *StepResult) IsFieldComplete(name string) bool {
	_, ok := r.fields[name]
	return ok
}

// Field returns the named field's value if it has completed.
func (r *StepResult) Field(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// PartialResult returns every field completed so far.
func (r *StepResult) PartialResult() map[string]any { return r.fields }

// CompletedFields returns field names in completion order.
func (r *StepResult) CompletedFields() []string { return r.completed }

// Buffer returns the current buffer contents, for diagnostics.
func (r *StepResult) Buffer() string { return r.buffer }

// value-scanning modes at top-level object depth.
const (
	modeSeekKey = iota
	modeInKey
	modeSeekColon
	modeSeekValue
	modeInValue
)

// value kinds for completion detection.
const (
	valueNone = iota
	valueString
	valueContainer
	valuePrimitive
)

// IncrementalParser consumes streamed text and reports, without
// re-scanning, when top-level fields and the whole document become
// syntactically complete. It keeps memory bounded by compacting its buffer
// and fires the configured callbacks as the stream progresses.
//
// A parser is tied to one stream and must not be used concurrently.
type IncrementalParser struct {
	cfg     IncrementalConfig
	maxBuf  int
	tracker fieldTracker

	buf       []byte
	processed int // next unscanned offset, buffer-local
	bytesFed  int

	inString bool
	escape   bool
	depth    int

	started  bool
	docStart int
	complete bool

	mode       int
	keyStart   int
	pendingKey string
	valueStart int
	valueKind  int

	result    any
	hasResult bool
}

// NewIncrementalParser returns a parser for one stream of text chunks.
func NewIncrementalParser(cfg IncrementalConfig) *IncrementalParser {
	p := &IncrementalParser{cfg: cfg, maxBuf: cfg.MaxBufferSize}
	if p.maxBuf <= 0 {
		p.maxBuf = DefaultMaxBufferSize
	}
	p.Reset()
	return p
}

// Reset returns the parser to its initial state, keeping configuration.
func (p *IncrementalParser) Reset() {
	p.tracker = fieldTracker{values: make(map[string]any)}
	p.buf = p.buf[:0]
	p.processed = 0
	p.bytesFed = 0
	p.inString = false
	p.escape = false
	p.depth = 0
	p.started = false
	p.docStart = -1
	p.complete = false
	p.mode = modeSeekKey
	p.keyStart = -1
	p.pendingKey = ""
	p.valueStart = -1
	p.valueKind = valueNone
	p.result = nil
	p.hasResult = false
}

// AddChunk consumes the next piece of the stream and returns a snapshot of
// what has completed so far.
func (p *IncrementalParser) AddChunk(text string) *StepResult {
	p.bytesFed += len(text)

	// Once the document has closed, trailing text is prose. Don't buffer it.
	if !p.complete {
		p.buf = append(p.buf, text...)
		p.scan()
		p.compact()
	}

	if p.cfg.OnProgress != nil {
		progress := Progress{
			BytesProcessed:  p.bytesFed,
			BufferSize:      len(p.buf),
			CompletedFields: p.tracker.names(),
		}
		if n := len(p.cfg.Fields); n > 0 {
			progress.TrackedTotal = n
			progress.Estimate = float64(p.tracker.len()) / float64(n)
		}
		p.cfg.OnProgress(progress)
	}

	return &StepResult{
		complete:  p.complete,
		completed: p.tracker.names(),
		fields:    p.tracker.partial(),
		buffer:    string(p.buf),
	}
}

// Result returns the final parsed document once the stream has completed.
func (p *IncrementalParser) Result() (any, bool) {
	return p.result, p.hasResult
}

// Stats returns cumulative counters for the stream so far.
func (p *IncrementalParser) Stats() Stats {
	return Stats{
		BytesProcessed:  p.bytesFed,
		BufferSize:      len(p.buf),
		FieldsCompleted: p.tracker.len(),
		IsComplete:      p.complete,
	}
}

// scan resumes the structural pass from the first unscanned byte. It never
// revisits processed input; all state needed to continue mid-token is kept
// on the parser.
func (p *IncrementalParser) scan() {
	for i := p.processed; i < len(p.buf); i++ {
		c := p.buf[i]

		if !p.started {
			if c == '{' {
				p.started = true
				p.docStart = i
				p.depth = 1
				p.mode = modeSeekKey
			}
			continue
		}

		if p.inString {
			if p.escape {
				p.escape = false
				continue
			}
			switch c {
			case '\\':
				p.escape = true
			case '"':
				p.inString = false
				p.closeString(i)
			}
			continue
		}

		switch c {
		case '"':
			p.inString = true
			if p.depth == 1 {
				switch p.mode {
				case modeSeekKey:
					p.mode = modeInKey
					p.keyStart = i
				case modeSeekValue:
					p.mode = modeInValue
					p.valueKind = valueString
					p.valueStart = i
				}
			}
		case '{', '[':
			if p.depth == 1 && p.mode == modeSeekValue {
				p.mode = modeInValue
				p.valueKind = valueContainer
				p.valueStart = i
			}
			p.depth++
		case '}', ']':
			p.depth--
			if p.depth == 1 && p.mode == modeInValue && p.valueKind == valueContainer {
				p.completeField(p.valueStart, i+1)
				p.mode = modeSeekKey
			}
			if p.depth == 0 && c == '}' {
				if p.mode == modeInValue && p.valueKind == valuePrimitive {
					p.completeField(p.valueStart, i)
				}
				p.processed = i + 1
				p.finalize(i)
				return
			}
		case ':':
			if p.depth == 1 && p.mode == modeSeekColon {
				p.mode = modeSeekValue
			}
		case ',':
			if p.depth == 1 {
				if p.mode == modeInValue && p.valueKind == valuePrimitive {
					p.completeField(p.valueStart, i)
				}
				p.mode = modeSeekKey
			}
		default:
			if p.depth == 1 && p.mode == modeSeekValue && !isSpace(c) {
				p.mode = modeInValue
				p.valueKind = valuePrimitive
				p.valueStart = i
			}
		}
	}
	p.processed = len(p.buf)
}

// closeString handles the closing quote at buffer offset i.
func (p *IncrementalParser) closeString(i int) {
	if p.depth != 1 {
		return
	}
	switch p.mode {
	case modeInKey:
		// Decode the quoted slice so keys with escapes match what the
		// final document will carry.
		var key string
		if err := json.Unmarshal(p.buf[p.keyStart:i+1], &key); err != nil {
			key = string(p.buf[p.keyStart+1 : i])
		}
		p.pendingKey = key
		p.keyStart = -1
		p.mode = modeSeekColon
		if p.cfg.OnFieldStart != nil && p.tracked(p.pendingKey) && !p.tracker.has(p.pendingKey) {
			p.cfg.OnFieldStart(p.pendingKey)
		}
	case modeInValue:
		if p.valueKind == valueString {
			p.completeField(p.valueStart, i+1)
			p.mode = modeSeekKey
		}
	}
}

// completeField attempts to parse the value substring [start, end) and
// record it for the pending key. The first completion of a key wins;
// later duplicates are dropped.
func (p *IncrementalParser) completeField(start, end int) {
	key := p.pendingKey
	raw := strings.TrimSpace(string(p.buf[start:end]))
	p.pendingKey = ""
	p.valueStart = -1
	p.valueKind = valueNone

	if !p.tracked(key) || p.tracker.has(key) {
		return
	}

	value, err := p.parseValue(raw)
	if err != nil {
		return
	}

	p.tracker.add(key, value)
	if p.cfg.OnFieldComplete != nil {
		p.cfg.OnFieldComplete(key, value)
	}
	if p.cfg.OnValueChunk != nil {
		if data, err := json.Marshal(value); err == nil {
			p.cfg.OnValueChunk(key, string(data))
		}
	}
}

// parseValue parses raw directly, falling back to a single repair pass
// when enabled (or, failing that, as a recovery attempt).
func (p *IncrementalParser) parseValue(raw string) (any, error) {
	if xjson.IsValid(raw) {
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err == nil {
			return value, nil
		}
	}

	if !p.repairEnabled() && !p.cfg.Recover {
		return nil, fmt.Errorf("invalid JSON value %q", raw)
	}

	repaired := repair.Repair(raw)
	var value any
	if err := json.Unmarshal([]byte(repaired), &value); err != nil {
		return nil, fmt.Errorf("value could not be repaired: %w", err)
	}
	return value, nil
}

// finalize parses the whole document once its top-level brace closes.
func (p *IncrementalParser) finalize(closeIdx int) {
	p.complete = true

	doc := string(p.buf[p.docStart : closeIdx+1])
	value, err := p.parseValue(doc)
	if err == nil {
		p.result = value
		p.hasResult = true
		if p.cfg.OnComplete != nil {
			p.cfg.OnComplete(value)
		}
		return
	}

	if p.cfg.Recover {
		partial := p.tracker.partial()
		p.result = partial
		p.hasResult = true
		if p.cfg.OnRecovery != nil {
			p.cfg.OnRecovery("partial_result", partial)
		}
		return
	}

	if p.cfg.OnError != nil {
		p.cfg.OnError(fmt.Errorf("document could not be parsed: %w", err))
	}
}

// compact discards the already-processed prefix of the buffer once it
// grows past the configured maximum, rebasing every stored offset by the
// discarded length. It never cuts into an in-flight key or value and never
// discards document text.
func (p *IncrementalParser) compact() {
	if !p.started || len(p.buf) <= p.maxBuf {
		return
	}

	cut := p.docStart
	if p.keyStart >= 0 && p.keyStart < cut {
		cut = p.keyStart
	}
	if p.valueStart >= 0 && p.valueStart < cut {
		cut = p.valueStart
	}
	if cut <= 0 {
		return
	}

	p.buf = append(p.buf[:0], p.buf[cut:]...)
	p.processed -= cut
	p.docStart -= cut
	if p.keyStart >= 0 {
		p.keyStart -= cut
	}
	if p.valueStart >= 0 {
		p.valueStart -= cut
	}
}

func (p *IncrementalParser) repairEnabled() bool {
	return p.cfg.Repair == nil || *p.cfg.Repair
}

func (p *IncrementalParser) tracked(name string) bool {
	return len(p.cfg.Fields) == 0 || slices.Contains(p.cfg.Fields, name)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// fieldTracker records completed top-level fields in completion order.
// The first completion of a key wins.
type fieldTracker struct {
	values map[string]any
	order  []string
}

func (t *fieldTracker) has(name string) bool {
	_, ok := t.values[name]
	return ok
}

func (t *fieldTracker) add(name string, value any) {
	if t.has(name) {
		return
	}
	t.values[name] = value
	t.order = append(t.order, name)
}

func (t *fieldTracker) len() int { return len(t.order) }

func (t *fieldTracker) names() []string {
	return slices.Clone(t.order)
}

func (t *fieldTracker) partial() map[string]any {
	out := make(map[string]any, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}
