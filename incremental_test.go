package loot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, p *IncrementalParser, text string, chunkSize int) *StepResult {
	t.Helper()
	var last *StepResult
	for start := 0; start < len(text); start += chunkSize {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		last = p.AddChunk(text[start:end])
	}
	return last
}

func TestIncrementalFieldOrder(t *testing.T) {
	p := NewIncrementalParser(IncrementalConfig{})
	last := feed(t, p, `{"a":1,"b":"x","c":[1,2]}`, 1)

	require.Equal(t, []string{"a", "b", "c"}, last.CompletedFields())
	require.True(t, last.IsComplete())

	result, ok := p.Result()
	require.True(t, ok)
	require.Equal(t, map[string]any{
		"a": float64(1),
		"b": "x",
		"c": []any{float64(1), float64(2)},
	}, result)
}

func TestIncrementalValueShapes(t *testing.T) {
	input := `{
		"str": "he said \"hi\" {not a brace}",
		"num": -3.5,
		"flag": true,
		"none": null,
		"obj": {"nested": {"deep": [1, {"x": 2}]}},
		"arr": [[1], [2, 3]]
	}`

	for _, size := range []int{1, 5, len(input)} {
		p := NewIncrementalParser(IncrementalConfig{})
		last := feed(t, p, input, size)

		require.True(t, last.IsComplete(), "chunk size %d", size)
		require.Equal(t, []string{"str", "num", "flag", "none", "obj", "arr"}, last.CompletedFields())

		v, ok := last.Field("str")
		require.True(t, ok)
		require.Equal(t, `he said "hi" {not a brace}`, v)

		v, ok = last.Field("none")
		require.True(t, ok)
		require.Nil(t, v)

		v, ok = last.Field("obj")
		require.True(t, ok)
		require.Equal(t, map[string]any{"nested": map[string]any{"deep": []any{float64(1), map[string]any{"x": float64(2)}}}}, v)
	}
}

func TestIncrementalProseAroundDocument(t *testing.T) {
	p := NewIncrementalParser(IncrementalConfig{})
	last := feed(t, p, "Sure! Here is the JSON you asked for:\n\n"+`{"answer": 42}`+"\n\nLet me know if you need more.", 7)

	require.True(t, last.IsComplete())
	result, ok := p.Result()
	require.True(t, ok)
	require.Equal(t, map[string]any{"answer": float64(42)}, result)
}

func TestIncrementalCallbacks(t *testing.T) {
	var started, completed []string
	var chunks []string
	var final any

	p := NewIncrementalParser(IncrementalConfig{
		OnFieldStart:    func(name string) { started = append(started, name) },
		OnFieldComplete: func(name string, _ any) { completed = append(completed, name) },
		OnValueChunk:    func(_ string, data string) { chunks = append(chunks, data) },
		OnComplete:      func(v any) { final = v },
	})
	feed(t, p, `{"a": 1, "b": "two"}`, 3)

	require.Equal(t, []string{"a", "b"}, started)
	require.Equal(t, []string{"a", "b"}, completed)
	require.Equal(t, []string{"1", `"two"`}, chunks)
	require.Equal(t, map[string]any{"a": float64(1), "b": "two"}, final)
}

func TestIncrementalTrackedFields(t *testing.T) {
	var progress []Progress
	p := NewIncrementalParser(IncrementalConfig{
		Fields:     []string{"name", "score"},
		OnProgress: func(pr Progress) { progress = append(progress, pr) },
	})
	last := feed(t, p, `{"name": "ada", "ignored": [1,2,3], "score": 10}`, 8)

	require.Equal(t, []string{"name", "score"}, last.CompletedFields())
	require.False(t, last.IsFieldComplete("ignored"))

	require.NotEmpty(t, progress)
	finalProgress := progress[len(progress)-1]
	require.Equal(t, 2, finalProgress.TrackedTotal)
	require.Equal(t, 1.0, finalProgress.Estimate)
}

func TestIncrementalRepairsFieldValues(t *testing.T) {
	p := NewIncrementalParser(IncrementalConfig{})
	last := feed(t, p, `{"a": {"x": 1,}, "b": 2}`, 4)

	v, ok := last.Field("a")
	require.True(t, ok)
	require.Equal(t, map[string]any{"x": float64(1)}, v)

	result, ok := p.Result()
	require.True(t, ok)
	require.Equal(t, map[string]any{
		"a": map[string]any{"x": float64(1)},
		"b": float64(2),
	}, result)
}

func TestIncrementalRepairDisabled(t *testing.T) {
	p := NewIncrementalParser(IncrementalConfig{Repair: Opt(false)})
	last := feed(t, p, `{"a": {"x": 1,}, "b": 2}`, 4)

	// The malformed field stays unresolved, the clean one completes.
	require.False(t, last.IsFieldComplete("a"))
	require.True(t, last.IsFieldComplete("b"))
}

func TestIncrementalDuplicateKeys(t *testing.T) {
	p := NewIncrementalParser(IncrementalConfig{})
	last := feed(t, p, `{"a": 1, "a": 2}`, 1)

	// First completion wins; the duplicate is not reported again.
	require.Equal(t, []string{"a"}, last.CompletedFields())
	v, _ := last.Field("a")
	require.Equal(t, float64(1), v)
}

func TestIncrementalRecovery(t *testing.T) {
	var recovered any
	var strategy string
	p := NewIncrementalParser(IncrementalConfig{
		Recover:    true,
		OnRecovery: func(s string, v any) { strategy, recovered = s, v },
	})
	last := feed(t, p, `{"a": 1, "b": <<garbage>>}`, 5)

	require.True(t, last.IsComplete())
	require.Equal(t, "partial_result", strategy)
	require.Equal(t, map[string]any{"a": float64(1)}, recovered)

	result, ok := p.Result()
	require.True(t, ok)
	require.Equal(t, map[string]any{"a": float64(1)}, result)
}

func TestIncrementalErrorCallback(t *testing.T) {
	var failed error
	p := NewIncrementalParser(IncrementalConfig{
		OnError: func(err error) { failed = err },
	})
	feed(t, p, `{"a": 1, "b": <<garbage>>}`, 5)

	require.Error(t, failed)
	_, ok := p.Result()
	require.False(t, ok)
}

func TestIncrementalCompaction(t *testing.T) {
	prose := strings.Repeat("lorem ipsum dolor sit amet ", 20)
	doc := `{"first": 1, "second": "two", "third": [3, 3, 3]}`

	p := NewIncrementalParser(IncrementalConfig{MaxBufferSize: 64})
	last := feed(t, p, prose+doc, 16)

	require.True(t, last.IsComplete())
	result, ok := p.Result()
	require.True(t, ok)
	require.Equal(t, map[string]any{
		"first":  float64(1),
		"second": "two",
		"third":  []any{float64(3), float64(3), float64(3)},
	}, result)

	// The prose prefix must have been discarded along the way.
	stats := p.Stats()
	require.Equal(t, len(prose)+len(doc), stats.BytesProcessed)
	require.LessOrEqual(t, stats.BufferSize, len(doc)+16)
}

func TestIncrementalEscapedKey(t *testing.T) {
	p := NewIncrementalParser(IncrementalConfig{})
	last := feed(t, p, `{"a\"b": 1, "c": 2}`, 1)

	require.Equal(t, []string{`a"b`, "c"}, last.CompletedFields())
	v, ok := last.Field(`a"b`)
	require.True(t, ok)
	require.Equal(t, float64(1), v)
}

func TestIncrementalTrailingProseNotBuffered(t *testing.T) {
	p := NewIncrementalParser(IncrementalConfig{})
	last := feed(t, p, `{"a": 1}`, 2)
	require.True(t, last.IsComplete())

	size := p.Stats().BufferSize
	feed(t, p, strings.Repeat("and that is the answer. ", 50), 16)

	stats := p.Stats()
	require.Equal(t, size, stats.BufferSize)
	require.Equal(t, 8+50*len("and that is the answer. "), stats.BytesProcessed)

	result, ok := p.Result()
	require.True(t, ok)
	require.Equal(t, map[string]any{"a": float64(1)}, result)
}

func TestIncrementalStatsAndReset(t *testing.T) {
	p := NewIncrementalParser(IncrementalConfig{})
	feed(t, p, `{"a": 1}`, 2)

	stats := p.Stats()
	require.Equal(t, 8, stats.BytesProcessed)
	require.Equal(t, 1, stats.FieldsCompleted)
	require.True(t, stats.IsComplete)

	p.Reset()
	stats = p.Stats()
	require.Zero(t, stats.BytesProcessed)
	require.Zero(t, stats.FieldsCompleted)
	require.False(t, stats.IsComplete)

	last := feed(t, p, `{"b": 2}`, 2)
	require.Equal(t, []string{"b"}, last.CompletedFields())
}
