package repair

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func streamRepair(t *testing.T, input string, chunkSize int) (string, *Streamer) {
	t.Helper()
	s := NewStreamer()
	var out strings.Builder
	for start := 0; start < len(input); start += chunkSize {
		end := start + chunkSize
		if end > len(input) {
			end = len(input)
		}
		out.WriteString(s.AddChunk(input[start:end]))
	}
	out.WriteString(s.Flush())
	return out.String(), s
}

func TestStreamerMatchesOneShot(t *testing.T) {
	inputs := []string{
		`{"name": "John", "age": 30, "tags": ["a", "b", "c"]}`,
		"{name: 'John', // comment\n \"vals\": [1, 2, 3,], \"x\": undefined}",
		`{"text": "a string with , and } and // inside", "n": 1}`,
		`{'a': {'b': {'c': [true, false, null,]}}}`,
	}
	for _, input := range inputs {
		oneShot := Repair(input)
		var want any
		if err := json.Unmarshal([]byte(oneShot), &want); err != nil {
			t.Fatalf("one-shot repair of %q did not parse: %v", input, err)
		}
		for _, size := range []int{1, 3, 7, 64, len(input)} {
			streamed, _ := streamRepair(t, input, size)
			var got any
			if err := json.Unmarshal([]byte(streamed), &got); err != nil {
				t.Fatalf("streamed repair (chunk=%d) of %q did not parse: %v\noutput: %s",
					size, input, err, streamed)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("chunk=%d: streamed value %#v != one-shot value %#v", size, got, want)
			}
		}
	}
}

func TestStreamerWithholdsOpenString(t *testing.T) {
	s := NewStreamer()
	// Everything after the opening quote is ambiguous until the string
	// closes, so nothing inside it may be emitted yet.
	out := s.AddChunk(`{"key": "a long value that keeps going`)
	if strings.Contains(out, "a long value") {
		t.Errorf("emitted inside an open string: %q", out)
	}
	out += s.AddChunk(` and finally stops", "done": true}`)
	out += s.Flush()

	var v map[string]any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("final output did not parse: %v\noutput: %s", err, out)
	}
	if v["done"] != true {
		t.Errorf("done = %v, want true", v["done"])
	}
}

func TestStreamerLogPositionsAreGlobal(t *testing.T) {
	input := `{"aaaaaaaaaaaaaaaaaaaa": 1, "bbbbbbbbbbbbbbbbbbbb": 2, 'q': 3}`
	_, s := streamRepair(t, input, 16)
	var found *Log
	for i := range s.Repairs() {
		if s.Repairs()[i].Kind == KindSingleQuote {
			found = &s.Repairs()[i]
			break
		}
	}
	if found == nil {
		t.Fatal("expected a single_quote repair entry")
	}
	if found.Position != strings.IndexByte(input, '\'') {
		t.Errorf("position = %d, want %d", found.Position, strings.IndexByte(input, '\''))
	}
}

func TestStreamerReset(t *testing.T) {
	s := NewStreamer()
	s.AddChunk(`{"a": 1,`)
	s.Reset()
	if s.Flush() != "" {
		t.Error("Flush after Reset should be empty")
	}
	if len(s.Repairs()) != 0 {
		t.Error("Repairs after Reset should be empty")
	}

	out := s.AddChunk(`{"b": 2}`) + s.Flush()
	var v map[string]any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("reuse after Reset failed: %v", err)
	}
	if v["b"] != float64(2) {
		t.Errorf("b = %v, want 2", v["b"])
	}
}
