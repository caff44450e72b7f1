package loot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindCandidates(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		got := FindCandidates(`before {"a": 1} after`)
		require.Equal(t, []string{`{"a": 1}`}, got)
	})

	t.Run("json fence wins over plain text", func(t *testing.T) {
		got := FindCandidates("intro {\"loose\": true} and\n```json\n{\"fenced\": 1}\n```\ndone")
		require.Equal(t, []string{`{"fenced": 1}`, `{"loose": true}`}, got)
	})

	t.Run("untagged fence before balanced scan", func(t *testing.T) {
		got := FindCandidates("```\n{\"fenced\": 1}\n```\n{\"loose\": 2}")
		require.Equal(t, []string{`{"fenced": 1}`, `{"loose": 2}`}, got)
	})

	t.Run("non json fence skipped", func(t *testing.T) {
		got := FindCandidates("```go\nfunc main() {}\n```\n{\"a\": 1}")
		require.Equal(t, []string{`{"a": 1}`}, got)
	})

	t.Run("arrays", func(t *testing.T) {
		got := FindCandidates(`the list is [1, 2, 3] ok`)
		require.Equal(t, []string{`[1, 2, 3]`}, got)
	})

	t.Run("braces inside strings do not split", func(t *testing.T) {
		got := FindCandidates(`{"msg": "closing } inside"} tail`)
		require.Equal(t, []string{`{"msg": "closing } inside"}`}, got)
	})

	t.Run("nested objects stay whole", func(t *testing.T) {
		got := FindCandidates(`{"a": {"b": {"c": 1}}}`)
		require.Equal(t, []string{`{"a": {"b": {"c": 1}}}`}, got)
	})

	t.Run("multiple candidates in order", func(t *testing.T) {
		got := FindCandidates(`first {"a": 1} then {"b": 2}`)
		require.Equal(t, []string{`{"a": 1}`, `{"b": 2}`}, got)
	})

	t.Run("duplicates removed", func(t *testing.T) {
		got := FindCandidates("```json\n{\"a\": 1}\n```\nalso {\"a\": 1}")
		require.Equal(t, []string{`{"a": 1}`}, got)
	})

	t.Run("nothing found", func(t *testing.T) {
		require.Empty(t, FindCandidates("no json here at all"))
		require.Empty(t, FindCandidates(""))
	})
}
