package loot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const fieldDoc = `{
	"user": {"name": "ada", "email": "ada@example.com"},
	"items": [
		{"id": 1, "price": 9.99},
		{"id": 2, "price": 19.99}
	],
	"users": [
		{"email": "a@example.com"},
		{"email": "b@example.com"}
	]
}`

func TestLootField(t *testing.T) {
	t.Run("dotted", func(t *testing.T) {
		v, ok := LootField(fieldDoc, "user.name")
		require.True(t, ok)
		require.Equal(t, "ada", v)
	})

	t.Run("bracket index", func(t *testing.T) {
		v, ok := LootField(fieldDoc, "items[1].id")
		require.True(t, ok)
		require.Equal(t, float64(2), v)
	})

	t.Run("bracket key", func(t *testing.T) {
		v, ok := LootField(fieldDoc, `user["email"]`)
		require.True(t, ok)
		require.Equal(t, "ada@example.com", v)
	})

	t.Run("leading dollar", func(t *testing.T) {
		v, ok := LootField(fieldDoc, "$.user.name")
		require.True(t, ok)
		require.Equal(t, "ada", v)
	})

	t.Run("wildcard over array", func(t *testing.T) {
		v, ok := LootField(fieldDoc, "users[*].email")
		require.True(t, ok)
		require.Equal(t, []any{"a@example.com", "b@example.com"}, v)
	})

	t.Run("recursive descent", func(t *testing.T) {
		v, ok := LootField(fieldDoc, "..price")
		require.True(t, ok)
		require.Equal(t, 9.99, v)
	})

	t.Run("recursive descent under prefix", func(t *testing.T) {
		v, ok := LootField(fieldDoc, "user..email")
		require.True(t, ok)
		require.Equal(t, "ada@example.com", v)
	})

	t.Run("missing path", func(t *testing.T) {
		_, ok := LootField(fieldDoc, "user.missing")
		require.False(t, ok)

		_, ok = LootField(fieldDoc, "..nothing")
		require.False(t, ok)
	})

	t.Run("whole subtree", func(t *testing.T) {
		v, ok := LootField(fieldDoc, "user")
		require.True(t, ok)
		require.Equal(t, map[string]any{"name": "ada", "email": "ada@example.com"}, v)
	})
}
