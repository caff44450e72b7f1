package loot

import (
	"strings"

	"github.com/tidwall/gjson"
)

// LootField extracts a single field from raw JSON text without parsing the
// whole document. The path syntax accepts dotted keys, bracketed keys and
// indices, wildcards, and recursive descent:
//
//	user.name
//	items[0].id
//	users[*].email
//	..price
//
// The second return is false when the path does not resolve.
func LootField(text, path string) (any, bool) {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")

	if prefix, rest, ok := strings.Cut(path, ".."); ok {
		return descend(text, prefix, rest)
	}

	result := gjson.Get(text, normalizePath(path))
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// normalizePath rewrites bracket syntax into gjson's dotted form.
func normalizePath(path string) string {
	var out strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c != '[' {
			out.WriteByte(c)
			continue
		}
		end := strings.IndexByte(path[i:], ']')
		if end < 0 {
			out.WriteByte(c)
			continue
		}
		inner := path[i+1 : i+end]
		inner = strings.Trim(inner, `'"`)
		if out.Len() > 0 {
			out.WriteByte('.')
		}
		if inner == "*" {
			out.WriteByte('#')
		} else {
			out.WriteString(inner)
		}
		i += end
	}
	return out.String()
}

// descend resolves a recursive-descent segment: it evaluates the prefix
// (or the whole document when empty), then walks the resulting tree
// depth-first for the first node whose key matches the next segment,
// applying any remaining path below it.
func descend(text, prefix, rest string) (any, bool) {
	rest = strings.TrimPrefix(rest, ".")
	if rest == "" {
		return nil, false
	}
	target, remainder, _ := strings.Cut(rest, ".")
	target = normalizePath(target)

	root := gjson.Parse(text)
	if prefix = strings.Trim(prefix, "."); prefix != "" {
		root = gjson.Get(text, normalizePath(prefix))
		if !root.Exists() {
			return nil, false
		}
	}

	var found *gjson.Result
	var walk func(key string, r gjson.Result) bool
	walk = func(key string, r gjson.Result) bool {
		if key == target {
			found = &r
			return true
		}
		if !r.IsObject() && !r.IsArray() {
			return false
		}
		stop := false
		r.ForEach(func(k, v gjson.Result) bool {
			stop = walk(k.String(), v)
			return !stop
		})
		return stop
	}
	walk("", root)

	if found == nil {
		return nil, false
	}
	if remainder == "" {
		return found.Value(), true
	}
	sub := found.Get(normalizePath(remainder))
	if !sub.Exists() {
		return nil, false
	}
	return sub.Value(), true
}
