package loot

import (
	"strings"
)

// FindCandidates returns the substrings of text that look like JSON
// objects or arrays, ordered by how likely they are to be the payload:
// fenced ```json blocks first, then other fenced blocks, then balanced
// brace and bracket spans found in the remaining text. Results are
// de-duplicated, preserving first-seen order.
func FindCandidates(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || (s[0] != '{' && s[0] != '[') {
			return
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	jsonFences, otherFences, masked := splitFences(text)
	for _, block := range jsonFences {
		add(block)
	}
	for _, block := range otherFences {
		add(block)
	}

	for _, span := range scanBalanced(masked, '{', '}') {
		add(span)
	}
	for _, span := range scanBalanced(masked, '[', ']') {
		add(span)
	}

	return out
}

// splitFences extracts markdown code fences, returning json-tagged blocks,
// untagged/other blocks, and a copy of text with every fence blanked out
// so the balanced scan does not see the same content twice.
func splitFences(text string) (jsonBlocks, otherBlocks []string, masked string) {
	buf := []byte(text)
	for i := 0; i+2 < len(text); {
		open := strings.Index(text[i:], "```")
		if open < 0 {
			break
		}
		open += i

		infoEnd := strings.IndexByte(text[open+3:], '\n')
		if infoEnd < 0 {
			break
		}
		info := strings.TrimSpace(text[open+3 : open+3+infoEnd])
		bodyStart := open + 3 + infoEnd + 1

		closeRel := strings.Index(text[bodyStart:], "```")
		if closeRel < 0 {
			break
		}
		body := text[bodyStart : bodyStart+closeRel]

		if strings.EqualFold(info, "json") {
			jsonBlocks = append(jsonBlocks, body)
		} else {
			otherBlocks = append(otherBlocks, body)
		}

		fenceEnd := bodyStart + closeRel + 3
		for j := open; j < fenceEnd; j++ {
			if buf[j] != '\n' {
				buf[j] = ' '
			}
		}
		i = fenceEnd
	}
	return jsonBlocks, otherBlocks, string(buf)
}

// scanBalanced finds top-level balanced open..close spans, tracking string
// literals and escapes so delimiters inside strings do not count.
func scanBalanced(text string, open, close byte) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth > 0 {
				depth--
				if depth == 0 {
					spans = append(spans, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}
