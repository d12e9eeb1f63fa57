package llm

import "strings"

// CleanJSONBlock strips markdown fences and any prose around the first JSON
// object or array in text. Text with no JSON value is returned trimmed.
func CleanJSONBlock(text string) string {
	text = stripFences(strings.TrimSpace(text))

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}

	var body string
	if text[start] == '{' {
		body = extractJSONObject(text[start:])
	} else {
		body = extractJSONArray(text[start:])
	}
	if body == "" {
		return strings.TrimSpace(text[start:])
	}
	return body
}

// StripFences removes a surrounding markdown code fence and its language tag.
func StripFences(text string) string {
	return stripFences(strings.TrimSpace(text))
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop a language tag such as "json" on the opening fence line
	if idx := strings.Index(text, "\n"); idx >= 0 && isFenceTag(text[:idx]) {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// isFenceTag reports whether line can be a fence language tag. Bare JSON
// literals are content, not tags.
func isFenceTag(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) >= 20 || strings.ContainsAny(line, " {[\"'") {
		return false
	}
	switch strings.ToLower(line) {
	case "true", "false", "null":
		return false
	}
	return true
}

// extractJSONObject returns the balanced object at the start of s, or "".
func extractJSONObject(s string) string {
	return extractBalanced(s, '{', '}')
}

// extractJSONArray returns the balanced array at the start of s, or "".
func extractJSONArray(s string) string {
	return extractBalanced(s, '[', ']')
}

func extractBalanced(s string, open, closing byte) string {
	if s == "" || s[0] != open {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
