package genai

import "strings"

// extractSQL pulls the query out of a model response, preferring <sql> tags
// and falling back to markdown fences or the raw text.
func extractSQL(text string) string {
	if content, found := extractContentBetween(text, "<sql>", "</sql>"); found {
		return StripCodeFences(content)
	}
	return StripCodeFences(text)
}

var fenceLanguages = map[string]bool{"": true, "sql": true, "postgresql": true, "postgres": true, "psql": true, "mysql": true}

// StripCodeFences removes a surrounding ```sql or ``` block and trims whitespace.
// Text without fences is returned trimmed.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if fenceLanguages[strings.ToLower(strings.TrimSpace(s[:nl]))] {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "sql"), "SQL")
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// extractContentBetween extracts content between start and end tags from a string.
func extractContentBetween(text, startTag, endTag string) (string, bool) {
	startIndex := strings.Index(text, startTag)
	if startIndex == -1 {
		return "", false
	}
	startIndex += len(startTag)
	endIndex := strings.Index(text[startIndex:], endTag)
	if endIndex == -1 {
		return "", false
	}
	return strings.TrimSpace(text[startIndex : startIndex+endIndex]), true
}
