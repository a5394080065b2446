package kiro

import "strings"

func isQuoteCharAt(text string, index int) bool {
	if index < 0 || index >= len(text) {
		return false
	}
	switch text[index] {
	case '"', '\'', '`':
		return true
	}
	return false
}

// findRealTag finds tag in text ignoring occurrences adjacent to a quote
// character. Model output quotes thinking tags when talking about them; only
// bare tags delimit actual thinking content.
func findRealTag(text, tag string, startIndex int) int {
	searchStart := startIndex
	if searchStart < 0 {
		searchStart = 0
	}
	for {
		rel := strings.Index(text[searchStart:], tag)
		if rel < 0 {
			return -1
		}
		pos := searchStart + rel
		if !isQuoteCharAt(text, pos-1) && !isQuoteCharAt(text, pos+len(tag)) {
			return pos
		}
		searchStart = pos + 1
	}
}
