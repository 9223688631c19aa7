// Package vdf provides targeted scanning and in-place mutation of Valve's
// config format: brace-delimited, quoted key/value text as found in
// loginusers.vdf, registry.vdf and localconfig.vdf. It is deliberately not
// a parser. Callers locate the byte span of a single block or substitute a
// single field; the surrounding text is never interpreted or rewritten.
package vdf

import (
	"errors"
	"regexp"
)

var (
	// ErrNotFound reports that no block with the requested key exists.
	ErrNotFound = errors.New("vdf: block not found")
	// ErrUnterminated reports that the block's opening brace was found but
	// its matching close was not (truncated or corrupt file).
	ErrUnterminated = errors.New("vdf: block not terminated")
)

// Block is the byte span of a brace-delimited block within the scanned
// text. Start is the index of the opening brace and End the index just past
// the matching close, so content[Start:End] includes both braces.
type Block struct {
	Start int
	End   int
}

// FindBlock locates the first occurrence of `"<key>" {` (whitespace between
// the quoted key and the brace is tolerated) and returns the span of the
// block it opens. Matching is a single left-to-right scan keeping a nesting
// depth counter and an inside-quotes flag: braces inside quoted strings do
// not affect depth, and a quote toggles the flag unless it is escaped by an
// odd run of preceding backslashes.
func FindBlock(content, key string) (Block, error) {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*(\{)`)
	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return Block{}, ErrNotFound
	}

	open := loc[2]
	depth := 0
	inQuote := false
	for i := open; i < len(content); i++ {
		switch content[i] {
		case '"':
			if !escaped(content, i) {
				inQuote = !inQuote
			}
		case '{':
			if !inQuote {
				depth++
			}
		case '}':
			if !inQuote {
				depth--
				if depth == 0 {
					return Block{Start: open, End: i + 1}, nil
				}
			}
		}
	}
	return Block{}, ErrUnterminated
}

// escaped reports whether the byte at index i is preceded by an odd number
// of consecutive backslashes.
func escaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}
