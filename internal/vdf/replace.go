package vdf

import (
	"regexp"
	"strings"
)

// ReplaceString rewrites the value of every `"<key>" "<old>"` pair to
// value, matching the key case-insensitively. value is inserted literally
// and must not contain a double quote. Returns the rewritten text and the
// number of values replaced; zero means the text is returned unchanged.
func ReplaceString(content, key, value string) (string, int) {
	re := regexp.MustCompile(`(?i)"` + regexp.QuoteMeta(key) + `"\s+"[^"]*"`)
	n := 0
	out := re.ReplaceAllStringFunc(content, func(m string) string {
		n++
		// The value is the span between the last two quotes of the match.
		open := strings.LastIndex(m[:len(m)-1], `"`)
		return m[:open+1] + value + `"`
	})
	return out, n
}

// SetFlag rewrites every `"<key>" "0"` pair to `"1"` when on is true, and
// every `"<key>" "1"` to `"0"` otherwise. The key is matched
// case-insensitively and its original spelling is preserved. Returns the
// rewritten text and the number of flags changed.
func SetFlag(content, key string, on bool) (string, int) {
	from, to := `"0"`, `"1"`
	if !on {
		from, to = `"1"`, `"0"`
	}
	re := regexp.MustCompile(`(?i)"` + regexp.QuoteMeta(key) + `"\s+` + regexp.QuoteMeta(from))
	n := 0
	out := re.ReplaceAllStringFunc(content, func(m string) string {
		n++
		return m[:len(m)-len(from)] + to
	})
	return out, n
}
