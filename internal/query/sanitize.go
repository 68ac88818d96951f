package query

import "strings"

// SanitizeQueryText neutralises query_string syntax in user supplied text.
// Backslash escapes are stripped, the characters \ + - become a space so
// they cannot act as boolean operators, and ':' is escaped so it cannot
// qualify a field. Applying it twice gives the same result as applying it once.
func SanitizeQueryText(text string) string {
	text = stripSlashes(text)
	text = metaReplacer.Replace(text)
	return strings.ReplaceAll(text, ":", `\:`)
}

var metaReplacer = strings.NewReplacer(`\`, " ", "+", " ", "-", " ")

// stripSlashes removes one level of backslash escaping: "\x" becomes "x",
// "\\" becomes "\" and a trailing lone backslash is dropped.
func stripSlashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) {
			i++
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
