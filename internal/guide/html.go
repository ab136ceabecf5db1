package guide

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// escapeHTML escapes the five HTML special characters in synthesized guide
// text, matching the escaping the proprietary feeds apply to theirs.
func escapeHTML(unsafe string) string {
	return htmlEscaper.Replace(unsafe)
}
