package processing

import "strings"

// CleanAltText strips the wrapping models like to add (quotes, markdown
// emphasis) and collapses runs of whitespace.
func CleanAltText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, "\"'`* ")
}
