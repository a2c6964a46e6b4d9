package engine

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes {{key}} placeholders in text with values from vars.
// Unknown keys render as empty strings rather than being left as literal
// placeholders.
func Render(text string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[key]
	})
}
