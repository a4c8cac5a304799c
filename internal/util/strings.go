package util

// Truncate shortens s to at most max runes, appending "..." when anything
// was cut. Used for failure details persisted to the database so a single
// stack trace cannot bloat a row.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
