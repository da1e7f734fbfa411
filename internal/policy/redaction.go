package policy

import "regexp"

var (
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]{8,}=*`)
	apiKeyPattern = regexp.MustCompile(`\b(?:sk|pk|rk|api|key|token|secret)[-_][A-Za-z0-9\-_]{16,}\b`)
	hexPattern    = regexp.MustCompile(`\b[0-9a-fA-F]{40,}\b`)
)

// RedactSecrets masks credential-shaped substrings before a turn is committed
// to long-term memory. The masked text keeps its surrounding words, so a turn
// that had other content never becomes empty.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	next := bearerPattern.ReplaceAllString(out, "[REDACTED_BEARER]")
	changed = changed || next != out
	out = next

	// Run key redaction before the hex rule so prefixed keys keep the more
	// specific placeholder.
	next = apiKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = hexPattern.ReplaceAllString(out, "[REDACTED_SECRET]")
	changed = changed || next != out
	out = next

	return out, changed
}
