package pipeline

import "regexp"

// Recognizable PII patterns a composed candidate must never carry: email
// addresses, CPF-style documents and long digit runs (phone numbers,
// card fragments). Digits may be separated by common formatting.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	regexp.MustCompile(`\d{3}\.?\d{3}\.?\d{3}-?\d{2}`),
	regexp.MustCompile(`(?:\d[ .\-()]?){8,}`),
}

// containsPII reports whether text matches any recognizable PII pattern.
func containsPII(text string) bool {
	for _, p := range piiPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
