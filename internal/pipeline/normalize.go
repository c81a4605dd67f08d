package pipeline

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	spacedAcronymRe = regexp.MustCompile(`\b[A-Z](?: [A-Z])+\b`)
	identifierREs   = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		regexp.MustCompile(`\b[A-Z]{2}\d{6}\b`),
	}
)

// Normalize joins spaced-out capitals ("M R I" -> "MRI"), masks personal
// identifiers and trims the result. Applying it twice changes nothing.
func Normalize(text string) string {
	text = spacedAcronymRe.ReplaceAllStringFunc(text, func(m string) string {
		return strings.ReplaceAll(m, " ", "")
	})
	for _, re := range identifierREs {
		text = re.ReplaceAllString(text, redacted)
	}
	return strings.TrimSpace(text)
}
