package observability

import (
	"regexp"
	"strings"
)

// Redactor masks credentials in log output. Cheatsheet content and
// transcripts pass through model providers, so leaked keys in prompts or
// error strings must never reach the logs verbatim.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

var defaultPatterns = []struct {
	pattern     string
	replacement string
}{
	{`sk-proj-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_OPENAI_PROJECT_KEY]"},
	{`sk-ant-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_ANTHROPIC_KEY]"},
	{`sk-[a-zA-Z0-9]{20,}`, "[REDACTED_OPENAI_KEY]"},
	{`Bearer\s+[a-zA-Z0-9\-_\.]+`, "Bearer [REDACTED]"},
	{`Authorization:\s*[^\s]+`, "Authorization: [REDACTED]"},
	{`hvs\.[a-zA-Z0-9]{20,}`, "[REDACTED_VAULT_TOKEN]"},
}

// NewRedactor creates a redactor with the default credential patterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.AddPattern(p.pattern, p.replacement)
	}
	return r
}

// AddPattern adds a custom redaction pattern. Invalid patterns are skipped.
func (r *Redactor) AddPattern(pattern, replacement string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	r.patterns = append(r.patterns, &redactPattern{
		regex:       regex,
		replacement: replacement,
	})
}

// Redact applies all redaction patterns to the input string.
func (r *Redactor) Redact(input string) string {
	result := input
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// RedactHeaders redacts sensitive HTTP headers.
func (r *Redactor) RedactHeaders(headers map[string][]string) map[string][]string {
	sensitive := map[string]bool{
		"authorization": true,
		"x-api-key":     true,
		"api-key":       true,
		"cookie":        true,
		"set-cookie":    true,
	}

	result := make(map[string][]string, len(headers))
	for k, v := range headers {
		if sensitive[strings.ToLower(k)] {
			result[k] = []string{"[REDACTED]"}
		} else {
			result[k] = v
		}
	}
	return result
}
