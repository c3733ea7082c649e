package policy

import (
	"regexp"
	"unicode/utf8"
)

var (
	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern   = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern    = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	apiKeyPattern  = regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{16,}\b`)
	accountPattern = regexp.MustCompile(`(?i)\b(account|acct|a/c)(\s*(?:no\.?|number|#))?\s*:?\s*\d{6,18}\b`)
)

// RedactPII masks common high-risk PII and credential patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	replace := func(re *regexp.Regexp, marker string) {
		next := re.ReplaceAllString(out, marker)
		changed = changed || next != out
		out = next
	}

	replace(emailPattern, "[REDACTED_EMAIL]")
	replace(apiKeyPattern, "[REDACTED_KEY]")
	replace(accountPattern, "[REDACTED_ACCOUNT]")
	// Card before phone so long digit runs are not classified as phone numbers.
	replace(cardPattern, "[REDACTED_CARD]")
	replace(phonePattern, "[REDACTED_PHONE]")

	return out, changed
}

// ForLog redacts input and truncates it to max runes.
func ForLog(input string, max int) string {
	out, _ := RedactPII(input)
	if max <= 0 || utf8.RuneCountInString(out) <= max {
		return out
	}
	runes := []rune(out)
	return string(runes[:max]) + "…"
}
