package validation

import (
	"errors"
	"regexp"
	"strings"
)

// markupEscaper neutralizes markup in free text before it is stored or echoed.
var markupEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#x27;",
	"<", "&lt;",
	">", "&gt;",
	"/", "&#x2F;",
	`\`, "&#x5C;",
	"`", "&#96;",
)

func Escape(s string) string {
	return markupEscaper.Replace(s)
}

var angleStripper = strings.NewReplacer("<", "", ">", "")

// StripAngles removes angle brackets from outbound strings.
func StripAngles(s string) string {
	return angleStripper.Replace(s)
}

var (
	hasLower   = regexp.MustCompile(`[a-z]`)
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasDigit   = regexp.MustCompile(`\d`)
	hasSpecial = regexp.MustCompile(`[@$!%*?&]`)
)

var ErrWeakPassword = errors.New("password must be at least 8 characters and contain an uppercase letter, a lowercase letter, a number and one of @$!%*?&")

// PasswordStrength applies the account creation policy.
func PasswordStrength(pw string) error {
	if len(pw) < minPasswordLen ||
		!hasLower.MatchString(pw) ||
		!hasUpper.MatchString(pw) ||
		!hasDigit.MatchString(pw) ||
		!hasSpecial.MatchString(pw) {
		return ErrWeakPassword
	}
	return nil
}
