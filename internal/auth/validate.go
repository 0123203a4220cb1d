package auth

import (
	"regexp"
	"unicode"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

const (
	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 8
)

// validateRegistration checks the registration against the sign-up policy and
// returns every violation, not just the first, so the caller sees the full
// list in one round trip.
func validateRegistration(reg Registration) []string {
	var msgs []string

	if reg.Email == "" {
		msgs = append(msgs, "email is required")
	} else if !emailRe.MatchString(reg.Email) {
		msgs = append(msgs, "email format is invalid")
	}

	switch {
	case reg.Username == "":
		msgs = append(msgs, "username is required")
	case len(reg.Username) < minUsernameLen:
		msgs = append(msgs, "username must be at least 3 characters")
	case len(reg.Username) > maxUsernameLen:
		msgs = append(msgs, "username must be at most 64 characters")
	}

	msgs = append(msgs, passwordViolations(reg.Password)...)
	return msgs
}

func passwordViolations(password string) []string {
	var msgs []string
	if len(password) < minPasswordLen {
		msgs = append(msgs, "password must be at least 8 characters")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		msgs = append(msgs, "password must contain both letters and digits")
	}
	return msgs
}
