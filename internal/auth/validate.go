package auth

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultEmailDomain = "bookie.ac.uk"
	DefaultMinimumAge  = 12
)

var nameRule = regexp.MustCompile(`^[a-zA-Z]{3,}$`)

// Policy holds the credential and profile rules. Its methods are pure.
type Policy struct {
	EmailDomain string
	MinimumAge  int

	emailRule *regexp.Regexp
}

// NewPolicy compiles the rules for an institutional email domain.
func NewPolicy(emailDomain string, minimumAge int) Policy {
	emailDomain = strings.ToLower(strings.TrimSpace(emailDomain))
	if emailDomain == "" {
		emailDomain = DefaultEmailDomain
	}
	if minimumAge <= 0 {
		minimumAge = DefaultMinimumAge
	}
	return Policy{
		EmailDomain: emailDomain,
		MinimumAge:  minimumAge,
		emailRule:   regexp.MustCompile(`^[a-zA-Z0-9._-]+@` + regexp.QuoteMeta(emailDomain) + `$`),
	}
}

// DefaultPolicy is the policy for @bookie.ac.uk accounts aged 12 and over.
func DefaultPolicy() Policy {
	return NewPolicy(DefaultEmailDomain, DefaultMinimumAge)
}

// NormalizeName trims and lower-cases a first or last name.
func NormalizeName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// ValidateName checks a normalized name: letters only, at least three of them.
func (p Policy) ValidateName(field, value string) error {
	if nameRule.MatchString(value) {
		return nil
	}
	label := "Name"
	switch field {
	case FieldFirstName:
		label = "First name"
	case FieldLastName:
		label = "Last name"
	}
	return invalid(field, label+" must be at least 3 characters and only contain alphabets")
}

// ValidateEmail checks a normalized email against the institutional domain.
func (p Policy) ValidateEmail(value string) error {
	rule := p.emailRule
	if rule == nil {
		rule = DefaultPolicy().emailRule
	}
	if rule.MatchString(value) {
		return nil
	}
	domain := p.EmailDomain
	if domain == "" {
		domain = DefaultEmailDomain
	}
	return invalid(FieldEmail, "Invalid email address provided, must only contain alphanumeric characters, ., _ and - and end with @"+domain)
}

// ValidateDateOfBirth rejects future dates and ages under MinimumAge whole years. The birth date is
// the calendar date of dob as given, the date that gets stored; today is the calendar date of now.
func (p Policy) ValidateDateOfBirth(dob, now time.Time) error {
	minimum := p.MinimumAge
	if minimum <= 0 {
		minimum = DefaultMinimumAge
	}
	born := civilDate(dob)
	today := civilDate(now)
	if born.After(today) {
		return invalid(FieldDateOfBirth, "Date of birth cannot be in the future")
	}
	if wholeYears(born, today) < minimum {
		return invalid(FieldDateOfBirth, "Date of birth must be equivalent to at least "+strconv.Itoa(minimum)+" years old")
	}
	return nil
}

// ValidatePasswordPresence requires a password that is not blank.
func (p Policy) ValidatePasswordPresence(value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(FieldPassword, "Password is required")
	}
	return nil
}

// ValidatePasswordConfirmation requires the confirmation to match exactly.
func (p Policy) ValidatePasswordConfirmation(value, confirmation string) error {
	if value != confirmation {
		return invalid(FieldConfirmPassword, "New password is not the same as the password confirmation")
	}
	return nil
}

// validateProfile normalizes and checks names and email, then the date of birth when present.
func (p Policy) validateProfile(first, last, email string, dob *time.Time, now time.Time) (string, string, string, error) {
	first, last, email = NormalizeName(first), NormalizeName(last), NormalizeEmail(email)
	if err := p.ValidateName(FieldFirstName, first); err != nil {
		return "", "", "", err
	}
	if err := p.ValidateName(FieldLastName, last); err != nil {
		return "", "", "", err
	}
	if err := p.ValidateEmail(email); err != nil {
		return "", "", "", err
	}
	if dob != nil {
		if err := p.ValidateDateOfBirth(*dob, now); err != nil {
			return "", "", "", err
		}
	}
	return first, last, email, nil
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// wholeYears counts completed years from born to today. A Feb 29 birthday completes
// its year on Mar 1 in common years.
func wholeYears(born, today time.Time) int {
	years := today.Year() - born.Year()
	if today.Month() < born.Month() || (today.Month() == born.Month() && today.Day() < born.Day()) {
		years--
	}
	return years
}
