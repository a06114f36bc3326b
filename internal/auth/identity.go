package auth

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"time"
)

var nonWordChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

const networkHashLength = 16

// IdentityGenerator derives the network identity hash stored on each account.
// The result is a display fingerprint reserved for peer discovery. It repeats every minute for
// identical inputs and must not be treated as unique or secret.
type IdentityGenerator struct {
	now func() time.Time
}

// NewIdentityGenerator returns a generator reading the wall clock.
func NewIdentityGenerator() IdentityGenerator {
	return IdentityGenerator{now: time.Now}
}

// Generate returns up to 16 characters of base64("<second>_<firstName>_<email without symbols>")
// with symbols removed.
func (g IdentityGenerator) Generate(firstName, email string) string {
	now := time.Now
	if g.now != nil {
		now = g.now
	}
	second := strconv.Itoa(now().Second())
	stripped := nonWordChars.ReplaceAllString(email, "")
	encoded := base64.StdEncoding.EncodeToString([]byte(second + "_" + firstName + "_" + stripped))
	encoded = nonWordChars.ReplaceAllString(encoded, "")
	if len(encoded) > networkHashLength {
		encoded = encoded[:networkHashLength]
	}
	return encoded
}
