// Package phone normalises phone numbers given in free text.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizeE164 formats input as E.164, reading numbers without a country code
// in defaultRegion. Input that does not parse to a valid number comes back trimmed.
func NormalizeE164(input, defaultRegion string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(defaultRegion))
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}
