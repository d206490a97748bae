// Package phone normalises patient phone numbers before they reach an SMS
// provider.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var ErrInvalid = errors.New("invalid phone number")

// DefaultRegion is used for numbers written without a country code.
const DefaultRegion = "IR"

// E164 parses raw in the given region and returns it as +<cc><number>.
func E164(raw, region string) (string, error) {
	num, err := parse(raw, region)
	if err != nil {
		return "", err
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// IsMobile reports whether raw is a valid mobile number.
func IsMobile(raw, region string) bool {
	num, err := parse(raw, region)
	if err != nil {
		return false
	}
	switch phonenumbers.GetNumberType(num) {
	case phonenumbers.MOBILE, phonenumbers.FIXED_LINE_OR_MOBILE:
		return true
	}
	return false
}

func parse(raw, region string) (*phonenumbers.PhoneNumber, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalid
	}
	if region == "" {
		region = DefaultRegion
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return nil, errors.Join(ErrInvalid, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return nil, ErrInvalid
	}
	return num, nil
}
