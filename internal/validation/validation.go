package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrCityNameEmpty is returned when the city name is empty or whitespace-only after trim.
var ErrCityNameEmpty = errors.New("city name is required")

// ErrCityNameTooLong is returned when the city name exceeds the column width.
var ErrCityNameTooLong = errors.New("city name too long")

// ErrCityNameInvalidChars is returned when the city name contains disallowed characters.
var ErrCityNameInvalidChars = errors.New("city name contains invalid characters")

// MaxCityNameLength matches the user_cities.city column width.
const MaxCityNameLength = 254

// ValidateCityName trims the input, enforces the length bound (in runes), and
// restricts to allowed characters: letters (Unicode), digits, space, comma,
// hyphen, period, apostrophe. The name is deliberately NOT checked against the
// catalog; unsupported cities are stored and surface as an "unsupported city"
// state on their detail page. Normalization (e.g. lowercase) is left to the
// service layer.
func ValidateCityName(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityNameEmpty
	}
	if n > MaxCityNameLength {
		return "", ErrCityNameTooLong
	}
	for _, c := range r {
		if !isAllowedCityNameRune(c) {
			return "", ErrCityNameInvalidChars
		}
	}
	return s, nil
}

// isAllowedCityNameRune returns true for letters (Unicode), digits, space,
// comma, hyphen, period, apostrophe.
func isAllowedCityNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
