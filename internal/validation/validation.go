package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrValidationFailed is the parent of every error returned by this package.
// Handlers map it to 422 VALIDATION_FAILED.
var ErrValidationFailed = errors.New("validation failed")

// ErrCityEmpty is returned when city is empty or whitespace-only after trim.
var ErrCityEmpty = fmt.Errorf("%w: city is required", ErrValidationFailed)

// ErrCityTooShort is returned when city length is below the minimum.
var ErrCityTooShort = fmt.Errorf("%w: city too short", ErrValidationFailed)

// ErrCityTooLong is returned when city length exceeds the maximum.
var ErrCityTooLong = fmt.Errorf("%w: city too long", ErrValidationFailed)

// ErrCityInvalidChars is returned when city contains disallowed characters.
var ErrCityInvalidChars = fmt.Errorf("%w: city contains invalid characters", ErrValidationFailed)

// ErrCityScript is returned when city has no rune of the required script.
var ErrCityScript = fmt.Errorf("%w: city is not in the required script", ErrValidationFailed)

// scripts maps config names to Unicode script tables.
var scripts = map[string]*unicode.RangeTable{
	"arabic": unicode.Arabic,
	"latin":  unicode.Latin,
}

// KnownScript reports whether name is accepted by ValidateCity. Empty means no
// script requirement.
func KnownScript(name string) bool {
	if name == "" {
		return true
	}
	_, ok := scripts[name]
	return ok
}

// ValidateCity trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to letters, combining marks (Arabic harakat), digits, spaces
// and punctuation. Punctuation is dropped by the normalizer, so "Cairo!" looks
// up Cairo. Control characters and symbols are rejected. When requiredScript
// is set, at least one letter must belong to that script.
// Normalization for matching is left to the normalize package.
func ValidateCity(input string, minLen, maxLen int, requiredScript string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	if table, ok := scripts[requiredScript]; ok {
		found := false
		for _, c := range r {
			if unicode.IsLetter(c) && unicode.Is(table, c) {
				found = true
				break
			}
		}
		if !found {
			return "", ErrCityScript
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	return r == ' ' || unicode.IsPunct(r)
}

// CityRequest is the POST /nurses body.
type CityRequest struct {
	City string `json:"city" validate:"required,notblank"`
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// ValidateRequest checks struct tags on req and wraps failures in ErrValidationFailed.
func ValidateRequest(req any) error {
	if err := structValidator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed on %s", ErrValidationFailed, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return nil
}
