// Package validate holds the shared credential validation rules consumed by
// registration and by the engine's change/reset flows. Inputs returns every
// violation, not just the first, so callers can present all of them at once.
package validate

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	playground "github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

const (
	usernameMinLen = 5
	usernameMaxLen = 50
	passwordMinLen = 8
	passwordMaxLen = 64
)

var v = playground.New(playground.WithRequiredStructEnabled())

// Violation is one field-level rule failure.
type Violation struct {
	Field   string
	Message string
}

func (e Violation) Error() string {
	return e.Field + ": " + e.Message
}

// Inputs is the input set for credential validation. ConfirmPassword is only
// checked when HasConfirm is true. PhoneInUse, when set, is consulted with
// the normalized phone to reject numbers already bound to another account.
type Inputs struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
	HasConfirm      bool
	Phone           string

	CommonPasswords map[string]struct{}
	PhoneInUse      func(ctx context.Context, e164 string) (bool, error)
}

// Run validates all fields and returns the normalized E.164 phone (empty when
// no phone was supplied) together with the full violation list. An empty list
// means the inputs are acceptable.
func Run(ctx context.Context, in Inputs) (string, []error) {
	var violations []error

	if err := v.Var(in.Email, "required,email"); err != nil {
		violations = append(violations, Violation{Field: "email", Message: "must be a well-formed email address"})
	}

	if err := v.Var(in.Username, fmt.Sprintf("required,min=%d,max=%d", usernameMinLen, usernameMaxLen)); err != nil {
		violations = append(violations, Violation{
			Field:   "username",
			Message: fmt.Sprintf("must be between %d and %d characters", usernameMinLen, usernameMaxLen),
		})
	}

	violations = append(violations, Password(in.Password, in.CommonPasswords)...)

	if in.HasConfirm && in.ConfirmPassword != in.Password {
		violations = append(violations, Violation{Field: "confirm_password", Message: "must match password"})
	}

	normalized := ""
	if in.Phone != "" {
		var err error
		normalized, err = NormalizePhone(in.Phone)
		if err != nil {
			violations = append(violations, Violation{Field: "phone", Message: "must be a valid phone number"})
		} else if in.PhoneInUse != nil {
			inUse, err := in.PhoneInUse(ctx, normalized)
			if err != nil {
				violations = append(violations, Violation{Field: "phone", Message: "could not be verified"})
			} else if inUse {
				violations = append(violations, Violation{Field: "phone", Message: "already belongs to another account"})
			}
		}
	}

	return normalized, violations
}

// Password applies the shared password policy: 8–64 characters containing at
// least one letter, one digit, and one symbol, and not present in the common
// password set.
func Password(password string, common map[string]struct{}) []error {
	var violations []error

	if len(password) < passwordMinLen || len(password) > passwordMaxLen {
		violations = append(violations, Violation{
			Field:   "password",
			Message: fmt.Sprintf("must be between %d and %d characters", passwordMinLen, passwordMaxLen),
		})
	}

	var hasLetter, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if !hasLetter || !hasDigit || !hasSymbol {
		violations = append(violations, Violation{
			Field:   "password",
			Message: "must contain at least one letter, one digit, and one symbol",
		})
	}

	if common != nil {
		if _, found := common[strings.ToLower(password)]; found {
			violations = append(violations, Violation{Field: "password", Message: "is too common"})
		}
	}

	return violations
}

// NormalizePhone parses a phone number and returns its canonical
// international (E.164) form. Numbers without an explicit country code are
// rejected rather than guessed.
func NormalizePhone(phone string) (string, error) {
	parsed, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number")
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
