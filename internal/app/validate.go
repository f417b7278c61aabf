package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"staybook/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so messages match request fields
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	// bcrypt only hashes the first 72 bytes of a password
	_ = v.RegisterValidation("bcrypt", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})
	return v
}

const maxPasswordBytes = 72

// invalid turns a validator error into a domain.ErrInvalid with a readable message.
func invalid(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalid, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return f + " is required"
	case "email":
		return f + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", f, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", f, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", f, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", f, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", f, fe.Param())
	case "bcrypt":
		return fmt.Sprintf("%s must be at most %d bytes", f, maxPasswordBytes)
	case "gtfield":
		return fmt.Sprintf("%s must be after %s", f, strings.ToLower(fe.Param()))
	default:
		return f + " is invalid"
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalid, fmt.Sprintf(format, args...))
}
