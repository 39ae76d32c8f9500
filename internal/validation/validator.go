// Package validation validates dispatch payloads with go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/lumenlib/lumen-server/internal/errors"
)

// fieldKeyPattern matches custom-field keys usable in JSON paths.
var fieldKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator with the engine's custom tags registered.
func New() *Validator {
	v := validator.New()

	// Use JSON tag names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// fieldkey: custom-field key safe for json_extract paths.
	_ = v.RegisterValidation("fieldkey", func(fl validator.FieldLevel) bool {
		return fieldKeyPattern.MatchString(fl.Field().String())
	})

	// importtype: one of the physical import strategies.
	_ = v.RegisterValidation("importtype", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "link", "copy", "move":
			return true
		}
		return false
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// ValidFieldKey reports whether key can be used as a custom-field key.
func ValidFieldKey(key string) bool {
	return fieldKeyPattern.MatchString(key)
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return domainerrors.Validation(err.Error())
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = friendlyMessage(e)
	}

	return domainerrors.ValidationWithDetails("validation failed", fieldErrors)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return "must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", e.Param())
		}
		return "must not exceed " + e.Param()
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "fieldkey":
		return "may only contain letters, digits, '_', '.' and '-'"
	case "importtype":
		return "must be one of: link copy move"
	default:
		return "is invalid"
	}
}
