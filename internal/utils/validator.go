package utils

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/medecole/examsession/internal/errors"
)

// Validator wraps go-playground/validator and reports failures as the
// module's structured field errors.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator whose reported field names follow the
// json tags, matching what actually goes over the wire.
func NewValidator() *Validator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: validate}
}

// Validate validates struct tags on s. Failures come back as
// errors.ValidationErrors with one entry per offending field.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	if fieldErrs := apperrors.ToValidationErrors(err); len(fieldErrs) > 0 {
		return fieldErrs
	}
	return err
}
