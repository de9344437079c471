package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"galleryd/internal/services"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(validatePageRange, DownloadRequest{})
}

// validatePageRange requires end >= start when both bounds are set.
func validatePageRange(sl validator.StructLevel) {
	req := sl.Current().Interface().(DownloadRequest)
	if req.Start > 0 && req.End > 0 && req.End < req.Start {
		sl.ReportError(req.End, "End", "end", "gtefield_start", "")
	}
}

// Validate checks a request body and returns an error wrapping
// services.ErrValidation that names each failing field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return services.Wrap(services.ErrValidation, "api", "validate", "", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, describe(fe))
	}
	return services.Wrap(services.ErrValidation, "api", "validate", strings.Join(parts, "; "), nil)
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "gtefield_start":
		return "end must not be before start"
	case "url":
		return field + " must be a URL"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
