package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers evalgate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: validates Go duration strings like "2s" or "30m".
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate validates the Config using struct tags and cross-field rules,
// with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	return c.validateEvals()
}

// validateEvals applies cross-field rules per declared evaluation: unique
// names and model/models mutual exclusion.
func (c *Config) validateEvals() error {
	seen := make(map[string]struct{}, len(c.Evals))
	for i, e := range c.Evals {
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("evals[%d]: duplicate eval name %q", i, e.Name)
		}
		seen[e.Name] = struct{}{}

		if e.Model != "" && len(e.Models) > 0 {
			return fmt.Errorf("evals[%d] (%s): specify model OR models, not both", i, e.Name)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"2s\" or \"30m\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
