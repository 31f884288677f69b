package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/snipvault/snipvault/internal/domain/admission"
)

// RegisterCustomValidators registers SnipVault-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	if err := v.RegisterValidation("argon2id_hash", validateArgon2idHash); err != nil {
		return fmt.Errorf("failed to register argon2id_hash validator: %w", err)
	}
	return nil
}

// validateDuration validates Go duration strings like "30s" or "15m".
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// validateArgon2idHash validates the PHC string form produced by argon2id.
func validateArgon2idHash(fl validator.FieldLevel) bool {
	return strings.HasPrefix(fl.Field().String(), "$argon2id$")
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validatePolicyOverrides(); err != nil {
		return err
	}
	if err := c.validateUserUniqueness(); err != nil {
		return err
	}

	return nil
}

// validatePolicyOverrides ensures every override names a built-in policy.
func (c *Config) validatePolicyOverrides() error {
	known := make(map[string]struct{})
	for _, name := range admission.DefaultCatalog().Names() {
		known[name] = struct{}{}
	}

	for i, override := range c.Admission.Policies {
		if _, exists := known[override.Name]; !exists {
			return fmt.Errorf("admission.policies[%d]: unknown policy %q (known: %s)",
				i, override.Name, strings.Join(admission.DefaultCatalog().Names(), ", "))
		}
	}
	return nil
}

// validateUserUniqueness ensures user IDs and emails are unique.
func (c *Config) validateUserUniqueness() error {
	seenIDs := make(map[string]struct{}, len(c.Auth.Users))
	seenEmails := make(map[string]struct{}, len(c.Auth.Users))
	for i, u := range c.Auth.Users {
		if _, dup := seenIDs[u.ID]; dup {
			return fmt.Errorf("auth.users[%d]: duplicate id %q", i, u.ID)
		}
		seenIDs[u.ID] = struct{}{}

		email := strings.ToLower(u.Email)
		if _, dup := seenEmails[email]; dup {
			return fmt.Errorf("auth.users[%d]: duplicate email %q", i, u.Email)
		}
		seenEmails[email] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
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

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"30s\" or \"15m\"", field)
	case "argon2id_hash":
		return fmt.Sprintf("%s must be an argon2id hash (generate with 'snipvault hash-password')", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
