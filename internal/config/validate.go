package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	return validate
}

// validationErrorFormatters maps validation tags to their error formatting functions.
var validationErrorFormatters = map[string]func(field, param string) error{
	"required": func(field, _ string) error {
		return fmt.Errorf("%w: '%s'", ErrMissingDescriptor, field)
	},
	"min": func(field, param string) error {
		return fmt.Errorf("%w: '%s' must be at least %s", ErrInvalidConfig, field, param)
	},
	"max": func(field, param string) error {
		return fmt.Errorf("%w: '%s' must be at most %s", ErrInvalidConfig, field, param)
	},
	"oneof": func(field, param string) error {
		return fmt.Errorf("%w: '%s' must be one of [%s]", ErrInvalidConfig, field, param)
	},
}

// validateFile checks the struct tags of cfg and reports the first failure.
func validateFile(cfg File) error {
	err := getValidator().Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fieldErr := validationErrors[0]

		if format, ok := validationErrorFormatters[fieldErr.Tag()]; ok {
			return format(fieldErr.Namespace(), fieldErr.Param())
		}

		return fmt.Errorf("%w: '%s' failed on %s", ErrInvalidConfig, fieldErr.Namespace(), fieldErr.Tag())
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}
