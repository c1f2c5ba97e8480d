package dto

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var academicYearPattern = regexp.MustCompile(`^\d{4}/\d{4}$`)

// NewValidator returns a validator with the domain tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("academic_year", func(fl validator.FieldLevel) bool {
		return academicYearPattern.MatchString(fl.Field().String())
	})
	return v
}
