package permission

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that understands the "permtoken" tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("permtoken", func(fl validator.FieldLevel) bool {
		_, err := ParseToken(fl.Field().String())
		return err == nil
	})
	return v
}

// FromValidatorError converts the first failed field of err into a
// ValidationError. Other errors are returned unchanged.
func FromValidatorError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]

	reason := "failed " + fe.Tag()
	switch fe.Tag() {
	case "permtoken":
		reason = "must match <module>.<action> using [a-z0-9_]"
	case "required":
		reason = "is required"
	case "max":
		reason = "must be at most " + fe.Param() + " characters"
	}

	value, _ := fe.Value().(string)
	return &ValidationError{
		Field:  strings.ToLower(fieldRoot(fe.Field())),
		Value:  value,
		Reason: reason,
	}
}

// fieldRoot strips a slice index, "Permissions[2]" -> "Permissions".
func fieldRoot(field string) string {
	if i := strings.IndexByte(field, '['); i > 0 {
		return field[:i]
	}
	return field
}
