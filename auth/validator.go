package auth

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"campus-chat/errors"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// mimePattern accepts "type/subtype", "type/*" and "*/*".
var mimePattern = regexp.MustCompile(`^(\*|[a-z0-9][a-z0-9!#$&^_.+-]*)/(\*|[a-z0-9][a-z0-9!#$&^_.+-]*)$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("mimepattern", func(fl validator.FieldLevel) bool {
		return mimePattern.MatchString(strings.ToLower(strings.TrimSpace(fl.Field().String())))
	})
	return v
}

// Validate checks the struct tags of a request or settings value and reports
// the first failing field as a validation error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !stderrors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return errors.Wrap(errors.KindValidation, "invalid_request", "request cannot be validated", err)
	}
	fe := fieldErrors[0]
	return errors.Validation("invalid_"+strings.ToLower(fe.Field()),
		fmt.Sprintf("%s failed on %q", fe.Namespace(), describe(fe)))
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
