package shared

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their `form` tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidationFieldErrors converts validator output into FieldErrors. Errors that
// are not validation errors are returned unchanged.
func ValidationFieldErrors(err error) (FieldErrors, error) {
	if err == nil {
		return FieldErrors{}, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		out.Add(fe.Field(), Message(fe.Tag(), fe.Param()))
	}
	return out, nil
}

// Message renders a validator tag as the text shown next to a form field.
func Message(tag, param string) string {
	switch tag {
	case "required":
		return "can't be blank"
	case "email":
		return "is invalid"
	case "min":
		return fmt.Sprintf("is too short (minimum is %s characters)", param)
	case "max":
		return fmt.Sprintf("is too long (maximum is %s characters)", param)
	case "eqfield":
		return "doesn't match Password"
	default:
		return "is invalid"
	}
}
