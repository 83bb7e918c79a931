package validator

import (
	"fmt"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/portal-api/pkg/errors"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
}

type validator struct {
	validate *playground.Validate
}

func New() Validator {
	return &validator{
		validate: playground.New(playground.WithRequiredStructEnabled()),
	}
}

// Validate checks struct fields against their `validate` tags and converts
// the first failure into a ValidationError naming the field.
func (v *validator) Validate(obj interface{}) error {
	err := v.validate.Struct(obj)
	if err == nil {
		return nil
	}

	verrs, ok := err.(playground.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.NewValidation("", err.Error())
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	return errors.NewValidation(field, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
}
