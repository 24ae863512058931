package report

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var _ error = (*ValidationError)(nil)

// ValidationError lists every field of the report data that failed validation.
type ValidationError struct {
	errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.errors))
	for i, fe := range e.errors {
		msg := fe.Error()
		if _, ok := customValidators[fe.Tag()]; ok {
			msg = fmt.Sprintf("%s, bad value: '%v'", msg, fe.Value())
		}

		msgs[i] = msg
	}

	return fmt.Sprintf("invalid HTML report data: %s", strings.Join(msgs, "; "))
}

// Fields returns the namespaces of the invalid fields.
func (e *ValidationError) Fields() []string {
	fields := make([]string, len(e.errors))
	for i, fe := range e.errors {
		fields[i] = fe.Namespace()
	}
	return fields
}
