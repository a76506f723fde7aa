package httputil

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/booking-api/pkg/errors"
)

var validationMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"min":      "is too short",
	"max":      "is too long",
	"date":     "must be a date in YYYY-MM-DD form",
	"clock":    "must be a time in HH:MM form",
}

// BindingError converts a request binding failure into a 400 with a
// readable description of every invalid field.
func BindingError(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msg, ok := validationMessages[fe.Tag()]
			if !ok {
				msg = fmt.Sprintf("failed %q validation", fe.Tag())
			}
			parts = append(parts, fe.Field()+" "+msg)
		}
		return errors.BadRequest(strings.Join(parts, "; "), err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.Is(err, io.EOF):
		return errors.BadRequest("request body is required", err)
	case stderrors.As(err, &syntaxErr), stderrors.Is(err, io.ErrUnexpectedEOF):
		return errors.BadRequest("request body is not valid JSON", err)
	case stderrors.As(err, &typeErr):
		return errors.BadRequest(fmt.Sprintf("%s has the wrong type", typeErr.Field), err)
	}
	return errors.BadRequest("invalid request body", err)
}
