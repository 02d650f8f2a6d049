package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/daryonoff/postboard/internal/apperror"
)

// validate is shared by all handlers. A validator.Validate instance caches
// struct metadata, so one instance per process is the intended usage.
var validate = validator.New()

// decodeAndValidate reads a JSON request body into dst and checks its
// `validate` struct tags. The first failing field becomes an
// apperror.ErrValidation with the field name attached, which writeError
// turns into a 400 with a "field" key the frontend can highlight.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}

	if err := validate.Struct(dst); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
			fe := fieldErrors[0]
			return apperror.ValidationFailed(
				strings.ToLower(fe.Field()),
				fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			)
		}
		return apperror.ValidationFailed("body", "invalid request")
	}
	return nil
}
