// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// RetryAfterSeconds is advertised on retryable failures.
const RetryAfterSeconds = 2

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeProblem(w, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Code:   string(shared.CodeValidation),
			Detail: "request validation failed",
			Fields: fields,
		})
		return
	}

	code := shared.CodeOf(err)
	meta := shared.MetadataFor(code)
	detail := ""
	if code != shared.CodeInternal {
		detail = err.Error()
	}
	if meta.Retryable {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	writeProblem(w, ProblemDetail{
		Title:     meta.Title,
		Status:    meta.HTTPStatus,
		Code:      string(code),
		Detail:    detail,
		Retryable: meta.Retryable,
	})
}
