// Package render writes JSON responses and binds validated JSON requests.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

const (
	ValidationErrorType = "validation_failed"
	DecodingErrorType   = "decoding_failed"
	ServiceErrorType    = "service_error"
)

var validate = validator.New()

func init() {
	configureValidator(validate)
}

// Messages for failed validation tags. Unknown tags get defaultFieldMessage
var fieldMessages = map[string]string{
	"required": "This field is required",
	"money":    "Must be a positive amount with at most 2 decimal places",
	"oneof":    "Must be one of: %s",
	"gte":      "Must be at least %s",
	"lte":      "Must be at most %s",
}

const defaultFieldMessage = "Invalid value"

type Struct any

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	JSONWithStatus(w, data, http.StatusOK)
}

// JSONWithStatus sends data as json and enforces status code.
// HTML escaping is off: checkout urls carry '&' in query strings
func JSONWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

// ServiceError renders message safe to show to the client
func ServiceError(w http.ResponseWriter, message string, code int) {
	JSONWithStatus(w, ErrorResponse{Error: ServiceErrorType, Message: message}, code)
}

// DecodeError renders request body decoding failure as 400
func DecodeError(w http.ResponseWriter, err error) {
	var (
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
		message   string
	)

	switch {
	case errors.Is(err, io.EOF):
		message = "Request body is empty"
	case errors.As(err, &typeErr):
		message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	case errors.As(err, &syntaxErr):
		message = fmt.Sprintf("Malformed JSON at offset %d", syntaxErr.Offset)
	default:
		message = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	JSONWithStatus(w, ErrorResponse{Error: DecodingErrorType, Message: message}, http.StatusBadRequest)
}

// ValidationErrors renders message per failed field as 400
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	response := ErrorResponse{
		Error:   ValidationErrorType,
		Message: "Request validation failed",
		Fields:  make(map[string]string, len(errs)),
	}

	for _, fieldError := range errs {
		response.Fields[fieldError.Field()] = fieldMessage(fieldError)
	}

	JSONWithStatus(w, response, http.StatusBadRequest)
}

func fieldMessage(fe validator.FieldError) string {
	msg, ok := fieldMessages[fe.Tag()]
	if !ok {
		return defaultFieldMessage
	}
	if fe.Param() != "" {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}

// BindAndValidate decodes JSON request body into T and validates it with struct tags.
// On failure the error response is written already and the caller only has to return
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		DecodeError(w, err)
		return value, err
	}

	if err := validate.Struct(value); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return value, err
		}
		ValidationErrors(w, errs)
		return value, err
	}

	return value, nil
}
