package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "growthsheet/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Field            string `json:"field,omitempty"`
}

// ErrorBody translates an error into the envelope and its HTTP status.
func ErrorBody(err error) (int, ErrorResponse) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return DomainCodeToHTTPStatus(domainErr.Code), ErrorResponse{
			Error:            string(domainErr.Code),
			ErrorDescription: domainErr.Message,
			Field:            domainErr.Field,
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: string(dErrors.CodeInternal)}
}

// WriteError centralizes domain error translation to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	status, body := ErrorBody(err)
	WriteJSON(w, status, body)
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeEmptyResult:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTransport, dErrors.CodeBadData:
		return http.StatusBadGateway
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
