package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yanqian/solar-forecast/pkg/errors"
)

// HTTPError is a transport-level failure that never reached the domain, such as a malformed body.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// NewHTTPError builds an HTTPError.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

// codeStatus maps domain error codes onto response statuses.
var codeStatus = map[string]int{
	apperrors.CodeInvalidInput: http.StatusBadRequest,
	apperrors.CodeInvalidToken: http.StatusUnauthorized,
	apperrors.CodeModel:        http.StatusServiceUnavailable,
	apperrors.CodeWeather:      http.StatusBadGateway,
	apperrors.CodeQuota:        http.StatusTooManyRequests,
	apperrors.CodeCache:        http.StatusInternalServerError,
}

func statusForCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// asHTTPError resolves err into the response envelope. Domain errors keep their code and message;
// anything unrecognised becomes an opaque 500.
func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return &HTTPError{
			Status:  statusForCode(appErr.Code),
			Code:    appErr.Code,
			Message: appErr.Message,
			Err:     err,
		}
	}
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "something went wrong",
		Err:     err,
	}
}

// abortWithError stops the chain and leaves err for errorHandlingMiddleware to render.
func abortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}
