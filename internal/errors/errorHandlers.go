package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden           ErrorType = "FORBIDDEN"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeQuotaExceeded       ErrorType = "QUOTA_EXCEEDED"
	ErrorTypeProvider            ErrorType = "PROVIDER_ERROR"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
	// Extra is merged into the response body.
	Extra gin.H
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

// With attaches an extra response field.
func (e *CustomError) With(key string, value interface{}) *CustomError {
	if e.Extra == nil {
		e.Extra = gin.H{}
	}
	e.Extra[key] = value
	return e
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// New400Error creates a new bad request error
func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// New401Error creates a new unauthorized error
func New401Error(message string) *CustomError {
	if message == "" {
		message = "Unauthorized access"
	}
	return newError(ErrorTypeUnauthorized, message, http.StatusUnauthorized, nil)
}

// New403Error creates a new forbidden error
func New403Error() *CustomError {
	return newError(ErrorTypeForbidden, "Access forbidden", http.StatusForbidden, nil)
}

// New404Error creates a new not found error
func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

// New429Error names the violated limit.
func New429Error(message string) *CustomError {
	return newError(ErrorTypeQuotaExceeded, message, http.StatusTooManyRequests, nil)
}

// NewProviderError reports an upstream failure verbatim.
func NewProviderError(message string, internal error) *CustomError {
	return newError(ErrorTypeProvider, message, http.StatusInternalServerError, internal)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	msg := "An unexpected error occurred"
	if internal != nil {
		msg = "Unexpected error: " + internal.Error()
	}
	return newError(ErrorTypeInternalServerError, msg, http.StatusInternalServerError, internal)
}

// NewBindingError turns gin binding failures into a readable 400.
func NewBindingError(err error) *CustomError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return New400Error(fe.Field() + ": failed on the '" + fe.Tag() + "' rule")
	}
	return New400Error(err.Error())
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	var customErr *CustomError
	if !errors.As(err, &customErr) {
		customErr = New500Error(err)
	}

	log := zerolog.Ctx(c.Request.Context())
	switch customErr.Type {
	case ErrorTypeInternalServerError:
		log.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Internal Server Error")
	case ErrorTypeProvider:
		log.Warn().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Provider error")
	}

	body := gin.H{
		"success": false,
		"error":   customErr.Message,
		"type":    customErr.Type,
	}
	for k, v := range customErr.Extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(customErr.StatusCode, body)
}

// Recovery answers a panic with the same JSON body as any other 500.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		HandleError(c, New500Error(fmt.Errorf("panic: %v", recovered)))
	})
}
