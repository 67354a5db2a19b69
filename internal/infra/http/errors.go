package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"zkrent/internal/domain"
	"zkrent/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// retryAfterSeconds is advertised on upstream failures.
const retryAfterSeconds = "5"

type errorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeError(c *gin.Context, err error) {
	var unverifiable *usecase.UnverifiableError
	if errors.As(err, &unverifiable) {
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			Code:      "UPSTREAM_UNAVAILABLE",
			Message:   "revocation status could not be verified",
			Retryable: true,
			Details: map[string]any{
				"renterId": unverifiable.Decision.RenterID,
				"status":   unverifiable.Decision.Status,
				"isValid":  unverifiable.Decision.IsValid,
				"checks":   unverifiable.Decision.Details,
				"reasons":  unverifiable.Decision.Reasons,
			},
		})
		return
	}
	if verr, ok := domain.AsValidationError(err); ok {
		writeValidationError(c, verr.Violations)
		return
	}

	status, code, retryable := http.StatusInternalServerError, "INTERNAL", false
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnsupportedClaim):
		status, code = http.StatusBadRequest, "UNSUPPORTED_CLAIM"
	case errors.Is(err, domain.ErrVerificationFailed):
		status, code = http.StatusBadRequest, "VERIFICATION_FAILED"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		status, code, retryable = http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", true
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		status, code, retryable = http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", true
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if retryable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.JSON(status, errorResponse{Code: code, Message: message, Retryable: retryable})
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func writeValidationError(c *gin.Context, violations []domain.Violation) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Code:    "VALIDATION_FAILED",
		Message: domain.ErrValidation.Error(),
		Details: map[string]any{"violations": violations},
	})
}

// writeBindError reports JSON syntax problems as INVALID_JSON and binding
// tag failures as field violations.
func writeBindError(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		violations := make([]domain.Violation, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			violations = append(violations, domain.Violation{
				Field:   jsonFieldPath(fe),
				Message: bindingMessage(fe),
			})
		}
		writeValidationError(c, violations)
		return
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		writeValidationError(c, []domain.Violation{{Field: typeErr.Field, Message: "has the wrong type, expected " + typeErr.Type.String()}})
		return
	}
	writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
}

func jsonFieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func bindingMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must have exactly " + fe.Param() + " elements"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}

var registerTagNames sync.Once

// useJSONFieldNames makes validator report fields by their json names.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}
