package orchestrator

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/aescanero/quizsolver/pkg/domain"
)

var (
	// ErrInvalidSecret is returned when the request secret does not match
	ErrInvalidSecret = errors.New("invalid secret")
	// ErrEmailNotAllowed is returned when the service is bound to another email
	ErrEmailNotAllowed = errors.New("email not allowed")
)

// ValidationError describes a malformed quiz request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator checks quiz requests
type Validator struct {
	secretKey    string
	allowedEmail string
}

// NewValidator creates a validator. An empty allowedEmail accepts any address.
func NewValidator(secretKey, allowedEmail string) *Validator {
	return &Validator{
		secretKey:    secretKey,
		allowedEmail: strings.TrimSpace(allowedEmail),
	}
}

// Validate checks the request fields are well formed
func (v *Validator) Validate(req *domain.QuizRequest) error {
	if req == nil {
		return &ValidationError{Field: "request", Message: "is required"}
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "is not a valid address"}
	}

	if req.Secret == "" {
		return &ValidationError{Field: "secret", Message: "is required"}
	}

	if strings.TrimSpace(req.URL) == "" {
		return &ValidationError{Field: "url", Message: "is required"}
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return &ValidationError{Field: "url", Message: "is not a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "must use http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "url", Message: "must include a host"}
	}

	return nil
}

// Authorize checks the secret and, when configured, the allowed email
func (v *Validator) Authorize(req *domain.QuizRequest) error {
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(v.secretKey)) != 1 {
		return ErrInvalidSecret
	}
	if v.allowedEmail != "" && !strings.EqualFold(strings.TrimSpace(req.Email), v.allowedEmail) {
		return ErrEmailNotAllowed
	}
	return nil
}
