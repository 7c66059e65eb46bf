package validator

import (
	"regexp"
	"strings"

	"github.com/Dan9191/bank-cards/internal/models"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

var cardNumberRegex = regexp.MustCompile(`^\d{16}$`)

const (
	minExpiryYear = 2025
	maxExpiryYear = 2100
)

// ValidateCardRequest checks the optional fields of a card issue request.
// Omitted fields are filled with defaults by the card service.
func ValidateCardRequest(req models.CardRequest) ValidationErrors {
	errs := make(ValidationErrors)

	if req.PlainNumber != "" && !cardNumberRegex.MatchString(req.PlainNumber) {
		errs.Add("plainNumber", "Card number must be exactly 16 digits long")
	}
	if req.ExpiryYear != nil && (*req.ExpiryYear < minExpiryYear || *req.ExpiryYear > maxExpiryYear) {
		errs.Add("expiryYear", "Expiry year must be between 2025 and 2100")
	}
	if req.ExpiryMonth != nil && (*req.ExpiryMonth < 1 || *req.ExpiryMonth > 12) {
		errs.Add("expiryMonth", "Expiry month must be between 1 and 12")
	}
	if req.InitialBalance != nil && req.InitialBalance.IsNegative() {
		errs.Add("initialBalance", "Initial balance must not be negative")
	}

	return errs
}

// ValidateUserRequest checks a user payload. Password and role may be omitted
// on update.
func ValidateUserRequest(req models.UserRequest, creating bool) ValidationErrors {
	errs := make(ValidationErrors)

	if creating && strings.TrimSpace(req.Username) == "" {
		errs.Add("username", "Username cannot be empty")
	} else if len(req.Username) > 100 {
		errs.Add("username", "Username is too long")
	}

	if strings.TrimSpace(req.FullName) == "" {
		errs.Add("fullName", "Full name cannot be empty")
	} else if len(req.FullName) > 255 {
		errs.Add("fullName", "Full name is too long")
	}

	if creating && req.Password == "" {
		errs.Add("password", "Password cannot be empty")
	}

	if creating && req.Role == "" {
		errs.Add("role", "Role is required")
	} else if req.Role != "" && !req.Role.Valid() {
		errs.Add("role", "Role must be ADMIN or USER")
	}

	return errs
}

func ValidateLogin(username, password string) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(username) == "" {
		errs.Add("username", "Username is required")
	}
	if password == "" {
		errs.Add("password", "Password is required")
	}

	return errs
}
