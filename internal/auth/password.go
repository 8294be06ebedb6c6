package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

// bcrypt rejects longer inputs.
const MaxPasswordBytes = 72

// Validation error codes returned to the client on a rejected registration.
const (
	CodePasswordTooShort = "PasswordTooShort"
	CodePasswordTooLong  = "PasswordTooLong"
	CodeInvalidUserName  = "InvalidUserName"
)

const allowedUserNameSymbols = "-._@+"

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword compares a password with a hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type ValidationError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ValidateRegistration returns the problems with a username and password
// pair, or nil when both are acceptable.
func ValidateRegistration(username, password string) []ValidationError {
	var errs []ValidationError
	if !validUserName(username) {
		errs = append(errs, ValidationError{
			Code:        CodeInvalidUserName,
			Description: fmt.Sprintf("Username '%s' is invalid, can only contain letters, digits or %s.", username, allowedUserNameSymbols),
		})
	}
	if len([]rune(password)) < MinPasswordLength {
		errs = append(errs, ValidationError{
			Code:        CodePasswordTooShort,
			Description: fmt.Sprintf("Passwords must be at least %d characters.", MinPasswordLength),
		})
	}
	if len(password) > MaxPasswordBytes {
		errs = append(errs, ValidationError{
			Code:        CodePasswordTooLong,
			Description: fmt.Sprintf("Passwords must be at most %d bytes.", MaxPasswordBytes),
		})
	}
	return errs
}

func validUserName(username string) bool {
	if username == "" {
		return false
	}
	for _, r := range username {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') || strings.ContainsRune(allowedUserNameSymbols, r) {
			continue
		}
		return false
	}
	return true
}
