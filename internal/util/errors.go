package util

import "errors"

var (
	ErrNotAvailable     = errors.New("exam is not available or not active")
	ErrAlreadyCompleted = errors.New("exam already completed")
	ErrInvalidAttempt   = errors.New("invalid attempt or attempt not found")
	ErrPersistence      = errors.New("persistence error")
	ErrAccessDenied     = errors.New("access denied")
	ErrDeadlineExceeded = errors.New("exam time limit exceeded")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrSessionInvalid     = errors.New("session invalid or expired")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailRegistered    = errors.New("email already registered")
	ErrExamNotFound       = errors.New("exam not found")
	ErrExamHasAttempts    = errors.New("exam questions cannot change after attempts exist")
	ErrNotPassed          = errors.New("certificate is only available for passed exams")
	ErrValidation         = errors.New("validation failed")
)

// ValidationError 携带面向用户的校验信息，errors.Is(err, ErrValidation) 为真
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(message string) error {
	return &ValidationError{Message: message}
}

// ValidationMessage 取出校验错误信息
func ValidationMessage(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message, true
	}
	return "", false
}
