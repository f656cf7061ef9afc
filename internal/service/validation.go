package service

import (
	"exam_portal_backend/internal/util"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return util.Invalid("Username must be at least 3 characters and contain only letters, numbers and underscores")
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return util.Invalid("Invalid email format")
	}
	return nil
}

// validatePassword 至少 8 位，包含大小写字母和数字
func validatePassword(password string) error {
	if len(password) < 8 {
		return util.Invalid("Password must be at least 8 characters long")
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return util.Invalid("Password must contain at least one uppercase letter, one lowercase letter and one number")
	}
	return nil
}

func validateFullName(name string) error {
	if len([]rune(strings.TrimSpace(name))) < 2 {
		return util.Invalid("Full name must be at least 2 characters long")
	}
	return nil
}
