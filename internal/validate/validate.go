// Package validate holds the format checks applied to console input before it reaches the
// auth or transaction services.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Rejections. The console prints them as-is.
var (
	ErrAccountFormat = errors.New("account number must be 2-3 uppercase letters followed by 5-8 digits")
	ErrPasswordShort = errors.New("password must be at least 8 characters")
	ErrPasswordShape = errors.New("password must contain an uppercase letter, a lowercase letter, a digit and one of !@#$%^&*")
	ErrAmountFormat  = errors.New("amount must be a number")
	ErrAmountRange   = errors.New("amount must be greater than zero")
	ErrAmountScale   = errors.New("amount must have at most 2 decimal places")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// passwordSymbols are the special characters a password must include one of.
const passwordSymbols = "!@#$%^&*"

// AmountScale is the number of fraction digits an amount may carry.
const AmountScale = 2

var accountPattern = regexp.MustCompile(`^[A-Z]{2,3}[0-9]{5,8}$`)

// AccountFormat checks an account number such as AB12345.
func AccountFormat(id string) error {
	if !accountPattern.MatchString(id) {
		return ErrAccountFormat
	}
	return nil
}

// PasswordShape checks length and character classes. It never inspects the password beyond that.
func PasswordShape(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordShort
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return ErrPasswordShape
	}
	return nil
}

// Amount checks that amount is positive, at most max, and has no more than two fraction digits.
func Amount(amount, max decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountRange
	}
	if amount.GreaterThan(max) {
		return fmt.Errorf("amount must not exceed %s", max.StringFixed(AmountScale))
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return ErrAmountScale
	}
	return nil
}

// ParseAmount parses console input as a decimal and checks it with Amount.
func ParseAmount(input string, max decimal.Decimal) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return decimal.Zero, ErrAmountFormat
	}
	if err := Amount(d, max); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
