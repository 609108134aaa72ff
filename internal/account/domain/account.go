package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a customer account: its credential material and current balance.
// DerivedKey and Salt are the PBKDF2 output and input; the password itself is never stored.
type Account struct {
	ID         string
	DerivedKey []byte
	Salt       []byte
	Balance    decimal.Decimal
	CreatedAt  time.Time
}

// BalanceScale is the number of fraction digits a stored balance keeps.
const BalanceScale = 2
