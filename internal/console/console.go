// Package console runs the interactive text menus of the securebank program.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	accountservice "securebank/internal/account/service"
	identityservice "securebank/internal/identity/service"
	"securebank/internal/session"
	sessiondomain "securebank/internal/session/domain"
	"securebank/internal/validate"
)

// errInputClosed is returned by readLine once the input is exhausted.
var errInputClosed = errors.New("console: input closed")

// Console reads menu choices from in and writes prompts and results to out. It holds at most
// one session at a time, passed explicitly to the engine.
type Console struct {
	in        *bufio.Scanner
	out       io.Writer
	auth      *identityservice.AuthService
	engine    *accountservice.Engine
	maxAmount decimal.Decimal
}

// New returns a Console over the given services. maxAmount caps deposits and withdrawals.
func New(in io.Reader, out io.Writer, auth *identityservice.AuthService, engine *accountservice.Engine, maxAmount decimal.Decimal) *Console {
	return &Console{
		in:        bufio.NewScanner(in),
		out:       out,
		auth:      auth,
		engine:    engine,
		maxAmount: maxAmount,
	}
}

// Run shows the main menu until the user exits or input ends. End of input is not an error.
func (c *Console) Run(ctx context.Context) error {
	c.println("Welcome to Secure Bank System")
	for {
		c.println("\n1. Create Account")
		c.println("2. Login")
		c.println("3. Exit")
		choice, err := c.readChoice("Select an option: ")
		if errors.Is(err, errInputClosed) {
			return nil
		}
		if err != nil {
			c.println("Please enter a valid number")
			continue
		}
		switch choice {
		case 1:
			err = c.createAccount(ctx)
		case 2:
			err = c.login(ctx)
		case 3:
			c.println("Thank you for using Secure Bank System. Goodbye!")
			return nil
		default:
			c.println("Invalid option. Try again.")
		}
		if errors.Is(err, errInputClosed) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (c *Console) createAccount(ctx context.Context) error {
	accountID, err := c.readLine("Enter Account Number (format: ABC12345): ")
	if err != nil {
		return err
	}
	if validate.AccountFormat(accountID) != nil {
		c.println("Invalid account number format")
		return nil
	}
	password, err := c.readLine("Enter Password (min 8 chars with upper, lower, number, special): ")
	if err != nil {
		return err
	}
	if validate.PasswordShape(password) != nil {
		c.println("Password does not meet requirements")
		return nil
	}
	input, err := c.readLine("Enter Initial Deposit: ")
	if err != nil {
		return err
	}
	amount, ok := c.parseAmount(input)
	if !ok {
		return nil
	}

	err = c.auth.Register(ctx, accountID, password, amount)
	switch {
	case err == nil:
		c.println("Account created successfully")
	case errors.Is(err, identityservice.ErrAccountExists):
		c.println("Account already exists")
	default:
		log.Printf("console: create account %s: %v", accountID, err)
		c.println("Error creating account")
	}
	return nil
}

func (c *Console) login(ctx context.Context) error {
	accountID, err := c.readLine("Enter Account Number: ")
	if err != nil {
		return err
	}
	password, err := c.readLine("Enter Password: ")
	if err != nil {
		return err
	}

	var inputErr error
	sess, err := c.auth.Login(ctx, accountID, password, func(ctx context.Context) (string, error) {
		code, err := c.readLine("Enter Verification Code: ")
		inputErr = err
		return code, err
	})
	if inputErr != nil {
		return inputErr
	}
	switch {
	case err == nil:
		c.println("Login successful!")
		return c.customerMenu(ctx, sess)
	case errors.Is(err, identityservice.ErrInvalidVerificationCode):
		c.println("Invalid verification code")
	case errors.Is(err, identityservice.ErrInvalidCredentials):
		c.println("Invalid credentials")
	case errors.Is(err, identityservice.ErrAccountNotFound):
		c.println("Account not found")
	case errors.Is(err, identityservice.ErrDeliveryFailed):
		log.Printf("console: login %s: %v", accountID, err)
		c.println("Verification code could not be sent")
	default:
		log.Printf("console: login %s: %v", accountID, err)
		c.println("Login error")
	}
	return nil
}

func (c *Console) customerMenu(ctx context.Context, sess *sessiondomain.Session) error {
	defer c.auth.Logout(ctx, sess)
	for {
		if _, err := session.RequireAuthenticated(sess); err != nil {
			return nil
		}
		c.println("\n1. Check Balance")
		c.println("2. Deposit")
		c.println("3. Withdraw")
		c.println("4. Logout")
		choice, err := c.readChoice("Select an option: ")
		if errors.Is(err, errInputClosed) {
			return err
		}
		if err != nil {
			c.println("Please enter a valid number")
			continue
		}
		switch choice {
		case 1:
			c.checkBalance(ctx, sess)
		case 2:
			err = c.transact(ctx, sess, "Enter deposit amount: ", c.engine.Deposit)
		case 3:
			err = c.transact(ctx, sess, "Enter withdrawal amount: ", c.engine.Withdraw)
		case 4:
			c.auth.Logout(ctx, sess)
			c.println("Logged out successfully")
		default:
			c.println("Invalid option")
		}
		if err != nil {
			return err
		}
	}
}

func (c *Console) checkBalance(ctx context.Context, sess *sessiondomain.Session) {
	bal, err := c.engine.CheckBalance(ctx, sess)
	if err != nil {
		log.Printf("console: check balance: %v", err)
		c.println("Error checking balance")
		return
	}
	c.printf("Current balance: $%s\n", bal.StringFixed(2))
}

type mutation func(context.Context, *sessiondomain.Session, decimal.Decimal) (decimal.Decimal, error)

func (c *Console) transact(ctx context.Context, sess *sessiondomain.Session, prompt string, apply mutation) error {
	input, err := c.readLine(prompt)
	if err != nil {
		return err
	}
	amount, ok := c.parseAmount(input)
	if !ok {
		return nil
	}
	bal, err := apply(ctx, sess, amount)
	switch {
	case err == nil:
		c.printf("Transaction successful. New balance: $%s\n", bal.StringFixed(2))
	case errors.Is(err, accountservice.ErrInsufficientFunds):
		c.println("Insufficient funds")
	case errors.Is(err, session.ErrNotAuthenticated):
		c.println("Please log in first")
	default:
		log.Printf("console: transaction: %v", err)
		c.println("Transaction error")
	}
	return nil
}

// parseAmount reports format and range problems to the user and returns ok=false for them.
func (c *Console) parseAmount(input string) (decimal.Decimal, bool) {
	amount, err := validate.ParseAmount(input, c.maxAmount)
	switch {
	case err == nil:
		return amount, true
	case errors.Is(err, validate.ErrAmountFormat):
		c.println("Invalid amount format")
	default:
		c.println("Invalid amount")
	}
	return decimal.Zero, false
}

func (c *Console) readChoice(prompt string) (int, error) {
	line, err := c.readLine(prompt)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(line)
}

func (c *Console) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			log.Printf("console: read input: %v", err)
		}
		return "", errInputClosed
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
