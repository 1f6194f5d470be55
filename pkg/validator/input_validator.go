package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"trade_desk/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrNotANumber  = errors.New("not a number")
	ErrNegative    = errors.New("must not be negative")
	ErrNotPositive = errors.New("must be positive")
)

var integerRegex = regexp.MustCompile(`^[+-]?\d+$`)

// ParseLevel parses an account level: a non-negative integer.
func ParseLevel(raw string) (int, error) {
	n, err := parseInt("level", raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, invalid("level", raw, ErrNegative)
	}
	return n, nil
}

// ParsePrice parses a sale price: a non-negative decimal number.
func ParsePrice(raw string) (decimal.Decimal, error) {
	return parseAmount("price", raw)
}

// ParseCost parses a purchase cost: a non-negative decimal number.
func ParseCost(raw string) (decimal.Decimal, error) {
	return parseAmount("cost", raw)
}

// ParseQuantity parses a purchase quantity: a positive integer.
func ParseQuantity(raw string) (int, error) {
	return parsePositive("quantity", raw)
}

// ParsePeople parses the head count for a profit split: a positive integer.
func ParsePeople(raw string) (int, error) {
	return parsePositive("number of people", raw)
}

func parsePositive(field, raw string) (int, error) {
	n, err := parseInt(field, raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, invalid(field, raw, ErrNotPositive)
	}
	return n, nil
}

func parseInt(field, raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if !integerRegex.MatchString(value) {
		return 0, invalid(field, raw, ErrNotANumber)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, invalid(field, raw, ErrNotANumber)
	}
	return n, nil
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if value == "" {
		return decimal.Zero, invalid(field, raw, ErrNotANumber)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, invalid(field, raw, ErrNotANumber)
	}
	if amount.IsNegative() {
		return decimal.Zero, invalid(field, raw, ErrNegative)
	}
	return amount, nil
}

func invalid(field, raw string, reason error) error {
	return fmt.Errorf("%w: %s %q %w", domain.ErrValidation, field, raw, reason)
}
