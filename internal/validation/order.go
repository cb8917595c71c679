package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"

	"github.com/shopspring/decimal"
)

var (
	vpaRegex = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z][a-zA-Z0-9]{2,64}$`)
	utrRegex = regexp.MustCompile(`^[A-Z0-9]{8,20}$`)
)

// ParseAmount parses a decimal amount string and checks its range and scale.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, domainErrors.ErrInvalidAmount
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// ValidateAmount checks 1 <= amount <= 100000 with at most two decimals.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThan(MinOrderAmount) || amount.GreaterThan(MaxOrderAmount) {
		return domainErrors.ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(MaxAmountDecimals)) {
		return domainErrors.ErrInvalidAmount
	}
	return nil
}

// ValidateVPA checks localpart@handle syntax.
func ValidateVPA(vpa string) error {
	if len(vpa) > MaxVPALength || !vpaRegex.MatchString(vpa) {
		return domainErrors.ErrInvalidVPA
	}
	return nil
}

// NormalizeVPA trims the address and lowercases the handle.
func NormalizeVPA(vpa string) string {
	vpa = strings.TrimSpace(vpa)
	if i := strings.LastIndexByte(vpa, '@'); i >= 0 {
		return vpa[:i+1] + strings.ToLower(vpa[i+1:])
	}
	return vpa
}

// NormalizeUTR uppercases utr and checks its shape.
func NormalizeUTR(utr string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(utr))
	if !utrRegex.MatchString(normalized) {
		return "", domainErrors.ErrInvalidUTR
	}
	return normalized, nil
}

// ValidateMerchantName requires 1 to 100 characters after trimming.
func ValidateMerchantName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxMerchantNameLength {
		return "", domainErrors.ErrInvalidMerchantName
	}
	return name, nil
}

// ParseOutcome accepts only the two terminal verification outcomes.
func ParseOutcome(raw string) (models.OrderStatus, error) {
	switch models.OrderStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case models.OrderStatusCompleted:
		return models.OrderStatusCompleted, nil
	case models.OrderStatusFailed:
		return models.OrderStatusFailed, nil
	}
	return "", domainErrors.ErrInvalidOutcome
}
