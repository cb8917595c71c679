package utils

import (
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	OrderIDPrefix    = "ORD"
	orderIDRandChars = 12
)

// GenerateOrderID returns "ORD" followed by 12 characters of [A-Z0-9] taken
// from a random UUID.
func GenerateOrderID() string {
	u := uuid.New()
	token := strings.ToUpper(new(big.Int).SetBytes(u[:]).Text(36))
	if len(token) < orderIDRandChars {
		token = strings.Repeat("0", orderIDRandChars-len(token)) + token
	}
	return OrderIDPrefix + token[len(token)-orderIDRandChars:]
}
