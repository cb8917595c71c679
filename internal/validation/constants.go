package validation

import "github.com/shopspring/decimal"

var (
	// Amount limits, in rupees
	MinOrderAmount = decimal.NewFromInt(1)
	MaxOrderAmount = decimal.NewFromInt(100000)
)

const (
	// Amount precision
	MaxAmountDecimals = 2

	// UTR shape
	MinUTRLength = 8
	MaxUTRLength = 20

	// Password requirements
	MinPasswordLength = 8
	MaxPasswordLength = 72

	// String lengths
	MaxMerchantNameLength = 100
	MaxUserNameLength     = 100
	MaxVPALength          = 256
	MaxNoteLength         = 80
)
