package errors

var (
	ErrOrderNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "ORDER_NOT_FOUND",
		Message: "order not found",
	}
	ErrInvalidAmount = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_AMOUNT",
		Message: "amount must be between 1 and 100000 with at most two decimal places",
	}
	ErrInvalidVPA = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_VPA",
		Message: "invalid UPI ID, expected name@handle",
	}
	ErrInvalidMerchantName = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_MERCHANT_NAME",
		Message: "merchant name is required and must be at most 100 characters",
	}
	ErrInvalidUTR = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_UTR",
		Message: "UTR must be 8 to 20 letters or digits",
	}
	ErrInvalidOutcome = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_OUTCOME",
		Message: "outcome must be completed or failed",
	}
	ErrInvalidStatusFilter = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_STATUS",
		Message: "unknown order status",
	}
	ErrOrderExpired = &DomainError{
		Kind:    KindConflict,
		Code:    "ORDER_EXPIRED",
		Message: "order has expired",
	}
	ErrOrderNotPending = &DomainError{
		Kind:    KindConflict,
		Code:    "ORDER_NOT_PENDING",
		Message: "order is no longer accepting payment references",
	}
	ErrUTRAlreadySubmitted = &DomainError{
		Kind:    KindConflict,
		Code:    "UTR_ALREADY_SUBMITTED",
		Message: "a UTR has already been submitted for this order",
	}
	ErrOrderNotAwaitingVerification = &DomainError{
		Kind:    KindConflict,
		Code:    "ORDER_NOT_AWAITING_VERIFICATION",
		Message: "order is not awaiting verification",
	}
	ErrOrderIDCollision = &DomainError{
		Kind:    KindInternal,
		Code:    "ORDER_ID_COLLISION",
		Message: "could not allocate a unique order id",
	}
)
