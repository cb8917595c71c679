package errors

var (
	ErrInvalidTimerDuration = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_TIMER_DURATION",
		Message: "timer duration must be between 1 and 60 minutes",
	}
	ErrInvalidStaticUPIID = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_STATIC_UPI_ID",
		Message: "static UPI ID must be a valid name@handle address",
	}
	ErrUnknownUPIApp = &DomainError{
		Kind:    KindValidation,
		Code:    "UNKNOWN_UPI_APP",
		Message: "unknown UPI app",
	}
	ErrInvalidDateRange = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_DATE_RANGE",
		Message: "startDate and endDate must be YYYY-MM-DD with startDate <= endDate",
	}
)
