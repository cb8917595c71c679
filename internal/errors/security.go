package errors

var (
	ErrInvalidCredentials = &DomainError{
		Kind:    KindAuthentication,
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid email or password",
	}
	ErrInvalidToken = &DomainError{
		Kind:    KindAuthentication,
		Code:    "INVALID_TOKEN",
		Message: "invalid or expired token",
	}
	ErrSessionExpired = &DomainError{
		Kind:    KindAuthentication,
		Code:    "SESSION_EXPIRED",
		Message: "session expired, please sign in again",
	}
	ErrAccountDisabled = &DomainError{
		Kind:    KindAuthorization,
		Code:    "ACCOUNT_DISABLED",
		Message: "account is disabled",
	}
	ErrCSRFTokenInvalid = &DomainError{
		Kind:    KindAuthorization,
		Code:    "CSRF_TOKEN_INVALID",
		Message: "missing or invalid CSRF token",
	}
	ErrInvalidSignature = &DomainError{
		Kind:    KindAuthentication,
		Code:    "INVALID_SIGNATURE",
		Message: "invalid webhook signature",
	}
	ErrUserNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "USER_NOT_FOUND",
		Message: "user not found",
	}
	ErrInvalidRole = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_ROLE",
		Message: "role must be admin, merchant or viewer",
	}
)
