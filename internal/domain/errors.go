package domain

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrPersonNotFound      = errors.New("person not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrForbiddenStatus     = errors.New("status does not permit the operation")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidAccountID    = errors.New("invalid account id")
	ErrSelfTransfer        = errors.New("payer and receiver are the same account")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrMissingPasswordHash = errors.New("password hash is required")
	ErrAlreadyExists       = errors.New("already exists")
	ErrForbidden           = errors.New("operation not permitted for role")
)
