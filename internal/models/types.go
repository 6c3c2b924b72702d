// Package models holds the JSON bodies of the HTTP API.
package models

// TransferRequest is the payload of POST /transfers. Amount is a decimal
// string such as "12.50".
type TransferRequest struct {
	PayerID    int64  `json:"payer_id" validate:"required"`
	ReceiverID int64  `json:"receiver_id" validate:"required"`
	Amount     string `json:"amount" validate:"required,numeric"`
}

// OperationResponse reports a coordinated operation, committed or not.
type OperationResponse struct {
	Reference  string `json:"reference"`
	Operation  string `json:"operation"`
	Outcome    string `json:"outcome"`
	Kind       string `json:"kind,omitempty"`
	State      string `json:"state"`
	Reached    string `json:"reached"`
	RolledBack bool   `json:"rolled_back"`
	Error      string `json:"error,omitempty"`
}

type OpenAccountRequest struct {
	OwnerID int64 `json:"owner_id" validate:"required,gt=0"`
}

type AccountStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE BLOCKED REQUESTED"`
}

type PersonStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE BLOCKED"`
}

type RoleRequest struct {
	Role string `json:"role" validate:"required,oneof=SUPERADMIN ADMIN CUSTOMER"`
}

// AdjustmentRequest refills (positive) or charges (negative) an account
// against bank income.
type AdjustmentRequest struct {
	Delta string `json:"delta" validate:"required,numeric"`
}

// RegisterPersonRequest carries an already hashed password.
type RegisterPersonRequest struct {
	Email        string `json:"email" validate:"required,email"`
	PasswordHash string `json:"password_hash" validate:"required"`
	Role         string `json:"role" validate:"required,oneof=SUPERADMIN ADMIN CUSTOMER"`
}

type CreatedResponse struct {
	ID int64 `json:"id"`
}

type IncomeResponse struct {
	Amount string `json:"amount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// Fields lists the request fields that failed validation.
	Fields map[string]string `json:"fields,omitempty"`
}
