package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountBlocked   AccountStatus = "BLOCKED"
	AccountRequested AccountStatus = "REQUESTED" // blocked, owner asked for unblocking
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountBlocked, AccountRequested:
		return true
	}
	return false
}

// PersonStatus is the lifecycle state of a person.
type PersonStatus string

const (
	PersonActive  PersonStatus = "ACTIVE"
	PersonBlocked PersonStatus = "BLOCKED"
)

func (s PersonStatus) Valid() bool {
	return s == PersonActive || s == PersonBlocked
}

// Role is the closed set of portal roles.
type Role string

const (
	RoleSuperAdmin Role = "SUPERADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleCustomer   Role = "CUSTOMER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleCustomer:
		return true
	}
	return false
}

// Administrative reports whether the role shares the admin data-access scope.
func (r Role) Administrative() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// Account represents a customer's balance in the portal.
type Account struct {
	ID           int64           `json:"id"`
	OwnerID      int64           `json:"owner_id"`
	Balance      decimal.Decimal `json:"balance"`
	Status       AccountStatus   `json:"status"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// Person is a portal user. The password hash is opaque to this service.
type Person struct {
	ID           int64        `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Role         Role         `json:"role"`
	Status       PersonStatus `json:"status"`
	RegisteredAt time.Time    `json:"registered_at"`
}

// AccountState is an account row read under lock together with its owner's status.
type AccountState struct {
	Account
	OwnerStatus PersonStatus
}

// CanSend reports whether funds may leave the account.
func (s AccountState) CanSend() bool {
	return s.Status == AccountActive
}

// CanReceive reports whether the account and its owner accept incoming funds.
func (s AccountState) CanReceive() bool {
	return s.Status == AccountActive && s.OwnerStatus == PersonActive
}

// Initiator is the person asking for a transfer.
type Initiator struct {
	Role     Role
	PersonID int64
}

// MayDebit reports whether the initiator may pay from an account owned by
// ownerID. Administrative roles may debit any account.
func (i Initiator) MayDebit(ownerID int64) bool {
	return i.Role.Administrative() || (i.PersonID > 0 && i.PersonID == ownerID)
}

// TransferRequest moves Amount from PayerID to ReceiverID. It is never persisted.
type TransferRequest struct {
	PayerID    int64
	ReceiverID int64
	Amount     decimal.Decimal
	Initiator  Initiator
}

// Validate rejects structurally invalid requests before any row is touched.
func (r TransferRequest) Validate() error {
	if r.PayerID <= 0 || r.ReceiverID <= 0 {
		return fmt.Errorf("%w: payer %d, receiver %d", ErrInvalidAccountID, r.PayerID, r.ReceiverID)
	}
	if r.PayerID == r.ReceiverID {
		return ErrSelfTransfer
	}
	return ValidateAmount(r.Amount)
}

// Page is one window of a listing.
type Page[T any] struct {
	Number    int    `json:"page"`
	Size      int    `json:"size"`
	Total     int    `json:"total"`
	PageCount int    `json:"page_count"`
	SortKey   string `json:"sort"`
	Pages     []int  `json:"pages"`
	Items     []T    `json:"items"`
}
