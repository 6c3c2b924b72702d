package query

import (
	"github.com/punchamoorthee/bankportal/internal/domain"
)

// Operation is the closed set of logical statements the service issues.
type Operation int

const (
	OpLockAccount Operation = iota + 1
	OpDebitAccount
	OpCreditAccount
	OpGetAccount
	OpInsertAccount
	OpUpdateAccountStatus
	OpCountAccounts
	OpPageAccounts
	OpGetPerson
	OpInsertPerson
	OpUpdatePersonStatus
	OpUpdatePersonRole
	OpCountPeople
	OpPagePeople
	OpLockIncome
	OpGetIncome
	OpIncrementIncome
	OpDecrementIncome
)

var operationNames = map[Operation]string{
	OpLockAccount:         "LOCK_ACCOUNT",
	OpDebitAccount:        "DEBIT_ACCOUNT",
	OpCreditAccount:       "CREDIT_ACCOUNT",
	OpGetAccount:          "GET_ACCOUNT",
	OpInsertAccount:       "INSERT_ACCOUNT",
	OpUpdateAccountStatus: "UPDATE_ACCOUNT_STATUS",
	OpCountAccounts:       "COUNT_ACCOUNTS",
	OpPageAccounts:        "PAGE_ACCOUNTS",
	OpGetPerson:           "GET_PERSON",
	OpInsertPerson:        "INSERT_PERSON",
	OpUpdatePersonStatus:  "UPDATE_PERSON_STATUS",
	OpUpdatePersonRole:    "UPDATE_PERSON_ROLE",
	OpCountPeople:         "COUNT_PEOPLE",
	OpPagePeople:          "PAGE_PEOPLE",
	OpLockIncome:          "LOCK_INCOME",
	OpGetIncome:           "GET_INCOME",
	OpIncrementIncome:     "INCREMENT_INCOME",
	OpDecrementIncome:     "DECREMENT_INCOME",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Operations lists every known operation.
func Operations() []Operation {
	ops := make([]Operation, 0, len(operationNames))
	for op := OpLockAccount; op <= OpDecrementIncome; op++ {
		ops = append(ops, op)
	}
	return ops
}

// scopes lists the categories of role-scoped operations. Operations absent
// here are category-agnostic and live in the person family.
var scopes = map[Operation][]Category{
	OpCountAccounts: {CategoryAdmin, CategoryCustomer, CategoryPerson},
	OpPageAccounts:  {CategoryAdmin, CategoryCustomer, CategoryPerson},
	OpCountPeople:   {CategoryAdmin},
	OpPagePeople:    {CategoryAdmin},
}

// Scoped reports whether the operation resolves per role category.
func (op Operation) Scoped() bool {
	_, ok := scopes[op]
	return ok
}

// Category is a family of templates shared by several roles.
type Category string

const (
	CategoryPerson   Category = "person"
	CategoryCustomer Category = "customer"
	CategoryAdmin    Category = "admin"
)

// CategoryOf collapses a role into its template family. Administrative roles
// share the admin scope; unknown or absent roles fall back to person.
func CategoryOf(role domain.Role) Category {
	switch role {
	case domain.RoleSuperAdmin, domain.RoleAdmin:
		return CategoryAdmin
	case domain.RoleCustomer:
		return CategoryCustomer
	default:
		return CategoryPerson
	}
}
