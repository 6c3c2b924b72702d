package query

// Parameter names shared by the templates.
const (
	ParamAccountID    = "account_id"
	ParamPersonID     = "person_id"
	ParamOwnerID      = "owner_id"
	ParamViewerID     = "viewer_id"
	ParamAmount       = "amount"
	ParamStatus       = "status"
	ParamRole         = "role"
	ParamEmail        = "email"
	ParamPasswordHash = "password_hash"
	ParamLimit        = "limit"
	ParamOffset       = "offset"
)

const (
	accountColumns = "id, owner_id, balance, status, registered_at"
	personColumns  = "id, email, password_hash, role, status, registered_at"
)

func agnostic(sql string, params ...string) map[Category]Template {
	return map[Category]Template{CategoryPerson: {SQL: sql, Params: params}}
}

// Postgres is the built-in template catalog for the schema in
// internal/store/migrations. Amounts are bound as decimal strings.
func Postgres() Catalog {
	const (
		accountsAdmin    = " FROM accounts WHERE ($1::text IS NULL OR status = $1) AND ($2::bigint IS NULL OR owner_id = $2)"
		accountsCustomer = " FROM accounts WHERE owner_id = $1 AND ($2::text IS NULL OR status = $2)"
		accountsPerson   = " FROM accounts WHERE owner_id = $1 AND status = 'ACTIVE'"
		peopleAdmin      = " FROM people WHERE ($1::text IS NULL OR role = $1) AND ($2::text IS NULL OR status = $2)"
	)
	return Catalog{
		OpLockAccount: agnostic(
			"SELECT a.id, a.owner_id, a.balance, a.status, a.registered_at, p.status"+
				" FROM accounts a JOIN people p ON p.id = a.owner_id WHERE a.id = $1 FOR UPDATE OF a",
			ParamAccountID),
		OpDebitAccount: agnostic(
			"UPDATE accounts SET balance = balance - $2::numeric WHERE id = $1 AND balance >= $2::numeric",
			ParamAccountID, ParamAmount),
		OpCreditAccount: agnostic(
			"UPDATE accounts SET balance = balance + $2::numeric WHERE id = $1",
			ParamAccountID, ParamAmount),
		OpGetAccount: agnostic(
			"SELECT "+accountColumns+" FROM accounts WHERE id = $1",
			ParamAccountID),
		OpInsertAccount: agnostic(
			"INSERT INTO accounts (owner_id, balance, status) VALUES ($1, 0, 'ACTIVE') RETURNING id",
			ParamOwnerID),
		OpUpdateAccountStatus: agnostic(
			"UPDATE accounts SET status = $2 WHERE id = $1",
			ParamAccountID, ParamStatus),
		OpCountAccounts: {
			CategoryAdmin:    {SQL: "SELECT COUNT(*)" + accountsAdmin, Params: []string{ParamStatus, ParamOwnerID}},
			CategoryCustomer: {SQL: "SELECT COUNT(*)" + accountsCustomer, Params: []string{ParamViewerID, ParamStatus}},
			CategoryPerson:   {SQL: "SELECT COUNT(*)" + accountsPerson, Params: []string{ParamViewerID}},
		},
		OpPageAccounts: {
			CategoryAdmin:    {SQL: "SELECT " + accountColumns + accountsAdmin, Params: []string{ParamStatus, ParamOwnerID}},
			CategoryCustomer: {SQL: "SELECT " + accountColumns + accountsCustomer, Params: []string{ParamViewerID, ParamStatus}},
			CategoryPerson:   {SQL: "SELECT " + accountColumns + accountsPerson, Params: []string{ParamViewerID}},
		},
		OpGetPerson: agnostic(
			"SELECT "+personColumns+" FROM people WHERE id = $1",
			ParamPersonID),
		OpInsertPerson: agnostic(
			"INSERT INTO people (email, password_hash, role, status) VALUES ($1, $2, $3, 'ACTIVE') RETURNING id",
			ParamEmail, ParamPasswordHash, ParamRole),
		OpUpdatePersonStatus: agnostic(
			"UPDATE people SET status = $2 WHERE id = $1",
			ParamPersonID, ParamStatus),
		OpUpdatePersonRole: agnostic(
			"UPDATE people SET role = $2 WHERE id = $1",
			ParamPersonID, ParamRole),
		OpCountPeople: {
			CategoryAdmin: {SQL: "SELECT COUNT(*)" + peopleAdmin, Params: []string{ParamRole, ParamStatus}},
		},
		OpPagePeople: {
			CategoryAdmin: {SQL: "SELECT " + personColumns + peopleAdmin, Params: []string{ParamRole, ParamStatus}},
		},
		OpLockIncome: agnostic("SELECT amount FROM income WHERE id = 1 FOR UPDATE"),
		OpGetIncome:  agnostic("SELECT amount FROM income WHERE id = 1"),
		OpIncrementIncome: agnostic(
			"UPDATE income SET amount = amount + $1::numeric WHERE id = 1",
			ParamAmount),
		OpDecrementIncome: agnostic(
			"UPDATE income SET amount = amount - $1::numeric WHERE id = 1 AND amount >= $1::numeric",
			ParamAmount),
	}
}
