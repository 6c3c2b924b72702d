package query

import (
	"strings"
)

// Direction of an ORDER BY term.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

const descSuffix = "_DESC"

// OrderClause is a fully specified ORDER BY clause with the primary key as
// tie-breaker.
type OrderClause struct {
	Column    string
	Direction Direction
	// TieBreak is empty when Column is already the primary key.
	TieBreak string
}

func (o OrderClause) String() string {
	if o.TieBreak == "" {
		return o.Column + " " + string(o.Direction)
	}
	return o.Column + " " + string(o.Direction) + ", " + o.TieBreak + " " + string(o.Direction)
}

// Strategy builds deterministic order clauses for one entity.
type Strategy struct {
	id      string
	columns map[string]string
}

// NewStrategy whitelists sort keys. Keys are matched case-insensitively;
// the "ID" key always maps to idColumn.
func NewStrategy(idColumn string, columns map[string]string) Strategy {
	s := Strategy{id: idColumn, columns: map[string]string{"ID": idColumn}}
	for k, col := range columns {
		s.columns[strings.ToUpper(k)] = col
	}
	return s
}

var (
	AccountOrder = NewStrategy("id", map[string]string{
		"BALANCE":    "balance",
		"STATUS":     "status",
		"OWNER":      "owner_id",
		"REGISTERED": "registered_at",
	})
	PersonOrder = NewStrategy("id", map[string]string{
		"EMAIL":      "email",
		"ROLE":       "role",
		"STATUS":     "status",
		"REGISTERED": "registered_at",
	})
)

// Default is the order used for unknown sort keys.
func (s Strategy) Default() OrderClause {
	return OrderClause{Column: s.id, Direction: Desc}
}

// OrderFor never fails: an unrecognised key degrades to Default.
func (s Strategy) OrderFor(sortKey string) OrderClause {
	key := strings.ToUpper(strings.TrimSpace(sortKey))
	dir := Asc
	if strings.HasSuffix(key, descSuffix) {
		key = strings.TrimSuffix(key, descSuffix)
		dir = Desc
	}
	col, ok := s.columns[key]
	if !ok {
		return s.Default()
	}
	clause := OrderClause{Column: col, Direction: dir}
	if col != s.id {
		clause.TieBreak = s.id
	}
	return clause
}
