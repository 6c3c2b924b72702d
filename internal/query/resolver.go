package query

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/punchamoorthee/bankportal/internal/domain"
)

var ErrInvalidStatementParameter = errors.New("invalid statement parameter")

// Values supplies named statement parameters.
type Values map[string]any

// Statement is a parameterized SQL template. Params name the placeholders
// $1..$n in order.
type Statement struct {
	Op       Operation
	Category Category
	SQL      string
	Params   []string
}

// Args binds values to the statement's placeholders by name.
func (s Statement) Args(values Values) ([]any, error) {
	args := make([]any, len(s.Params))
	for i, name := range s.Params {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s needs %q", ErrInvalidStatementParameter, s.Op, name)
		}
		args[i] = v
	}
	return args, nil
}

// Paged appends the order clause and LIMIT/OFFSET placeholders named
// "limit" and "offset".
func (s Statement) Paged(order OrderClause) Statement {
	n := len(s.Params)
	paged := s
	paged.SQL = fmt.Sprintf("%s ORDER BY %s LIMIT $%d OFFSET $%d", s.SQL, order, n+1, n+2)
	paged.Params = append(append(make([]string, 0, n+2), s.Params...), "limit", "offset")
	return paged
}

type key struct {
	op       Operation
	category Category
}

// Template is the SQL of one operation variant and the names of its placeholders.
type Template struct {
	SQL    string
	Params []string
}

// Catalog is the template source of a Resolver, keyed by operation and category.
type Catalog map[Operation]map[Category]Template

// Resolver maps operations to statements. It is immutable after construction.
type Resolver struct {
	statements map[key]Statement
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// NewResolver verifies the catalog against the operation set: every
// operation must have a template for each category it declares, and the
// highest placeholder must match the declared parameter count.
func NewResolver(catalog Catalog) (*Resolver, error) {
	r := &Resolver{statements: make(map[key]Statement)}
	for _, op := range Operations() {
		categories := []Category{CategoryPerson}
		if op.Scoped() {
			categories = scopes[op]
		}
		for _, c := range categories {
			tpl, ok := catalog[op][c]
			if !ok {
				return nil, fmt.Errorf("%w: no %s template for %s", ErrInvalidStatementParameter, c, op)
			}
			if got := maxPlaceholder(tpl.SQL); got != len(tpl.Params) {
				return nil, fmt.Errorf("%w: %s/%s uses %d placeholders, declares %d",
					ErrInvalidStatementParameter, op, c, got, len(tpl.Params))
			}
			r.statements[key{op, c}] = Statement{Op: op, Category: c, SQL: tpl.SQL, Params: tpl.Params}
		}
	}
	return r, nil
}

// Resolve returns the statement for op as seen by role. Category-agnostic
// operations ignore the role.
func (r *Resolver) Resolve(op Operation, role domain.Role) (Statement, error) {
	c := CategoryPerson
	if op.Scoped() {
		c = CategoryOf(role)
	}
	s, ok := r.statements[key{op, c}]
	if !ok {
		return Statement{}, fmt.Errorf("%w: %s for category %s", ErrInvalidStatementParameter, op, c)
	}
	return s, nil
}

func maxPlaceholder(sql string) int {
	highest := 0
	for _, m := range placeholder.FindAllStringSubmatch(sql, -1) {
		if n, _ := strconv.Atoi(m[1]); n > highest {
			highest = n
		}
	}
	return highest
}
