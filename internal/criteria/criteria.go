// Package criteria turns sparse filter objects into gorm WHERE clauses.
//
// Every entity declares a table of Field values; Build walks the table and
// emits one AND-ed clause per field that is present on the criteria object.
package criteria

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Kind int

const (
	Equal    Kind = iota // column = value
	Contains             // case-sensitive literal substring
	AtLeast              // column >= value
	AtMost               // column <= value
)

// Field binds one optional criteria attribute to a column.
type Field[C any] struct {
	Column string
	Kind   Kind
	Value  func(C) (any, bool)
}

// Predicate is an AND of clauses. The zero value matches every row.
type Predicate struct {
	exprs []clause.Expression
}

// Match builds a predicate from raw clauses, for fixed filters that are not
// driven by a criteria object.
func Match(exprs ...clause.Expression) Predicate {
	return Predicate{exprs: exprs}
}

// All is the identity predicate.
func All() Predicate {
	return Predicate{}
}

func (p Predicate) IsEmpty() bool {
	return len(p.exprs) == 0
}

func (p Predicate) Len() int {
	return len(p.exprs)
}

// And returns a predicate holding the clauses of both.
func (p Predicate) And(other Predicate) Predicate {
	exprs := make([]clause.Expression, 0, len(p.exprs)+len(other.exprs))
	exprs = append(exprs, p.exprs...)
	exprs = append(exprs, other.exprs...)
	return Predicate{exprs: exprs}
}

// Apply scopes db to the predicate. The identity predicate enables global
// updates and deletes, which gorm refuses by default.
func (p Predicate) Apply(db *gorm.DB) *gorm.DB {
	if len(p.exprs) == 0 {
		return db.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	return db.Clauses(clause.Where{Exprs: p.exprs})
}

// Build composes the clauses of every present field. Field order does not
// change the result.
func Build[C any](fields []Field[C], c C) Predicate {
	var exprs []clause.Expression
	for _, f := range fields {
		v, ok := f.Value(c)
		if !ok {
			continue
		}
		exprs = append(exprs, expression(f.Column, f.Kind, v))
	}
	return Predicate{exprs: exprs}
}

func expression(column string, kind Kind, v any) clause.Expression {
	col := clause.Column{Name: column}
	switch kind {
	case Contains:
		s, _ := v.(string)
		return ContainsLiteral(column, s)
	case AtLeast:
		return clause.Gte{Column: col, Value: v}
	case AtMost:
		return clause.Lte{Column: col, Value: v}
	default:
		return clause.Eq{Column: col, Value: v}
	}
}

// ContainsLiteral matches rows whose column contains s verbatim. LIKE
// wildcards in s are escaped so "A.1" or "50%" never act as patterns.
func ContainsLiteral(column, s string) clause.Expression {
	return clause.Expr{
		SQL:  "? LIKE ? ESCAPE '\\'",
		Vars: []any{clause.Column{Name: column}, "%" + EscapeLike(s) + "%"},
	}
}

// ContainsFold is ContainsLiteral ignoring case. Both sides are folded by
// the database's LOWER, so the column and the pattern always use the same
// rules: full Unicode on postgres, ASCII only on sqlite.
func ContainsFold(column, s string) clause.Expression {
	return clause.Expr{
		SQL:  "LOWER(?) LIKE LOWER(?) ESCAPE '\\'",
		Vars: []any{clause.Column{Name: column}, "%" + EscapeLike(s) + "%"},
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// String reads an optional string; empty counts as absent.
func String[C any](get func(C) *string) func(C) (any, bool) {
	return func(c C) (any, bool) {
		v := get(c)
		if v == nil || *v == "" {
			return nil, false
		}
		return *v, true
	}
}

func Float[C any](get func(C) *float64) func(C) (any, bool) {
	return func(c C) (any, bool) {
		v := get(c)
		if v == nil {
			return nil, false
		}
		return *v, true
	}
}

func Time[C any](get func(C) *time.Time) func(C) (any, bool) {
	return func(c C) (any, bool) {
		v := get(c)
		if v == nil {
			return nil, false
		}
		return v.UTC(), true
	}
}

func UUID[C any](get func(C) *uuid.UUID) func(C) (any, bool) {
	return func(c C) (any, bool) {
		v := get(c)
		if v == nil || *v == uuid.Nil {
			return nil, false
		}
		return *v, true
	}
}
