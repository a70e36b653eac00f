// Package patch applies a single named field change to every row matching a
// predicate. Each entity registers a Table mapping external property names
// to a parser that turns the raw string into column assignments.
package patch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/PetoAdam/homenavi/readings-service/internal/criteria"
	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
)

// Parser converts a raw property value into column assignments.
type Parser func(raw string) (map[string]any, error)

// Guard runs after parsing and before the update, with the scoped query.
// It is used for cross-row checks such as uniqueness.
type Guard func(ctx context.Context, scoped *gorm.DB, values map[string]any) error

type Field struct {
	Name    string
	Aliases []string
	Parse   Parser
	Guard   Guard
}

type Table struct {
	byName map[string]Field
	names  []string
}

func NewTable(fields ...Field) *Table {
	t := &Table{byName: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if f.Parse == nil {
			panic(fmt.Sprintf("patch: field %q has no parser", f.Name))
		}
		for _, n := range append([]string{f.Name}, f.Aliases...) {
			if _, dup := t.byName[n]; dup {
				panic(fmt.Sprintf("patch: duplicate property %q", n))
			}
			t.byName[n] = f
		}
		t.names = append(t.names, f.Name)
	}
	return t
}

func (t *Table) Lookup(name string) (Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// Names lists canonical property names in registration order.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

type Result struct {
	Property string `json:"property"`
	Affected int64  `json:"affected"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

// Dispatcher binds a table to a model.
type Dispatcher struct {
	db      *gorm.DB
	model   any
	table   *Table
	noun    string
	version string
}

func NewDispatcher(db *gorm.DB, model any, table *Table, noun string) *Dispatcher {
	return &Dispatcher{db: db, model: model, table: table, noun: noun}
}

// WithVersion makes every patch bump the given optimistic concurrency column.
func (d *Dispatcher) WithVersion(column string) *Dispatcher {
	d.version = column
	return d
}

// Patch validates name and raw before touching the store, then runs one
// bulk update. Atomicity is that of a single UPDATE statement.
func (d *Dispatcher) Patch(ctx context.Context, name, raw string, where criteria.Predicate) (Result, error) {
	field, ok := d.table.Lookup(name)
	if !ok {
		return Result{}, apperrors.UnknownProperty(fmt.Sprintf("no property named %q, expected one of %s",
			name, strings.Join(d.table.Names(), ", ")))
	}
	values, err := field.Parse(raw)
	if err != nil {
		return Result{}, apperrors.InvalidValue(fmt.Sprintf("invalid value for %s", field.Name), err)
	}

	scoped := func() *gorm.DB { return where.Apply(d.db.WithContext(ctx).Model(d.model)) }
	if field.Guard != nil {
		if err := field.Guard(ctx, scoped(), values); err != nil {
			return Result{}, err
		}
	}

	if d.version != "" {
		values[d.version] = gorm.Expr(d.version + " + 1")
	}
	res := scoped().Updates(values)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return Result{}, apperrors.Conflict(fmt.Sprintf("%s would duplicate an existing value", field.Name))
	}
	if res.Error != nil {
		return Result{}, apperrors.StoreFailure(fmt.Sprintf("could not update %s", d.noun), res.Error)
	}

	out := Result{Property: field.Name, Affected: res.RowsAffected, Success: res.RowsAffected > 0}
	if out.Success {
		out.Message = fmt.Sprintf("%s updated for %d %s", field.Name, res.RowsAffected, d.noun)
	} else {
		out.Message = fmt.Sprintf("no %s were updated", d.noun)
	}
	return out, nil
}

// Float parses a decimal number. NaN and infinities are rejected.
func Float(column string) Parser {
	return func(raw string) (map[string]any, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%q is not a finite number", raw)
		}
		return map[string]any{column: v}, nil
	}
}

// Text stores raw unchanged.
func Text(column string) Parser {
	return func(raw string) (map[string]any, error) {
		return map[string]any{column: raw}, nil
	}
}

// Time parses raw and assigns it to column; each derive entry maps another
// column to a function of the parsed instant.
func Time(column string, derive map[string]func(time.Time) time.Time) Parser {
	return func(raw string) (map[string]any, error) {
		t, err := ParseTime(raw)
		if err != nil {
			return nil, err
		}
		out := map[string]any{column: t}
		for col, fn := range derive {
			out[col] = fn(t)
		}
		return out, nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime accepts RFC3339 and a few zone-less layouts, read as UTC.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
