package types

import (
	"errors"
	"fmt"
	"strconv"
)

// Execer runs statements and queries. Both Store and Tx implement it so
// repository helpers can run inside or outside a transaction.
type Execer interface {
	// Exec runs DDL or DML that returns no rows.
	Exec(query string, args ...any) error

	// QueryAll runs a query and returns every row as a column map.
	QueryAll(query string, args ...any) ([]Row, error)
}

// Tx is an Execer bound to an open transaction.
type Tx interface {
	Execer
}

// Store is the local relational store shared by every cache and queue.
type Store interface {
	Execer

	// WithTransaction runs fn inside one transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	WithTransaction(fn func(tx Tx) error) error

	// EnsureSchema applies the DDL for a table group once per attach.
	EnsureSchema(group string, ddl []string) error
}

// Store errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// Row is one result row keyed by column name. Values carry the driver's
// dynamic types (int64, float64, string, []byte, nil).
type Row map[string]any

// Int64 returns the column as an int64, or 0 when NULL.
func (r Row) Int64(col string) int64 {
	v, _ := r.NullInt64(col)
	if v == nil {
		return 0
	}
	return *v
}

// NullInt64 returns the column as an *int64, nil when NULL.
func (r Row) NullInt64(col string) (*int64, error) {
	switch v := r[col].(type) {
	case nil:
		return nil, nil
	case int64:
		return &v, nil
	case int:
		n := int64(v)
		return &n, nil
	case float64:
		n := int64(v)
		return &n, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		return &n, nil
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}

// Float64 returns the column as a float64, or 0 when NULL.
func (r Row) Float64(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	default:
		return 0
	}
}

// String returns the column as a string, or "" when NULL.
func (r Row) String(col string) string {
	s := r.NullString(col)
	if s == nil {
		return ""
	}
	return *s
}

// NullString returns the column as a *string, nil when NULL.
func (r Row) NullString(col string) *string {
	switch v := r[col].(type) {
	case nil:
		return nil
	case string:
		return &v
	case []byte:
		s := string(v)
		return &s
	default:
		s := fmt.Sprint(v)
		return &s
	}
}
