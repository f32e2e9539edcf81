// Copyright 2025 James Ross
package documentstore

import (
	"fmt"
	"strings"
	"time"
)

// Filter selects documents the way a Mongo query document would: each key
// is a dotted JSON path into the stored document and each value is either a
// literal (equality) or one of the comparison wrappers below (Lt, Lte, Gt,
// Gte, In, Ne). A nil or empty Filter matches every document in the
// collection.
type Filter map[string]any

// Lt matches documents whose field is less than Value.
type Lt struct{ Value any }

// Lte matches documents whose field is less than or equal to Value.
type Lte struct{ Value any }

// Gt matches documents whose field is greater than Value.
type Gt struct{ Value any }

// Gte matches documents whose field is greater than or equal to Value.
type Gte struct{ Value any }

// Ne matches documents whose field is not equal to Value.
type Ne struct{ Value any }

// In matches documents whose field equals any element of Values.
type In struct{ Values []any }

// Or matches documents satisfying any one of Filters, mirroring the queue's
// dequeue predicate ("pending and due" OR "in_progress with an expired
// lease").
type Or struct{ Filters []Filter }

// jsonPath renders a dotted field name ("processing.needs_fallback") as the
// Postgres JSONB path-extraction expression doc#>>'{processing,needs_fallback}'.
func jsonPath(field string) string {
	parts := strings.Split(field, ".")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = p
	}
	return fmt.Sprintf("doc#>>'{%s}'", strings.Join(quoted, ","))
}

// buildWhere compiles a Filter into a SQL WHERE fragment (without the
// "WHERE" keyword) and its positional arguments, continuing the $N
// placeholder numbering from argOffset so callers can prepend additional
// predicates (table scoping, tenant IDs) ahead of it.
func buildWhere(f Filter, argOffset int) (string, []any) {
	if len(f) == 0 {
		return "TRUE", nil
	}
	var clauses []string
	var args []any
	n := argOffset
	for field, want := range f {
		path := jsonPath(field)
		switch v := want.(type) {
		case Or:
			var sub []string
			for _, inner := range v.Filters {
				clause, innerArgs := buildWhere(inner, n)
				sub = append(sub, "("+clause+")")
				args = append(args, innerArgs...)
				n += len(innerArgs)
			}
			clauses = append(clauses, "("+strings.Join(sub, " OR ")+")")
		case Lt:
			n++
			clauses = append(clauses, fmt.Sprintf("%s < %s", castPath(path, v.Value), castPlaceholder(n, v.Value)))
			args = append(args, castArg(v.Value))
		case Lte:
			n++
			clauses = append(clauses, fmt.Sprintf("%s <= %s", castPath(path, v.Value), castPlaceholder(n, v.Value)))
			args = append(args, castArg(v.Value))
		case Gt:
			n++
			clauses = append(clauses, fmt.Sprintf("%s > %s", castPath(path, v.Value), castPlaceholder(n, v.Value)))
			args = append(args, castArg(v.Value))
		case Gte:
			n++
			clauses = append(clauses, fmt.Sprintf("%s >= %s", castPath(path, v.Value), castPlaceholder(n, v.Value)))
			args = append(args, castArg(v.Value))
		case Ne:
			n++
			clauses = append(clauses, fmt.Sprintf("%s IS DISTINCT FROM %s", castPath(path, v.Value), castPlaceholder(n, v.Value)))
			args = append(args, castArg(v.Value))
		case In:
			if len(v.Values) == 0 {
				clauses = append(clauses, "FALSE")
				continue
			}
			var ph []string
			for _, item := range v.Values {
				n++
				ph = append(ph, castPlaceholder(n, item))
				args = append(args, castArg(item))
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", castPath(path, v.Values[0]), strings.Join(ph, ", ")))
		default:
			n++
			clauses = append(clauses, fmt.Sprintf("%s = %s", castPath(path, want), castPlaceholder(n, want)))
			args = append(args, castArg(want))
		}
	}
	return strings.Join(clauses, " AND "), args
}

// castPath wraps a doc#>>'{...}' text extraction in the cast matching
// value's Go type, so comparisons against booleans/numbers/timestamps don't
// compare as text.
func castPath(path string, value any) string {
	switch value.(type) {
	case bool:
		return fmt.Sprintf("(%s)::boolean", path)
	case int, int32, int64, float64:
		return fmt.Sprintf("(%s)::numeric", path)
	case time.Time:
		return fmt.Sprintf("(%s)::timestamptz", path)
	default:
		return path
	}
}

// castPlaceholder renders a $N placeholder with the cast matching value's Go
// type, since doc#>>'{...}' always yields text.
func castPlaceholder(n int, value any) string {
	switch value.(type) {
	case bool:
		return fmt.Sprintf("$%d::boolean", n)
	case int, int32, int64, float64:
		return fmt.Sprintf("$%d::numeric", n)
	case time.Time:
		return fmt.Sprintf("$%d::timestamptz", n)
	default:
		return fmt.Sprintf("$%d", n)
	}
}

func castArg(value any) any {
	if t, ok := value.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return value
}
