package docql

import (
	"fmt"
	"strings"

	"github.com/stratumdb/docql/errors"
)

// Parameter is a positional query parameter. Names are generated sequentially
// (@param0, @param1, ...) in the exact order clauses are emitted and match 1:1
// with placeholders in the compiled text.
type Parameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// fieldRef renders a field access using the bracket accessor. Field names are
// user controlled strings and may contain characters unsafe for dot notation.
func fieldRef(field string) string {
	return fmt.Sprintf("root[%q]", field)
}

// CompileFilter compiles a filter into dialect clause fragments plus the
// ordered parameters backing them. Clauses with a nil value are skipped, the
// parameter counter is scoped to this call, and zero fragments means the
// caller omits the WHERE clause entirely.
func CompileFilter(filter Filter) ([]string, []Parameter, error) {
	var (
		clauses []string
		params  []Parameter
	)
	next := func(value any) string {
		name := fmt.Sprintf("@param%d", len(params))
		params = append(params, Parameter{Name: name, Value: value})
		return name
	}
	for _, w := range filter {
		if w.Value == nil {
			continue
		}
		if w.Field == "" {
			return nil, nil, errors.New(errors.Validation, "where clause missing field")
		}
		ref := fieldRef(w.Field)
		switch w.Op {
		case WhereOpEq, "":
			clauses = append(clauses, fmt.Sprintf("%s = %s", ref, next(w.Value)))
		case WhereOpGt:
			clauses = append(clauses, fmt.Sprintf("%s > %s", ref, next(w.Value)))
		case WhereOpGte:
			clauses = append(clauses, fmt.Sprintf("%s >= %s", ref, next(w.Value)))
		case WhereOpLt:
			clauses = append(clauses, fmt.Sprintf("%s < %s", ref, next(w.Value)))
		case WhereOpLte:
			clauses = append(clauses, fmt.Sprintf("%s <= %s", ref, next(w.Value)))
		case WhereOpContains:
			clauses = append(clauses, fmt.Sprintf("CONTAINS(%s, %s)", ref, next(w.Value)))
		case WhereOpStartsWith:
			clauses = append(clauses, fmt.Sprintf("STARTSWITH(%s, %s)", ref, next(w.Value)))
		case WhereOpEndsWith:
			clauses = append(clauses, fmt.Sprintf("ENDSWITH(%s, %s)", ref, next(w.Value)))
		case WhereOpArrayContains:
			clauses = append(clauses, fmt.Sprintf("ARRAY_CONTAINS(%s, %s)", ref, next(w.Value)))
		case WhereOpArrayContainsAny:
			clauses = append(clauses, fmt.Sprintf("ARRAY_CONTAINS_ANY(%s, %s)", ref, next(w.Value)))
		case WhereOpArrayContainsAll:
			clauses = append(clauses, fmt.Sprintf("ARRAY_CONTAINS_ALL(%s, %s)", ref, next(w.Value)))
		default:
			return nil, nil, errors.New(errors.Validation, "unsupported where operator: '%s'", w.Op)
		}
	}
	return clauses, params, nil
}

// whereClause joins compiled fragments into a WHERE clause (leading space
// included) or returns the empty string when there is nothing to filter on.
func whereClause(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}
