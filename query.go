package docql

import (
	"fmt"
	"strings"

	"github.com/stratumdb/docql/errors"
)

// QueryBuilder accumulates a document query via chainable methods and compiles
// it with Build. Build is idempotent and has no side effects on the
// accumulated state, so it may be called any number of times.
type QueryBuilder struct {
	selects  []string
	distinct bool
	filter   Filter
	orderBy  []OrderBy
	take     *int
	skip     *int
}

// NewQueryBuilder creates a new QueryBuilder instance
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Select adds fields to the projection. An empty or omitted select list means
// select all.
func (q *QueryBuilder) Select(fields ...string) *QueryBuilder {
	q.selects = append(q.selects, fields...)
	return q
}

// Distinct marks the projection as DISTINCT
func (q *QueryBuilder) Distinct() *QueryBuilder {
	q.distinct = true
	return q
}

// Where adds the where clause(s) to the query
func (q *QueryBuilder) Where(where ...Where) *QueryBuilder {
	q.filter = append(q.filter, where...)
	return q
}

// OrderBy adds the order by clause(s) to the query
func (q *QueryBuilder) OrderBy(ob ...OrderBy) *QueryBuilder {
	q.orderBy = append(q.orderBy, ob...)
	return q
}

// Take limits the result set to n documents. Zero is a valid value.
func (q *QueryBuilder) Take(n int) *QueryBuilder {
	q.take = &n
	return q
}

// Skip skips the first n documents of the result set. Zero is a valid value.
func (q *QueryBuilder) Skip(n int) *QueryBuilder {
	q.skip = &n
	return q
}

// Build compiles the accumulated query into dialect text plus its ordered
// parameters. Pagination renders as TOP when only a take is set and as
// OFFSET/LIMIT once a skip is present.
func (q *QueryBuilder) Build() (string, []Parameter, error) {
	if q.take != nil && *q.take < 0 {
		return "", nil, errors.New(errors.Validation, "take must not be negative: %d", *q.take)
	}
	if q.skip != nil && *q.skip < 0 {
		return "", nil, errors.New(errors.Validation, "skip must not be negative: %d", *q.skip)
	}
	clauses, params, err := CompileFilter(q.filter)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	if q.take != nil && q.skip == nil {
		fmt.Fprintf(&b, "TOP %d ", *q.take)
	}
	b.WriteString(projection(q.selects))
	b.WriteString(" FROM root")
	b.WriteString(whereClause(clauses))
	b.WriteString(orderByClause(q.orderBy, nil))
	if q.skip != nil {
		fmt.Fprintf(&b, " OFFSET %d", *q.skip)
		if q.take != nil {
			fmt.Fprintf(&b, " LIMIT %d", *q.take)
		}
	}
	return b.String(), params, nil
}

func projection(fields []string) string {
	if len(fields) == 0 {
		return "*"
	}
	refs := make([]string, 0, len(fields))
	for _, f := range fields {
		refs = append(refs, fieldRef(f))
	}
	return strings.Join(refs, ", ")
}

// orderByClause renders an ORDER BY clause (leading space included) or the
// empty string. Names found in aliases render bare, everything else is
// wrapped in the bracket accessor.
func orderByClause(orderBy []OrderBy, aliases map[string]bool) string {
	if len(orderBy) == 0 {
		return ""
	}
	entries := make([]string, 0, len(orderBy))
	for _, ob := range orderBy {
		dir := ob.Direction
		if dir == "" {
			dir = ASC
		}
		if aliases[ob.Field] {
			entries = append(entries, fmt.Sprintf("%s %s", ob.Field, dir))
		} else {
			entries = append(entries, fmt.Sprintf("%s %s", fieldRef(ob.Field), dir))
		}
	}
	return " ORDER BY " + strings.Join(entries, ", ")
}
