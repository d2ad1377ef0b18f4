package docql

import (
	"fmt"
	"strings"

	"github.com/stratumdb/docql/errors"
)

// AggregateFunction is an aggregate function applied to documents or a document field
type AggregateFunction string

const (
	// AggregateCount calculates the count
	AggregateCount AggregateFunction = "count"
	// AggregateSum calculates the sum
	AggregateSum AggregateFunction = "sum"
	// AggregateAvg calculates the avg
	AggregateAvg AggregateFunction = "avg"
	// AggregateMin calculates the min
	AggregateMin AggregateFunction = "min"
	// AggregateMax calculates the max
	AggregateMax AggregateFunction = "max"
)

// AggregateSpec is the set of aggregate operations to compute. Count is the
// document count; CountFields counts non-null values per field. Field slices
// keep their declared order, which fixes projection and alias order.
type AggregateSpec struct {
	Count       bool     `json:"count,omitempty"`
	CountFields []string `json:"count_fields,omitempty"`
	Sum         []string `json:"sum,omitempty"`
	Avg         []string `json:"avg,omitempty"`
	Min         []string `json:"min,omitempty"`
	Max         []string `json:"max,omitempty"`
}

// Validate rejects a spec with zero operations before any network call is made
func (s AggregateSpec) Validate() error {
	if !s.Count && len(s.CountFields) == 0 && len(s.Sum) == 0 &&
		len(s.Avg) == 0 && len(s.Min) == 0 && len(s.Max) == 0 {
		return errors.New(errors.Validation, "aggregate requires at least one operation: _count, _sum, _avg, _min or _max")
	}
	return nil
}

// aggregateAlias derives the deterministic projection alias for an operation,
// e.g. _count, _count_field1, _sum_amount. The result mapper applies the same
// rule in reverse.
func aggregateAlias(fn AggregateFunction, field string) string {
	if field == "" {
		return "_" + string(fn)
	}
	return fmt.Sprintf("_%s_%s", fn, field)
}

// projections renders the aliased aggregate expressions in the fixed order
// count, sum, avg, min, max; fields keep spec order within each operation.
func (s AggregateSpec) projections() []string {
	var cols []string
	if s.Count {
		cols = append(cols, fmt.Sprintf("COUNT(1) AS %s", aggregateAlias(AggregateCount, "")))
	}
	for _, f := range s.CountFields {
		cols = append(cols, fmt.Sprintf("COUNT(%s) AS %s", fieldRef(f), aggregateAlias(AggregateCount, f)))
	}
	for _, f := range s.Sum {
		cols = append(cols, fmt.Sprintf("SUM(%s) AS %s", fieldRef(f), aggregateAlias(AggregateSum, f)))
	}
	for _, f := range s.Avg {
		cols = append(cols, fmt.Sprintf("AVG(%s) AS %s", fieldRef(f), aggregateAlias(AggregateAvg, f)))
	}
	for _, f := range s.Min {
		cols = append(cols, fmt.Sprintf("MIN(%s) AS %s", fieldRef(f), aggregateAlias(AggregateMin, f)))
	}
	for _, f := range s.Max {
		cols = append(cols, fmt.Sprintf("MAX(%s) AS %s", fieldRef(f), aggregateAlias(AggregateMax, f)))
	}
	return cols
}

// aliases returns the set of alias names the spec projects, used to tell an
// aggregate alias apart from a plain field in ORDER BY rendering
func (s AggregateSpec) aliases() map[string]bool {
	out := map[string]bool{}
	if s.Count {
		out[aggregateAlias(AggregateCount, "")] = true
	}
	for _, f := range s.CountFields {
		out[aggregateAlias(AggregateCount, f)] = true
	}
	for _, f := range s.Sum {
		out[aggregateAlias(AggregateSum, f)] = true
	}
	for _, f := range s.Avg {
		out[aggregateAlias(AggregateAvg, f)] = true
	}
	for _, f := range s.Min {
		out[aggregateAlias(AggregateMin, f)] = true
	}
	for _, f := range s.Max {
		out[aggregateAlias(AggregateMax, f)] = true
	}
	return out
}

// CountOptions selects the documents counted by BuildCount
type CountOptions struct {
	// Filter selects the documents to count
	Filter Filter `json:"filter,omitempty"`
	// PartitionKey scopes the query to a single partition
	PartitionKey any `json:"partition_key,omitempty"`
	// CrossPartition opts into fanning the query out across partitions
	CrossPartition bool `json:"cross_partition,omitempty"`
}

// AggregateOptions describes an aggregate query without grouping
type AggregateOptions struct {
	// Aggregate is the set of operations to compute; at least one is required
	Aggregate AggregateSpec `json:"aggregate"`
	// Filter selects the documents to aggregate over
	Filter Filter `json:"filter,omitempty"`
	// PartitionKey scopes the query to a single partition
	PartitionKey any `json:"partition_key,omitempty"`
	// CrossPartition opts into fanning the query out across partitions
	CrossPartition bool `json:"cross_partition,omitempty"`
}

// GroupByOptions describes an aggregate query grouped by one or more fields
type GroupByOptions struct {
	// By is the ordered list of fields to group by
	By []string `json:"by"`
	// Aggregate is the set of operations to compute per group
	Aggregate AggregateSpec `json:"aggregate"`
	// Filter selects the documents to aggregate over
	Filter Filter `json:"filter,omitempty"`
	// OrderBy sorts groups by a grouped field or an aggregate alias
	OrderBy []OrderBy `json:"order_by,omitempty"`
	// Take limits the number of groups returned
	Take *int `json:"take,omitempty"`
	// Skip skips the first n groups
	Skip *int `json:"skip,omitempty"`
	// PartitionKey scopes the query to a single partition
	PartitionKey any `json:"partition_key,omitempty"`
	// CrossPartition opts into fanning the query out across partitions
	CrossPartition bool `json:"cross_partition,omitempty"`
}

// BuildCount compiles a single-scalar count query. The store returns a bare
// value for this form, not a row object.
func BuildCount(opts CountOptions) (string, []Parameter, error) {
	clauses, params, err := CompileFilter(opts.Filter)
	if err != nil {
		return "", nil, err
	}
	return "SELECT VALUE COUNT(1) FROM root" + whereClause(clauses), params, nil
}

// BuildAggregate compiles an aggregate query projecting one aliased expression
// per requested operation/field pair. It fails fast on an empty spec.
func BuildAggregate(opts AggregateOptions) (string, []Parameter, error) {
	if err := opts.Aggregate.Validate(); err != nil {
		return "", nil, err
	}
	clauses, params, err := CompileFilter(opts.Filter)
	if err != nil {
		return "", nil, err
	}
	text := "SELECT " + strings.Join(opts.Aggregate.projections(), ", ") +
		" FROM root" + whereClause(clauses)
	return text, params, nil
}

// BuildGroupBy compiles a grouped aggregate query: grouped fields first (each
// aliased to its own name), then the aggregate expressions, then GROUP BY over
// the same field list, then optional ORDER BY and pagination.
func BuildGroupBy(opts GroupByOptions) (string, []Parameter, error) {
	if len(opts.By) == 0 {
		return "", nil, errors.New(errors.Validation, "group by requires at least one field")
	}
	if err := opts.Aggregate.Validate(); err != nil {
		return "", nil, err
	}
	if opts.Take != nil && *opts.Take < 0 {
		return "", nil, errors.New(errors.Validation, "take must not be negative: %d", *opts.Take)
	}
	if opts.Skip != nil && *opts.Skip < 0 {
		return "", nil, errors.New(errors.Validation, "skip must not be negative: %d", *opts.Skip)
	}
	clauses, params, err := CompileFilter(opts.Filter)
	if err != nil {
		return "", nil, err
	}
	var (
		cols   []string
		groups []string
	)
	for _, f := range opts.By {
		cols = append(cols, fmt.Sprintf("%s AS %s", fieldRef(f), f))
		groups = append(groups, fieldRef(f))
	}
	cols = append(cols, opts.Aggregate.projections()...)

	var b strings.Builder
	b.WriteString("SELECT ")
	if opts.Take != nil && opts.Skip == nil {
		fmt.Fprintf(&b, "TOP %d ", *opts.Take)
	}
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM root")
	b.WriteString(whereClause(clauses))
	b.WriteString(" GROUP BY ")
	b.WriteString(strings.Join(groups, ", "))
	b.WriteString(orderByClause(opts.OrderBy, opts.Aggregate.aliases()))
	if opts.Skip != nil {
		fmt.Fprintf(&b, " OFFSET %d", *opts.Skip)
		if opts.Take != nil {
			fmt.Fprintf(&b, " LIMIT %d", *opts.Take)
		}
	}
	return b.String(), params, nil
}
