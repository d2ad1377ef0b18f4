package docql

import (
	"github.com/spf13/cast"
)

// AggregateResult is the nested shape reconstructed from the flat aliased row
// the store returns. Sum/Avg/Min/Max hold one entry per requested field; an
// entry whose underlying value was missing or null is present with a nil
// value, modeling "no matching documents contributed to this field".
type AggregateResult struct {
	// Count is the document count (set when the spec requested a row count)
	Count *int64 `json:"_count,omitempty"`
	// CountFields holds per-field non-null counts
	CountFields map[string]int64 `json:"_count_fields,omitempty"`
	Sum         map[string]*float64 `json:"_sum,omitempty"`
	Avg         map[string]*float64 `json:"_avg,omitempty"`
	Min         map[string]any      `json:"_min,omitempty"`
	Max         map[string]any      `json:"_max,omitempty"`
}

// GroupedResult is one group of a group-by query: the grouped field values
// plus the aggregates computed over the group
type GroupedResult struct {
	// Keys maps each grouped field to its value for this group
	Keys map[string]any `json:"keys"`
	AggregateResult
}

// ParseAggregateResult reshapes a flat aliased row into the nested result the
// spec requested, using the same alias derivation as the builder in reverse.
func ParseAggregateResult(row map[string]any, spec AggregateSpec) (*AggregateResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	out := &AggregateResult{}
	if spec.Count {
		count := cast.ToInt64(row[aggregateAlias(AggregateCount, "")])
		out.Count = &count
	}
	if len(spec.CountFields) > 0 {
		out.CountFields = map[string]int64{}
		for _, f := range spec.CountFields {
			out.CountFields[f] = cast.ToInt64(row[aggregateAlias(AggregateCount, f)])
		}
	}
	out.Sum = numericEntries(row, AggregateSum, spec.Sum)
	out.Avg = numericEntries(row, AggregateAvg, spec.Avg)
	out.Min = rawEntries(row, AggregateMin, spec.Min)
	out.Max = rawEntries(row, AggregateMax, spec.Max)
	return out, nil
}

// ParseGroupByResults reshapes one row per group, injecting the grouped field
// values into each entry. Row order is preserved as returned; ordering is
// entirely the query's responsibility.
func ParseGroupByResults(rows []map[string]any, opts GroupByOptions) ([]GroupedResult, error) {
	results := make([]GroupedResult, 0, len(rows))
	for _, row := range rows {
		agg, err := ParseAggregateResult(row, opts.Aggregate)
		if err != nil {
			return nil, err
		}
		keys := map[string]any{}
		for _, f := range opts.By {
			keys[f] = row[f]
		}
		results = append(results, GroupedResult{Keys: keys, AggregateResult: *agg})
	}
	return results, nil
}

func numericEntries(row map[string]any, fn AggregateFunction, fields []string) map[string]*float64 {
	if len(fields) == 0 {
		return nil
	}
	out := map[string]*float64{}
	for _, f := range fields {
		v, ok := row[aggregateAlias(fn, f)]
		if !ok || v == nil {
			out[f] = nil
			continue
		}
		n := cast.ToFloat64(v)
		out[f] = &n
	}
	return out
}

func rawEntries(row map[string]any, fn AggregateFunction, fields []string) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := map[string]any{}
	for _, f := range fields {
		v, ok := row[aggregateAlias(fn, f)]
		if !ok || v == nil {
			out[f] = nil
			continue
		}
		out[f] = v
	}
	return out
}
