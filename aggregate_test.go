package docql

import (
	"testing"

	"github.com/stratumdb/docql/errors"
	"github.com/stretchr/testify/assert"
)

func TestBuildCount(t *testing.T) {
	t.Run("without filter", func(t *testing.T) {
		text, params, err := BuildCount(CountOptions{})
		assert.NoError(t, err)
		assert.Equal(t, "SELECT VALUE COUNT(1) FROM root", text)
		assert.Len(t, params, 0)
	})
	t.Run("count round trip with comparison filter", func(t *testing.T) {
		text, params, err := BuildCount(CountOptions{
			Filter: Filter{{Field: "age", Op: WhereOpGte, Value: 18}},
		})
		assert.NoError(t, err)
		assert.Contains(t, text, "COUNT(1)")
		assert.Contains(t, text, `WHERE root["age"] >= @param0`)
		assert.Len(t, params, 1)
		assert.Equal(t, 18, params[0].Value)
	})
}

func TestBuildAggregate(t *testing.T) {
	t.Run("empty spec fails before any network call", func(t *testing.T) {
		_, _, err := BuildAggregate(AggregateOptions{})
		assert.Error(t, err)
		assert.Equal(t, errors.Validation, errors.Extract(err).Code)
	})
	t.Run("count only", func(t *testing.T) {
		text, _, err := BuildAggregate(AggregateOptions{Aggregate: AggregateSpec{Count: true}})
		assert.NoError(t, err)
		assert.Equal(t, "SELECT COUNT(1) AS _count FROM root", text)
	})
	t.Run("per field counts", func(t *testing.T) {
		text, _, err := BuildAggregate(AggregateOptions{
			Aggregate: AggregateSpec{CountFields: []string{"field1", "field2"}},
		})
		assert.NoError(t, err)
		assert.Equal(t, `SELECT COUNT(root["field1"]) AS _count_field1, COUNT(root["field2"]) AS _count_field2 FROM root`, text)
	})
	t.Run("projection order is count sum avg min max", func(t *testing.T) {
		text, _, err := BuildAggregate(AggregateOptions{
			Aggregate: AggregateSpec{
				Max:   []string{"amount"},
				Sum:   []string{"amount", "quantity"},
				Count: true,
				Avg:   []string{"amount"},
				Min:   []string{"amount"},
			},
		})
		assert.NoError(t, err)
		assert.Equal(t, `SELECT COUNT(1) AS _count, SUM(root["amount"]) AS _sum_amount, SUM(root["quantity"]) AS _sum_quantity, AVG(root["amount"]) AS _avg_amount, MIN(root["amount"]) AS _min_amount, MAX(root["amount"]) AS _max_amount FROM root`, text)
	})
	t.Run("filter parameters flow through", func(t *testing.T) {
		text, params, err := BuildAggregate(AggregateOptions{
			Aggregate: AggregateSpec{Sum: []string{"amount"}},
			Filter:    Filter{{Field: "status", Value: "open"}},
		})
		assert.NoError(t, err)
		assert.Contains(t, text, `WHERE root["status"] = @param0`)
		assert.Len(t, params, 1)
	})
}

func TestBuildGroupBy(t *testing.T) {
	t.Run("requires group fields", func(t *testing.T) {
		_, _, err := BuildGroupBy(GroupByOptions{Aggregate: AggregateSpec{Count: true}})
		assert.Error(t, err)
	})
	t.Run("requires aggregate operations", func(t *testing.T) {
		_, _, err := BuildGroupBy(GroupByOptions{By: []string{"region"}})
		assert.Error(t, err)
	})
	t.Run("group fields project and group in declared order", func(t *testing.T) {
		text, _, err := BuildGroupBy(GroupByOptions{
			By:        []string{"region", "category"},
			Aggregate: AggregateSpec{Count: true},
		})
		assert.NoError(t, err)
		assert.Equal(t, `SELECT root["region"] AS region, root["category"] AS category, COUNT(1) AS _count FROM root GROUP BY root["region"], root["category"]`, text)
	})
	t.Run("order by aggregate alias renders bare", func(t *testing.T) {
		text, _, err := BuildGroupBy(GroupByOptions{
			By:        []string{"region"},
			Aggregate: AggregateSpec{Count: true},
			OrderBy:   []OrderBy{{Field: "_count", Direction: DESC}},
		})
		assert.NoError(t, err)
		assert.Contains(t, text, "ORDER BY _count DESC")
	})
	t.Run("order by grouped field uses the bracket accessor", func(t *testing.T) {
		text, _, err := BuildGroupBy(GroupByOptions{
			By:        []string{"region"},
			Aggregate: AggregateSpec{Count: true},
			OrderBy:   []OrderBy{{Field: "region", Direction: ASC}},
		})
		assert.NoError(t, err)
		assert.Contains(t, text, `ORDER BY root["region"] ASC`)
	})
	t.Run("pagination follows the query builder rules", func(t *testing.T) {
		take, skip := 10, 5
		text, _, err := BuildGroupBy(GroupByOptions{
			By:        []string{"region"},
			Aggregate: AggregateSpec{Count: true},
			Take:      &take,
			Skip:      &skip,
		})
		assert.NoError(t, err)
		assert.Contains(t, text, "OFFSET 5 LIMIT 10")
		assert.NotContains(t, text, "TOP")

		text, _, err = BuildGroupBy(GroupByOptions{
			By:        []string{"region"},
			Aggregate: AggregateSpec{Count: true},
			Take:      &take,
		})
		assert.NoError(t, err)
		assert.Contains(t, text, "SELECT TOP 10 ")
	})
	t.Run("filter clauses come before GROUP BY", func(t *testing.T) {
		text, params, err := BuildGroupBy(GroupByOptions{
			By:        []string{"region"},
			Aggregate: AggregateSpec{Sum: []string{"amount"}},
			Filter:    Filter{{Field: "status", Value: "open"}},
		})
		assert.NoError(t, err)
		assert.Equal(t, `SELECT root["region"] AS region, SUM(root["amount"]) AS _sum_amount FROM root WHERE root["status"] = @param0 GROUP BY root["region"]`, text)
		assert.Len(t, params, 1)
	})
}

func TestAggregateAlias(t *testing.T) {
	assert.Equal(t, "_count", aggregateAlias(AggregateCount, ""))
	assert.Equal(t, "_count_field1", aggregateAlias(AggregateCount, "field1"))
	assert.Equal(t, "_sum_amount", aggregateAlias(AggregateSum, "amount"))
	assert.Equal(t, "_max_amount", aggregateAlias(AggregateMax, "amount"))
}
