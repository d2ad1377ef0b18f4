package docql_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stratumdb/docql"
	"github.com/stratumdb/docql/errors"
	"github.com/stratumdb/docql/testutil"
	"github.com/stratumdb/docql/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContainer(t *testing.T, transport *testutil.FakeTransport) *docql.Container {
	t.Helper()
	c, err := docql.NewContainer(docql.ContainerConfig{
		Database:         "db1",
		Container:        "orders",
		PartitionKeyPath: "/tenantId",
	}, transport)
	require.NoError(t, err)
	return c
}

func TestNewContainer(t *testing.T) {
	t.Run("requires database and container ids", func(t *testing.T) {
		_, err := docql.NewContainer(docql.ContainerConfig{}, &testutil.FakeTransport{})
		assert.Error(t, err)
	})
	t.Run("requires a transport", func(t *testing.T) {
		_, err := docql.NewContainer(docql.ContainerConfig{Database: "db1", Container: "orders"}, nil)
		assert.Error(t, err)
	})
	t.Run("applies defaults", func(t *testing.T) {
		c, err := docql.NewContainer(docql.ContainerConfig{Database: "db1", Container: "orders"}, &testutil.FakeTransport{})
		require.NoError(t, err)
		assert.Equal(t, docql.DefaultBatchSize, c.Config().BatchSize)
		assert.Equal(t, docql.DefaultConcurrency, c.Config().MaxConcurrency)
	})
}

func TestContainerFind(t *testing.T) {
	t.Run("posts a parameterized query to the container path", func(t *testing.T) {
		transport := &testutil.FakeTransport{
			Handler: func(req testutil.Request) (*docql.Response, error) {
				return &docql.Response{Documents: []map[string]any{{"id": "d1"}}}, nil
			},
		}
		c := newTestContainer(t, transport)
		docs, err := c.Find(context.Background(), docql.FindOptions{
			Filter:       docql.Filter{{Field: "status", Value: "open"}},
			PartitionKey: "t1",
		})
		require.NoError(t, err)
		assert.Len(t, docs, 1)

		reqs := transport.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, http.MethodPost, reqs[0].Method)
		assert.Equal(t, "/dbs/db1/colls/orders/docs", reqs[0].Path)
		assert.Equal(t, "t1", reqs[0].PartitionKey)
		assert.False(t, reqs[0].CrossPartition)
		body := util.JSONString(reqs[0].Body)
		assert.Contains(t, body, `SELECT * FROM root WHERE root[\"status\"] = @param0`)
		assert.Contains(t, body, `"@param0"`)
	})
	t.Run("cross partition failure is wrapped with an actionable message", func(t *testing.T) {
		original := errors.New(errors.Validation, "cross partition query is required but disabled")
		transport := &testutil.FakeTransport{
			Handler: func(req testutil.Request) (*docql.Response, error) {
				return nil, original
			},
		}
		c := newTestContainer(t, transport)
		_, err := c.Find(context.Background(), docql.FindOptions{CrossPartition: true})
		require.Error(t, err)
		e := errors.Extract(err)
		assert.Contains(t, e.Messages[len(e.Messages)-1], "cross-partition query failed")
		// original error is wrapped, not swallowed
		assert.Equal(t, errors.Validation, e.Code)
		assert.Contains(t, e.Messages[0], "cross partition query is required")
	})
	t.Run("single partition failure is not rewritten", func(t *testing.T) {
		transport := &testutil.FakeTransport{
			Handler: func(req testutil.Request) (*docql.Response, error) {
				return nil, errors.New(errors.Unauthorized, "bad signature")
			},
		}
		c := newTestContainer(t, transport)
		_, err := c.Find(context.Background(), docql.FindOptions{PartitionKey: "t1"})
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "cross-partition")
	})
}

func TestContainerCount(t *testing.T) {
	transport := &testutil.FakeTransport{
		Handler: func(req testutil.Request) (*docql.Response, error) {
			body := util.JSONString(req.Body)
			assert.Contains(t, body, "SELECT VALUE COUNT(1) FROM root")
			return &docql.Response{Values: []any{float64(12)}}, nil
		},
	}
	c := newTestContainer(t, transport)
	n, err := c.Count(context.Background(), docql.CountOptions{
		Filter:       docql.Filter{{Field: "age", Op: docql.WhereOpGte, Value: 18}},
		PartitionKey: "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestContainerAggregate(t *testing.T) {
	t.Run("empty spec fails before any network call", func(t *testing.T) {
		transport := &testutil.FakeTransport{}
		c := newTestContainer(t, transport)
		_, err := c.Aggregate(context.Background(), docql.AggregateOptions{PartitionKey: "t1"})
		require.Error(t, err)
		assert.Len(t, transport.Requests(), 0)
	})
	t.Run("maps the flat row into the nested result", func(t *testing.T) {
		transport := &testutil.FakeTransport{
			Handler: func(req testutil.Request) (*docql.Response, error) {
				return &docql.Response{Documents: []map[string]any{{
					"_count":      float64(3),
					"_sum_amount": float64(30),
				}}}, nil
			},
		}
		c := newTestContainer(t, transport)
		res, err := c.Aggregate(context.Background(), docql.AggregateOptions{
			Aggregate:    docql.AggregateSpec{Count: true, Sum: []string{"amount"}},
			PartitionKey: "t1",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), *res.Count)
		assert.Equal(t, 30.0, *res.Sum["amount"])
	})
	t.Run("no matching documents yields null aggregates", func(t *testing.T) {
		transport := &testutil.FakeTransport{
			Handler: func(req testutil.Request) (*docql.Response, error) {
				return &docql.Response{}, nil
			},
		}
		c := newTestContainer(t, transport)
		res, err := c.Aggregate(context.Background(), docql.AggregateOptions{
			Aggregate:    docql.AggregateSpec{Sum: []string{"amount"}},
			PartitionKey: "t1",
		})
		require.NoError(t, err)
		v, ok := res.Sum["amount"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})
}

func TestContainerGroupBy(t *testing.T) {
	transport := &testutil.FakeTransport{
		Handler: func(req testutil.Request) (*docql.Response, error) {
			body := util.JSONString(req.Body)
			assert.Contains(t, body, `GROUP BY root[\"region\"]`)
			return &docql.Response{Documents: []map[string]any{
				{"region": "emea", "_count": float64(2)},
				{"region": "amer", "_count": float64(1)},
			}}, nil
		},
	}
	c := newTestContainer(t, transport)
	groups, err := c.GroupBy(context.Background(), docql.GroupByOptions{
		By:             []string{"region"},
		Aggregate:      docql.AggregateSpec{Count: true},
		CrossPartition: true,
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "emea", groups[0].Keys["region"])
	assert.Equal(t, int64(2), *groups[0].Count)
	assert.Equal(t, "amer", groups[1].Keys["region"])
}

func TestDecodeDocuments(t *testing.T) {
	type order struct {
		ID     string  `json:"id"`
		Amount float64 `json:"amount"`
	}
	var out []order
	err := docql.DecodeDocuments([]map[string]any{
		{"id": "o1", "amount": 1.5},
		{"id": "o2", "amount": 2.5},
	}, &out)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "o2", out[1].ID)
	assert.Equal(t, 2.5, out[1].Amount)
}
