package docql

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cast"
	"github.com/stratumdb/docql/errors"
	"github.com/stratumdb/docql/util"
)

// Transport issues requests against the store's HTTP API. It is an external
// collaborator owning signing, addressing and response parsing; this library
// only hands it the query/document path patterns below.
type Transport interface {
	// Request executes a single request. partitionKey scopes it to one
	// partition; crossPartition opts a query into fanning out across
	// partitions. Failures carry the remote status and store error code.
	Request(ctx context.Context, method, path string, body any, partitionKey any, crossPartition bool) (*Response, error)
}

// Response is a parsed store response
type Response struct {
	// Documents holds row objects returned by document queries
	Documents []map[string]any `json:"documents,omitempty"`
	// Values holds bare values returned by VALUE projections
	Values []any `json:"values,omitempty"`
	// RequestCharge is the cost the store reported for the request
	RequestCharge float64 `json:"request_charge,omitempty"`
}

// querySpec is the wire form of a parameterized query
type querySpec struct {
	Query      string      `json:"query"`
	Parameters []Parameter `json:"parameters"`
}

// Container is a handle on a single document container. All queries and bulk
// operations run against it through the configured Transport.
type Container struct {
	config    ContainerConfig
	transport Transport
	logger    Logger
}

// ContainerOpt is an option for configuring a container handle
type ContainerOpt func(c *Container)

// WithLogger sets the logger used by the container
func WithLogger(logger Logger) ContainerOpt {
	return func(c *Container) {
		c.logger = logger
	}
}

// NewContainer creates a container handle from the given config and transport
func NewContainer(cfg ContainerConfig, transport Transport, opts ...ContainerOpt) (*Container, error) {
	cfg.applyDefaults()
	if err := util.ValidateStruct(cfg); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, errors.New(errors.Validation, "transport is required")
	}
	c := &Container{
		config:    cfg,
		transport: transport,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the container configuration
func (c *Container) Config() ContainerConfig {
	return c.config
}

func (c *Container) queryPath() string {
	return fmt.Sprintf("/dbs/%s/colls/%s/docs", c.config.Database, c.config.Container)
}

func (c *Container) documentPath(id string) string {
	return fmt.Sprintf("/dbs/%s/colls/%s/docs/%s", c.config.Database, c.config.Container, id)
}

// runQuery posts a compiled query to the container's query endpoint.
// Cross-partition failures are wrapped with an actionable message; the
// original error stays attached.
func (c *Container) runQuery(ctx context.Context, text string, params []Parameter, partitionKey any, crossPartition bool) (*Response, error) {
	if params == nil {
		params = []Parameter{}
	}
	c.logger.Debug(ctx, "executing query", logTags(ctx, map[string]any{
		"query":           text,
		"parameters":      len(params),
		"cross_partition": crossPartition,
	}))
	resp, err := c.transport.Request(ctx, http.MethodPost, c.queryPath(), querySpec{Query: text, Parameters: params}, partitionKey, crossPartition)
	if err != nil {
		if crossPartition {
			return nil, errors.Wrap(err, 0, "cross-partition query failed - verify the container exists and holds documents (querying an empty or unseeded container is the most common cause)")
		}
		return nil, err
	}
	return resp, nil
}

// FindOptions describes a document selection query
type FindOptions struct {
	// Filter selects the documents to return
	Filter Filter `json:"filter,omitempty"`
	// Select is the projection; empty means select all
	Select []string `json:"select,omitempty"`
	// Distinct marks the projection as DISTINCT
	Distinct bool `json:"distinct,omitempty"`
	// OrderBy sorts the result set
	OrderBy []OrderBy `json:"order_by,omitempty"`
	// Take limits the number of documents returned
	Take *int `json:"take,omitempty"`
	// Skip skips the first n documents
	Skip *int `json:"skip,omitempty"`
	// PartitionKey scopes the query to a single partition
	PartitionKey any `json:"partition_key,omitempty"`
	// CrossPartition opts into fanning the query out across partitions
	CrossPartition bool `json:"cross_partition,omitempty"`
}

func (o FindOptions) builder() *QueryBuilder {
	q := NewQueryBuilder().
		Select(o.Select...).
		Where(o.Filter...).
		OrderBy(o.OrderBy...)
	if o.Distinct {
		q.Distinct()
	}
	if o.Take != nil {
		q.Take(*o.Take)
	}
	if o.Skip != nil {
		q.Skip(*o.Skip)
	}
	return q
}

// Find returns the raw documents matching the options
func (c *Container) Find(ctx context.Context, opts FindOptions) ([]map[string]any, error) {
	text, params, err := opts.builder().Build()
	if err != nil {
		return nil, err
	}
	resp, err := c.runQuery(ctx, text, params, opts.PartitionKey, opts.CrossPartition)
	if err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// Count returns the number of documents matching the options. The store
// returns a bare scalar for the count form, which is unwrapped here.
func (c *Container) Count(ctx context.Context, opts CountOptions) (int64, error) {
	text, params, err := BuildCount(opts)
	if err != nil {
		return 0, err
	}
	resp, err := c.runQuery(ctx, text, params, opts.PartitionKey, opts.CrossPartition)
	if err != nil {
		return 0, err
	}
	if len(resp.Values) == 0 {
		return 0, nil
	}
	return cast.ToInt64(resp.Values[0]), nil
}

// Aggregate computes the requested aggregates over the matching documents and
// reshapes the store's flat row into the nested result
func (c *Container) Aggregate(ctx context.Context, opts AggregateOptions) (*AggregateResult, error) {
	text, params, err := BuildAggregate(opts)
	if err != nil {
		return nil, err
	}
	resp, err := c.runQuery(ctx, text, params, opts.PartitionKey, opts.CrossPartition)
	if err != nil {
		return nil, err
	}
	row := map[string]any{}
	if len(resp.Documents) > 0 {
		row = resp.Documents[0]
	}
	return ParseAggregateResult(row, opts.Aggregate)
}

// GroupBy computes the requested aggregates per group and returns one entry
// per group in the order the store returned them
func (c *Container) GroupBy(ctx context.Context, opts GroupByOptions) ([]GroupedResult, error) {
	text, params, err := BuildGroupBy(opts)
	if err != nil {
		return nil, err
	}
	resp, err := c.runQuery(ctx, text, params, opts.PartitionKey, opts.CrossPartition)
	if err != nil {
		return nil, err
	}
	return ParseGroupByResults(resp.Documents, opts)
}

// DecodeDocuments decodes raw document rows into a typed slice pointer based
// on json tags
func DecodeDocuments(rows []map[string]any, out any) error {
	return util.Decode(rows, out)
}
