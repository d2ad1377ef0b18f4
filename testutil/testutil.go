package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stratumdb/docql"
)

// Request is a single request captured by the fake transport
type Request struct {
	Method         string
	Path           string
	Body           any
	PartitionKey   any
	CrossPartition bool
}

// FakeTransport is an in-memory docql.Transport for tests. Responses come from
// the Handler; when unset every request succeeds with an empty response.
// Latency widens the window in which concurrent requests overlap so tests can
// observe the in-flight high-water mark.
type FakeTransport struct {
	// Handler produces the response for each request
	Handler func(req Request) (*docql.Response, error)
	// Latency is applied to every request before the handler runs
	Latency time.Duration

	mu          sync.Mutex
	requests    []Request
	inflight    int
	maxInflight int
}

func (f *FakeTransport) Request(ctx context.Context, method, path string, body any, partitionKey any, crossPartition bool) (*docql.Response, error) {
	req := Request{
		Method:         method,
		Path:           path,
		Body:           body,
		PartitionKey:   partitionKey,
		CrossPartition: crossPartition,
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	handler := f.Handler
	latency := f.Latency
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()
	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(latency):
		}
	}
	if handler == nil {
		return &docql.Response{}, nil
	}
	return handler(req)
}

// Requests returns a copy of all captured requests
func (f *FakeTransport) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// CountRequests counts captured requests by method and path substring
func (f *FakeTransport) CountRequests(method, pathContains string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && strings.Contains(r.Path, pathContains) {
			n++
		}
	}
	return n
}

// MaxInflight returns the highest number of simultaneously in-flight requests observed
func (f *FakeTransport) MaxInflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

// NewOrderDoc generates a fake order document keyed by tenant
func NewOrderDoc(tenant string) map[string]any {
	return map[string]any{
		"id":       gofakeit.UUID(),
		"tenantId": tenant,
		"region":   gofakeit.RandomString([]string{"emea", "amer", "apac"}),
		"category": gofakeit.RandomString([]string{"books", "games", "tools"}),
		"status":   gofakeit.RandomString([]string{"open", "shipped", "cancelled"}),
		"amount":   gofakeit.Price(1, 500),
		"quantity": gofakeit.IntRange(1, 20),
		"tags":     []any{gofakeit.BuzzWord(), gofakeit.BuzzWord()},
	}
}

// NewOrderDocs generates n fake order documents for the same tenant
func NewOrderDocs(n int, tenant string) []map[string]any {
	docs := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, NewOrderDoc(tenant))
	}
	return docs
}
