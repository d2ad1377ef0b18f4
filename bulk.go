package docql

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cast"
	"github.com/stratumdb/docql/errors"
	"golang.org/x/sync/errgroup"
)

// BulkError is a per-document failure captured during a bulk operation
type BulkError struct {
	// DocumentID is the id of the document that failed
	DocumentID string `json:"document_id"`
	// PartitionKey is the documents partition key value, or "unknown" when unresolvable
	PartitionKey string `json:"partition_key"`
	// Message describes the failure
	Message string `json:"message"`
	// Status is the remote status code, when the store reported one
	Status int `json:"status,omitempty"`
	// StoreCode is the store-specific error code, when the store reported one
	StoreCode string `json:"store_code,omitempty"`
	// Retriable reports whether the failure was classified retriable
	Retriable bool `json:"retriable"`
	// Attempts is the attempt count at which the document was abandoned
	Attempts int `json:"attempts"`
}

// Performance summarizes the cost of a bulk operation
type Performance struct {
	// RequestCharge is the total cost the store reported across all requests
	RequestCharge float64 `json:"request_charge"`
	// Duration is the wall clock duration of the operation
	Duration time.Duration `json:"duration"`
	// DocumentsPerSecond is the processing throughput
	DocumentsPerSecond float64 `json:"documents_per_second"`
	// ChargePerDocument is the average cost per processed document
	ChargePerDocument float64 `json:"charge_per_document"`
}

// Progress is a snapshot reported once per completed batch. Every field is
// recomputed from the running counters at snapshot time.
type Progress struct {
	// BatchesCompleted is monotonically non-decreasing across callbacks
	BatchesCompleted int `json:"batches_completed"`
	// TotalBatches is the number of batches in the operation
	TotalBatches int `json:"total_batches"`
	// Processed counts documents handled so far (succeeded, failed or skipped)
	Processed int64 `json:"processed"`
	// Total is the size of the target set
	Total int64 `json:"total"`
	// Percent is Processed over Total
	Percent float64 `json:"percent"`
	// RequestCharge is the cost accumulated so far
	RequestCharge float64 `json:"request_charge"`
	// Elapsed is the wall clock time since the operation started
	Elapsed time.Duration `json:"elapsed"`
	// DocumentsPerSecond is the running throughput
	DocumentsPerSecond float64 `json:"documents_per_second"`
	// ChargePerDocument is the running average cost per document
	ChargePerDocument float64 `json:"charge_per_document"`
}

// BulkResult is the aggregate outcome of a bulk operation. It is returned even
// when the operation aborts early so partial outcomes stay inspectable.
type BulkResult struct {
	// OperationID identifies this run in logs and callbacks
	OperationID string `json:"operation_id"`
	// Success is true iff no document failed
	Success bool `json:"success"`
	// Updated counts documents replaced by a bulk update
	Updated int64 `json:"updated,omitempty"`
	// Deleted counts documents removed by a bulk delete
	Deleted int64 `json:"deleted,omitempty"`
	// Failed counts documents abandoned after retries
	Failed int64 `json:"failed"`
	// Skipped counts documents the update function elected to leave untouched
	Skipped int64 `json:"skipped"`
	// Errors itemizes every per-document failure
	Errors []BulkError `json:"errors,omitempty"`
	// Performance is the final cost summary
	Performance Performance `json:"performance"`
}

// BulkUpdateOptions configures a bulk update. Exactly one of Patch and
// UpdateFn must be set, and either PartitionKey or CrossPartition is required
// before any query is issued.
type BulkUpdateOptions struct {
	// Filter selects the target documents
	Filter Filter `json:"filter,omitempty"`
	// Patch is a static patch merged onto every target document
	Patch map[string]any `json:"patch,omitempty"`
	// UpdateFn computes a patch per document; returning a nil patch skips the document
	UpdateFn func(doc *Document) (map[string]any, error) `json:"-"`
	// PartitionKey scopes target selection to a single partition
	PartitionKey any `json:"partition_key,omitempty"`
	// CrossPartition opts into selecting targets across partitions
	CrossPartition bool `json:"cross_partition,omitempty"`
	// BatchSize overrides the containers default batch size
	BatchSize int `json:"batch_size,omitempty"`
	// MaxConcurrency overrides the containers default batch concurrency
	MaxConcurrency int `json:"max_concurrency,omitempty"`
	// MaxAttempts overrides the containers default per-document retry bound
	MaxAttempts int `json:"max_attempts,omitempty"`
	// ContinueOnError keeps dispatching batches after a per-document failure
	ContinueOnError bool `json:"continue_on_error,omitempty"`
	// OnProgress fires once per completed batch with running totals
	OnProgress func(Progress) `json:"-"`
	// OnError fires once per abandoned document
	OnError func(BulkError) `json:"-"`
}

// BulkDeleteOptions configures a bulk delete. Confirm is mandatory and checked
// before anything else.
type BulkDeleteOptions struct {
	// Confirm must be set to true; bulk deletes are destructive
	Confirm bool `json:"confirm"`
	// Filter selects the target documents
	Filter Filter `json:"filter,omitempty"`
	// PartitionKey scopes target selection to a single partition
	PartitionKey any `json:"partition_key,omitempty"`
	// CrossPartition opts into selecting targets across partitions
	CrossPartition bool `json:"cross_partition,omitempty"`
	// BatchSize overrides the containers default batch size
	BatchSize int `json:"batch_size,omitempty"`
	// MaxConcurrency overrides the containers default batch concurrency
	MaxConcurrency int `json:"max_concurrency,omitempty"`
	// MaxAttempts overrides the containers default per-document retry bound
	MaxAttempts int `json:"max_attempts,omitempty"`
	// ContinueOnError keeps dispatching batches after a per-document failure
	ContinueOnError bool `json:"continue_on_error,omitempty"`
	// OnProgress fires once per completed batch with running totals
	OnProgress func(Progress) `json:"-"`
	// OnError fires once per abandoned document
	OnError func(BulkError) `json:"-"`
}

type bulkOp string

const (
	bulkOpUpdate bulkOp = "update"
	bulkOpDelete bulkOp = "delete"
)

// perDocFn performs the operation for a single document and reports the cost
// the store charged for it. A true skipped return leaves the document
// untouched without counting it as a success or failure.
type perDocFn func(ctx context.Context, doc *Document) (charge float64, skipped bool, err error)

// bulkState is the single aggregation point for counters, error records and
// progress. Everything is written and snapshotted under one mutex so
// concurrent batch completions never lose updates, and progress callbacks are
// serialized in increasing batches-completed order.
type bulkState struct {
	mu               sync.Mutex
	total            int64
	totalBatches     int
	start            time.Time
	succeeded        int64
	failed           int64
	skipped          int64
	charge           float64
	batchesCompleted int
	errs             []BulkError
	stopped          bool
	firstErr         error
}

func (s *bulkState) halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *bulkState) recordSuccess(charge float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded++
	s.charge += charge
}

func (s *bulkState) recordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

func (s *bulkState) recordFailure(record BulkError, err error, continueOnError bool, onError func(BulkError)) {
	s.mu.Lock()
	s.failed++
	s.errs = append(s.errs, record)
	if !continueOnError && s.firstErr == nil {
		s.stopped = true
		s.firstErr = err
	}
	s.mu.Unlock()
	if onError != nil {
		onError(record)
	}
}

// completeBatch fires the progress callback under the mutex, which makes the
// monotonic batches-completed guarantee structural.
func (s *bulkState) completeBatch(onProgress func(Progress)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchesCompleted++
	if onProgress != nil {
		onProgress(s.snapshot())
	}
}

func (s *bulkState) snapshot() Progress {
	processed := s.succeeded + s.failed + s.skipped
	elapsed := time.Since(s.start)
	p := Progress{
		BatchesCompleted: s.batchesCompleted,
		TotalBatches:     s.totalBatches,
		Processed:        processed,
		Total:            s.total,
		RequestCharge:    s.charge,
		Elapsed:          elapsed,
	}
	if s.total > 0 {
		p.Percent = float64(processed) / float64(s.total) * 100
	}
	if elapsed > 0 {
		p.DocumentsPerSecond = float64(processed) / elapsed.Seconds()
	}
	if processed > 0 {
		p.ChargePerDocument = s.charge / float64(processed)
	}
	return p
}

// BulkUpdate selects the documents matching the filter and replaces each with
// the patched document under bounded batch concurrency and per-document retry.
// The returned result is non-nil even when the operation aborts early.
func (c *Container) BulkUpdate(ctx context.Context, opts BulkUpdateOptions) (*BulkResult, error) {
	if opts.PartitionKey == nil && !opts.CrossPartition {
		return nil, errors.New(errors.Validation, "partition key required: set PartitionKey or opt into CrossPartition to update across partitions")
	}
	if opts.Patch == nil && opts.UpdateFn == nil {
		return nil, errors.New(errors.Validation, "bulk update requires a Patch or an UpdateFn")
	}
	if opts.Patch != nil && opts.UpdateFn != nil {
		return nil, errors.New(errors.Validation, "bulk update accepts either a Patch or an UpdateFn, not both")
	}
	targets, err := c.Find(ctx, FindOptions{
		Filter:         opts.Filter,
		PartitionKey:   opts.PartitionKey,
		CrossPartition: opts.CrossPartition,
	})
	if err != nil {
		return nil, err
	}
	attempts := c.attempts(opts.MaxAttempts)
	perDoc := func(ctx context.Context, doc *Document) (float64, bool, error) {
		patch := opts.Patch
		if opts.UpdateFn != nil {
			computed, err := opts.UpdateFn(doc)
			if err != nil {
				return 0, false, errors.Wrap(err, errors.Validation, "update function failed for document '%s'", doc.ID())
			}
			if computed == nil {
				return 0, true, nil
			}
			patch = computed
		}
		if err := doc.MergePatch(patch); err != nil {
			return 0, false, err
		}
		pk := c.resolvePartitionKey(doc)
		var charge float64
		err := RetryPolicy{MaxAttempts: attempts}.Do(ctx, func(ctx context.Context) error {
			resp, err := c.transport.Request(ctx, http.MethodPut, c.documentPath(doc.ID()), doc.Value(), pk, false)
			if err != nil {
				return err
			}
			charge = resp.RequestCharge
			return nil
		})
		return charge, false, err
	}
	return c.runBulk(ctx, bulkOpUpdate, targets, bulkRunOptions{
		batchSize:       c.batchSize(opts.BatchSize),
		concurrency:     c.concurrency(opts.MaxConcurrency),
		continueOnError: opts.ContinueOnError,
		onProgress:      opts.OnProgress,
		onError:         opts.OnError,
	}, perDoc)
}

// BulkDelete selects the documents matching the filter and deletes each under
// bounded batch concurrency and per-document retry. It refuses to run without
// explicit confirmation.
func (c *Container) BulkDelete(ctx context.Context, opts BulkDeleteOptions) (*BulkResult, error) {
	if !opts.Confirm {
		return nil, errors.New(errors.Validation, "bulk delete requires explicit confirmation: set Confirm to true")
	}
	if opts.PartitionKey == nil && !opts.CrossPartition {
		return nil, errors.New(errors.Validation, "partition key required: set PartitionKey or opt into CrossPartition to delete across partitions")
	}
	targets, err := c.Find(ctx, FindOptions{
		Filter:         opts.Filter,
		PartitionKey:   opts.PartitionKey,
		CrossPartition: opts.CrossPartition,
	})
	if err != nil {
		return nil, err
	}
	attempts := c.attempts(opts.MaxAttempts)
	perDoc := func(ctx context.Context, doc *Document) (float64, bool, error) {
		pk := c.resolvePartitionKey(doc)
		var charge float64
		err := RetryPolicy{MaxAttempts: attempts}.Do(ctx, func(ctx context.Context) error {
			resp, err := c.transport.Request(ctx, http.MethodDelete, c.documentPath(doc.ID()), nil, pk, false)
			if err != nil {
				return err
			}
			charge = resp.RequestCharge
			return nil
		})
		return charge, false, err
	}
	return c.runBulk(ctx, bulkOpDelete, targets, bulkRunOptions{
		batchSize:       c.batchSize(opts.BatchSize),
		concurrency:     c.concurrency(opts.MaxConcurrency),
		continueOnError: opts.ContinueOnError,
		onProgress:      opts.OnProgress,
		onError:         opts.OnError,
	}, perDoc)
}

type bulkRunOptions struct {
	batchSize       int
	concurrency     int
	continueOnError bool
	onProgress      func(Progress)
	onError         func(BulkError)
}

// runBulk is the shared batch/execute/finalize stage of both orchestrators.
// Batches fan out per-document work and join before completing; a single
// documents failure never aborts its siblings. With continueOnError off the
// first failure stops new batches while in-flight ones drain, and the failure
// is returned alongside the partial result.
func (c *Container) runBulk(ctx context.Context, op bulkOp, targets []map[string]any, run bulkRunOptions, perDoc perDocFn) (*BulkResult, error) {
	res := &BulkResult{OperationID: ksuid.New().String()}
	batches := Chunk(targets, run.batchSize)
	state := &bulkState{
		total:        int64(len(targets)),
		totalBatches: len(batches),
		start:        time.Now(),
	}
	c.logger.Info(ctx, "bulk operation started", logTags(ctx, map[string]any{
		"operation_id": res.OperationID,
		"op":           string(op),
		"targets":      len(targets),
		"batches":      len(batches),
		"concurrency":  run.concurrency,
	}))
	if err := RunBatches(ctx, batches, run.concurrency, state.halted, func(ctx context.Context, index int, batch []map[string]any) error {
		// a batch queued while the operation was stopping never starts
		if state.halted() {
			return nil
		}
		egp, ctx := errgroup.WithContext(ctx)
		for _, raw := range batch {
			raw := raw
			egp.Go(func() error {
				doc, err := NewDocumentFrom(raw)
				if err != nil {
					state.recordFailure(c.bulkError(NewDocument(), err), err, run.continueOnError, run.onError)
					return nil
				}
				charge, skipped, err := perDoc(ctx, doc)
				switch {
				case err != nil:
					record := c.bulkError(doc, err)
					c.logger.Warn(ctx, "bulk document failed", logTags(ctx, map[string]any{
						"operation_id": res.OperationID,
						"document_id":  record.DocumentID,
						"status":       record.Status,
						"attempts":     record.Attempts,
					}))
					state.recordFailure(record, err, run.continueOnError, run.onError)
				case skipped:
					state.recordSkip()
				default:
					state.recordSuccess(charge)
				}
				return nil
			})
		}
		// per-document funcs always return nil so siblings run to completion
		_ = egp.Wait()
		state.completeBatch(run.onProgress)
		return nil
	}); err != nil {
		return res, err
	}

	state.mu.Lock()
	res.Failed = state.failed
	res.Skipped = state.skipped
	res.Errors = state.errs
	res.Success = state.failed == 0
	switch op {
	case bulkOpUpdate:
		res.Updated = state.succeeded
	case bulkOpDelete:
		res.Deleted = state.succeeded
	}
	processed := state.succeeded + state.failed + state.skipped
	duration := time.Since(state.start)
	res.Performance = Performance{
		RequestCharge: state.charge,
		Duration:      duration,
	}
	if duration > 0 {
		res.Performance.DocumentsPerSecond = float64(processed) / duration.Seconds()
	}
	if processed > 0 {
		res.Performance.ChargePerDocument = state.charge / float64(processed)
	}
	firstErr := state.firstErr
	state.mu.Unlock()

	c.logger.Info(ctx, "bulk operation finished", logTags(ctx, map[string]any{
		"operation_id":   res.OperationID,
		"op":             string(op),
		"success":        res.Success,
		"failed":         res.Failed,
		"skipped":        res.Skipped,
		"request_charge": res.Performance.RequestCharge,
		"duration":       res.Performance.Duration.String(),
	}))
	if firstErr != nil {
		return res, firstErr
	}
	return res, nil
}

// resolvePartitionKey reads the documents partition key value from its own
// field per the containers partition key path
func (c *Container) resolvePartitionKey(doc *Document) any {
	field := c.partitionKeyField()
	if field == "" {
		return nil
	}
	return doc.Get(field)
}

func (c *Container) partitionKeyField() string {
	return strings.ReplaceAll(strings.TrimPrefix(c.config.PartitionKeyPath, "/"), "/", ".")
}

func (c *Container) bulkError(doc *Document, err error) BulkError {
	e := errors.Extract(err)
	pk := "unknown"
	if v := c.resolvePartitionKey(doc); v != nil {
		pk = cast.ToString(v)
	}
	msg := strings.Join(e.Messages, "; ")
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return BulkError{
		DocumentID:   doc.ID(),
		PartitionKey: pk,
		Message:      msg,
		Status:       int(e.Code),
		StoreCode:    e.StoreCode,
		Retriable:    errors.IsRetriable(err),
		Attempts:     e.Attempt,
	}
}

func (c *Container) batchSize(override int) int {
	if override > 0 {
		return override
	}
	return c.config.BatchSize
}

func (c *Container) concurrency(override int) int {
	if override > 0 {
		return override
	}
	return c.config.MaxConcurrency
}

func (c *Container) attempts(override int) int {
	if override > 0 {
		return override
	}
	return c.config.MaxAttempts
}
