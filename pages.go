package docql

import (
	"context"

	"github.com/stratumdb/docql/errors"
)

// PageHandler handles one page of documents and reports whether to continue
type PageHandler func(docs []map[string]any) bool

// FindPages pages through the documents matching the options until the
// handler returns false or there are no more results. The options page size
// (Take) defaults to the containers batch size; Skip sets the starting offset.
func (c *Container) FindPages(ctx context.Context, opts FindOptions, handlePage PageHandler) error {
	size := c.config.BatchSize
	if opts.Take != nil {
		if *opts.Take <= 0 {
			return errors.New(errors.Validation, "page size must be positive: %d", *opts.Take)
		}
		size = *opts.Take
	}
	offset := 0
	if opts.Skip != nil {
		offset = *opts.Skip
	}
	for {
		page := opts
		take, skip := size, offset
		page.Take = &take
		page.Skip = &skip
		docs, err := c.Find(ctx, page)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}
		if !handlePage(docs) {
			return nil
		}
		if len(docs) < size {
			return nil
		}
		offset += size
	}
}
