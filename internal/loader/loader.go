// Package loader implements bounded-batch bulk loading: it drains rows from a
// RowSource, encodes each one into a Fragment, accumulates fragments in a
// Batch under a byte or row Budget, and hands every full batch to a Sink.
//
// The budget check runs before a fragment is appended, so an overflowing row
// starts the next batch instead of being squeezed into the current one. Rows
// that cannot be encoded are rejected with one log line each; nothing is
// dropped silently.
//
// Logging: each flush emits a progress line with the batch size and running
// totals, in the same shape as the rest of the pipeline's logs.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"co2load/internal/metrics"
)

// Sink executes one batch against the datastore. A batch is one atomic unit
// from the loader's point of view; what a failure leaves behind is up to the
// datastore.
type Sink interface {
	Flush(ctx context.Context, b *Batch) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, b *Batch) error

// Flush implements Sink.
func (f SinkFunc) Flush(ctx context.Context, b *Batch) error { return f(ctx, b) }

// ErrOversize rejects a single fragment larger than the whole byte budget.
var ErrOversize = errors.New("fragment exceeds batch budget")

// Stats summarizes a run. Processed+Rejected equals the number of rows read.
type Stats struct {
	Processed int64
	Rejected  int64
	Batches   int64
	Bytes     int64
}

type options struct {
	logger    *log.Logger
	job       string
	dedupCols []string
}

// Option customizes Load.
type Option func(*options)

// WithLogger sends diagnostics to l instead of the standard logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithJob sets the job label used for metrics.
func WithJob(job string) Option {
	return func(o *options) {
		if job != "" {
			o.job = job
		}
	}
}

// WithDedup rejects rows whose values in cols repeat an earlier row's.
func WithDedup(cols ...string) Option {
	return func(o *options) { o.dedupCols = append(o.dedupCols, cols...) }
}

// liner is implemented by sources that know the physical line of the last
// row they returned.
type liner interface {
	Line() int
}

// Load runs one import. It is single-threaded: rows are read in source order,
// batches are flushed in fill order, and every flush blocks until the sink
// returns. ctx is only handed to the sink.
//
// A sink error is not retried; Load returns at once with the stats so far and
// the wrapped error. Rows in the failed batch are unconfirmed.
func Load(
	ctx context.Context,
	src RowSource,
	enc Encoder,
	budget Budget,
	sink Sink,
	opts ...Option,
) (Stats, error) {
	if src == nil || enc == nil || sink == nil {
		return Stats{}, fmt.Errorf("loader: source, encoder and sink must not be nil")
	}
	if err := budget.Validate(); err != nil {
		return Stats{}, fmt.Errorf("loader: %w", err)
	}
	o := options{logger: log.Default(), job: "co2load"}
	for _, opt := range opts {
		opt(&o)
	}

	var dd *dedup
	if len(o.dedupCols) > 0 {
		var err error
		if dd, err = newDedup(enc.Schema(), o.dedupCols); err != nil {
			return Stats{}, fmt.Errorf("loader: %w", err)
		}
	}

	var (
		st        Stats
		batch     Batch
		read      int
		start     = time.Now()
		lastFlush = start
	)
	lineOf := func() int {
		if l, ok := src.(liner); ok {
			return l.Line()
		}
		return read
	}

	reject := func(line int, err error) {
		st.Rejected++
		metrics.RecordRow(o.job, "rejected", 1)
		o.logger.Printf("row %d: rejected: %v", line, err)
	}

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		t0 := time.Now()
		err := sink.Flush(ctx, &batch)
		metrics.RecordStep(o.job, "flush", err, time.Since(t0))
		if err != nil {
			o.logger.Printf("loader: flush failed batch=%d rows=%d size=%d err=%v",
				st.Batches+1, batch.Len(), batch.Size, err)
			return fmt.Errorf("flush batch #%d (%d rows): %w", st.Batches+1, batch.Len(), err)
		}

		st.Batches++
		st.Bytes += int64(batch.Size)
		metrics.RecordBatches(o.job, 1)
		metrics.RecordRow(o.job, "inserted", int64(batch.Len()))

		now := time.Now()
		o.logger.Printf(
			"batch #%d: rows=%d size=%.1fkB total_rows=%d elapsed=%s since_last=%s",
			st.Batches,
			batch.Len(),
			float64(batch.Size)/1024,
			st.Processed,
			now.Sub(start).Truncate(time.Millisecond),
			now.Sub(lastFlush).Truncate(time.Millisecond),
		)
		lastFlush = now
		batch.reset()
		return nil
	}

	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		read++
		if err != nil {
			var re *RowError
			if errors.As(err, &re) {
				reject(re.Line, re.Err)
				continue
			}
			return st, fmt.Errorf("read row %d: %w", read, err)
		}
		line := lineOf()

		frag, err := enc.Encode(row)
		if err != nil {
			reject(line, err)
			continue
		}
		frag.Line = line
		if budget.MaxBytes > 0 && frag.Size > budget.MaxBytes {
			reject(line, fmt.Errorf("%w: %d > %d bytes", ErrOversize, frag.Size, budget.MaxBytes))
			continue
		}
		if dd != nil && dd.duplicate(row) {
			reject(line, ErrDuplicate)
			continue
		}

		if !batch.fits(frag, budget) {
			if err := flush(); err != nil {
				return st, err
			}
		}
		batch.add(frag)
		st.Processed++
		metrics.RecordRow(o.job, "processed", 1)
	}

	if err := flush(); err != nil {
		return st, err
	}
	o.logger.Printf("loader: input exhausted processed=%d rejected=%d batches=%d",
		st.Processed, st.Rejected, st.Batches)
	return st, nil
}
