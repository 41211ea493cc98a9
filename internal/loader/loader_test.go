package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"co2load/internal/schema"
)

/*
Test helpers
*/

// sinkSpy records every flushed batch as a copy of its fragments.
type sinkSpy struct {
	batches   [][]Fragment
	sizes     []int
	failAfter int // if >0, the call number that returns err
	err       error
}

func (s *sinkSpy) Flush(_ context.Context, b *Batch) error {
	frags := make([]Fragment, len(b.Fragments))
	copy(frags, b.Fragments)
	s.batches = append(s.batches, frags)
	s.sizes = append(s.sizes, b.Size)
	if s.failAfter > 0 && len(s.batches) >= s.failAfter {
		if s.err == nil {
			s.err = errors.New("forced error")
		}
		return s.err
	}
	return nil
}

func (s *sinkSpy) rowCounts() []int {
	out := make([]int, len(s.batches))
	for i, b := range s.batches {
		out[i] = len(b)
	}
	return out
}

func quietLogger(buf *bytes.Buffer) Option {
	return WithLogger(log.New(buf, "", 0))
}

func intTextText(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.Positional(
		[]string{"id", "a", "b"},
		[]schema.Type{schema.Int, schema.Text, schema.Text},
	)
	if err != nil {
		t.Fatalf("Positional: %v", err)
	}
	return s
}

func numberedRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{fmt.Sprint(i + 1), "x", "y"}
	}
	return rows
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

/*
Unit tests
*/

// TestLoad_MixedRows is the canonical example: one malformed row among two
// valid ones, budget of two rows, a single final flush.
func TestLoad_MixedRows(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	spy := &sinkSpy{}
	src := NewSliceSource(
		Row{"1", "a", "b"},
		Row{"2", "c"},
		Row{"3", "d", "e"},
	)
	enc := NewStatementEncoder("t", intTextText(t), nil)

	st, err := Load(context.Background(), src, enc, Rows(2), spy, quietLogger(&logs))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Processed != 2 || st.Rejected != 1 {
		t.Fatalf("stats = %+v, want processed=2 rejected=1", st)
	}
	if len(spy.batches) != 1 {
		t.Fatalf("flushes = %d, want 1", len(spy.batches))
	}
	got := spy.batches[0]
	want := []string{
		`INSERT INTO t ("id", "a", "b") VALUES (1, 'a', 'b')`,
		`INSERT INTO t ("id", "a", "b") VALUES (3, 'd', 'e')`,
	}
	for i, w := range want {
		if got[i].Stmt != w {
			t.Fatalf("fragment %d = %q, want %q", i, got[i].Stmt, w)
		}
	}
	if !strings.Contains(logs.String(), "row 2: rejected") {
		t.Fatalf("missing rejection diagnostic; logs:\n%s", logs.String())
	}
}

// TestLoad_RowBudget checks ceil(M/N) flushes and batch sizes.
func TestLoad_RowBudget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rows      int
		budget    int
		wantSizes []int
	}{
		{name: "empty", rows: 0, budget: 10, wantSizes: []int{}},
		{name: "single", rows: 1, budget: 10, wantSizes: []int{1}},
		{name: "exact_multiple", rows: 300, budget: 100, wantSizes: []int{100, 100, 100}},
		{name: "partial_final", rows: 250, budget: 128, wantSizes: []int{128, 122}},
		{name: "budget_of_one", rows: 3, budget: 1, wantSizes: []int{1, 1, 1}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var logs bytes.Buffer
			spy := &sinkSpy{}
			enc := NewValueEncoder(intTextText(t))
			st, err := Load(context.Background(), NewSliceSource(numberedRows(tt.rows)...), enc, Rows(tt.budget), spy, quietLogger(&logs))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := spy.rowCounts(); !equalInts(got, tt.wantSizes) {
				t.Fatalf("batch sizes = %v, want %v", got, tt.wantSizes)
			}
			wantFlushes := (tt.rows + tt.budget - 1) / tt.budget
			if int(st.Batches) != wantFlushes {
				t.Fatalf("batches = %d, want ceil(%d/%d)=%d", st.Batches, tt.rows, tt.budget, wantFlushes)
			}
			if st.Processed+st.Rejected != int64(tt.rows) {
				t.Fatalf("processed+rejected = %d, want %d", st.Processed+st.Rejected, tt.rows)
			}
		})
	}
}

// TestLoad_ByteBudget verifies that no flushed batch exceeds MaxBytes and that
// the overflowing fragment starts the next batch.
func TestLoad_ByteBudget(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	spy := &sinkSpy{}
	enc := NewStatementEncoder("t", intTextText(t), nil)

	one, err := enc.Encode(Row{"1", "x", "y"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Room for two fragments of this size, not three.
	budget := Bytes(2*one.Size + one.Size/2)

	st, err := Load(context.Background(), NewSliceSource(numberedRows(7)...), enc, budget, spy, quietLogger(&logs))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Processed != 7 {
		t.Fatalf("processed = %d, want 7", st.Processed)
	}
	for i, size := range spy.sizes {
		if size > budget.MaxBytes {
			t.Fatalf("batch %d size %d exceeds budget %d", i, size, budget.MaxBytes)
		}
		if len(spy.batches[i]) == 0 {
			t.Fatalf("batch %d is empty", i)
		}
		sum := 0
		for _, f := range spy.batches[i] {
			sum += f.Size
		}
		if sum != size {
			t.Fatalf("batch %d Size=%d, fragments sum to %d", i, size, sum)
		}
	}
	if got := spy.rowCounts(); !equalInts(got, []int{2, 2, 2, 1}) {
		t.Fatalf("batch sizes = %v, want [2 2 2 1]", got)
	}
	if st.Bytes != int64(7*one.Size) {
		t.Fatalf("bytes = %d, want %d", st.Bytes, 7*one.Size)
	}
}

// TestLoad_OversizeFragmentRejected covers a single row larger than the whole
// byte budget: it is rejected, never flushed alone.
func TestLoad_OversizeFragmentRejected(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	spy := &sinkSpy{}
	enc := NewStatementEncoder("t", intTextText(t), nil)
	small, _ := enc.Encode(Row{"1", "x", "y"})

	src := NewSliceSource(
		Row{"1", "x", "y"},
		Row{"2", strings.Repeat("z", 500), "y"},
		Row{"3", "x", "y"},
	)
	st, err := Load(context.Background(), src, enc, Bytes(small.Size*3), spy, quietLogger(&logs))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Processed != 2 || st.Rejected != 1 {
		t.Fatalf("stats = %+v, want processed=2 rejected=1", st)
	}
	if !strings.Contains(logs.String(), ErrOversize.Error()) {
		t.Fatalf("missing oversize diagnostic; logs:\n%s", logs.String())
	}
}

// TestLoad_HeaderOnlyInputNeverFlushes covers the empty-input property.
func TestLoad_HeaderOnlyInputNeverFlushes(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	spy := &sinkSpy{}
	st, err := Load(context.Background(), NewSliceSource(), NewValueEncoder(intTextText(t)), Rows(5), spy, quietLogger(&logs))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(spy.batches) != 0 || st != (Stats{}) {
		t.Fatalf("flushes=%d stats=%+v, want none", len(spy.batches), st)
	}
}

// TestLoad_SinkErrorStopsRun verifies no retry and immediate propagation.
func TestLoad_SinkErrorStopsRun(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	sentinel := errors.New("write timeout")
	spy := &sinkSpy{failAfter: 2, err: sentinel}

	st, err := Load(context.Background(), NewSliceSource(numberedRows(10)...), NewValueEncoder(intTextText(t)), Rows(3), spy, quietLogger(&logs))
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapping %v", err, sentinel)
	}
	if len(spy.batches) != 2 {
		t.Fatalf("flush calls = %d, want 2 (no retry, no further flushes)", len(spy.batches))
	}
	if st.Batches != 1 {
		t.Fatalf("confirmed batches = %d, want 1", st.Batches)
	}
	// Row 7 was read and triggered the failing flush; rows 8..10 were never read.
	if st.Processed != 6 {
		t.Fatalf("processed = %d, want 6", st.Processed)
	}
}

// TestLoad_NullMarkers checks that empty cells become NULL, not 0 or ''.
func TestLoad_NullMarkers(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	spy := &sinkSpy{}
	enc := NewStatementEncoder("t", intTextText(t), nil)
	if _, err := Load(context.Background(), NewSliceSource(Row{"", "", "it's"}), enc, Rows(1), spy, quietLogger(&logs)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := `INSERT INTO t ("id", "a", "b") VALUES (NULL, NULL, 'it''s')`
	if got := spy.batches[0][0].Stmt; got != want {
		t.Fatalf("stmt = %q, want %q", got, want)
	}
}

// TestLoad_InvalidCellRejected verifies typed cells that fail to parse are
// rejected with a diagnostic instead of reaching the sink.
func TestLoad_InvalidCellRejected(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	spy := &sinkSpy{}
	src := NewSliceSource(Row{"abc", "x", "y"}, Row{"2", "x", "y"})
	st, err := Load(context.Background(), src, NewValueEncoder(intTextText(t)), Rows(10), spy, quietLogger(&logs))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Processed != 1 || st.Rejected != 1 {
		t.Fatalf("stats = %+v, want processed=1 rejected=1", st)
	}
	if !strings.Contains(logs.String(), `invalid INT "abc"`) {
		t.Fatalf("missing diagnostic; logs:\n%s", logs.String())
	}
}

// TestLoad_RequiredFieldRejected verifies an empty key cell is rejected
// locally with both encoders, so the rest of the batch still lands.
func TestLoad_RequiredFieldRejected(t *testing.T) {
	t.Parallel()

	s := intTextText(t)
	s.Fields[0].Required = true

	encoders := map[string]Encoder{
		"statement": NewStatementEncoder("t", s, nil),
		"value":     NewValueEncoder(s),
	}
	for name, enc := range encoders {
		enc := enc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var logs bytes.Buffer
			spy := &sinkSpy{}
			src := NewSliceSource(Row{"1", "a", "b"}, Row{"", "c", "d"}, Row{"3", "", ""})
			st, err := Load(context.Background(), src, enc, Rows(10), spy, quietLogger(&logs))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if st.Processed != 2 || st.Rejected != 1 || st.Batches != 1 {
				t.Fatalf("stats = %+v", st)
			}
			if len(spy.batches[0]) != 2 {
				t.Fatalf("flushed %d fragments, want 2", len(spy.batches[0]))
			}
			if !strings.Contains(logs.String(), `row 2: rejected: field "id": required value is empty`) {
				t.Fatalf("missing diagnostic; logs:\n%s", logs.String())
			}
		})
	}
}

// TestLoad_Dedup rejects repeated keys and keeps the first occurrence.
func TestLoad_Dedup(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	spy := &sinkSpy{}
	src := NewSliceSource(
		Row{"1", "x", "first"},
		Row{"1", "x", "second"},
		Row{"1", "y", "third"},
	)
	st, err := Load(context.Background(), src, NewValueEncoder(intTextText(t)), Rows(10), spy,
		quietLogger(&logs), WithDedup("id", "a"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Processed != 2 || st.Rejected != 1 {
		t.Fatalf("stats = %+v, want processed=2 rejected=1", st)
	}
	if got := spy.batches[0][0].Args[2]; got != "first" {
		t.Fatalf("kept %v, want first occurrence", got)
	}
}

func TestLoad_DedupUnknownColumn(t *testing.T) {
	t.Parallel()

	_, err := Load(context.Background(), NewSliceSource(), NewValueEncoder(intTextText(t)), Rows(1), &sinkSpy{}, WithDedup("nope"))
	if err == nil {
		t.Fatalf("expected error for unknown dedup column")
	}
}

// rowErrSource yields a recoverable RowError between two good rows, then a
// fatal I/O error.
type rowErrSource struct{ i int }

func (s *rowErrSource) Next() (Row, error) {
	s.i++
	switch s.i {
	case 1, 3:
		return Row{fmt.Sprint(s.i), "x", "y"}, nil
	case 2:
		return nil, &RowError{Line: 3, Err: errors.New("bare quote")}
	case 4:
		return nil, io.ErrUnexpectedEOF
	}
	return nil, io.EOF
}

func TestLoad_SourceErrors(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	spy := &sinkSpy{}
	st, err := Load(context.Background(), &rowErrSource{}, NewValueEncoder(intTextText(t)), Rows(10), spy, quietLogger(&logs))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
	if st.Processed != 2 || st.Rejected != 1 {
		t.Fatalf("stats = %+v, want processed=2 rejected=1", st)
	}
	if len(spy.batches) != 0 {
		t.Fatalf("fatal read error must not flush the partial batch")
	}
	if !strings.Contains(logs.String(), "row 3: rejected: bare quote") {
		t.Fatalf("missing row error diagnostic; logs:\n%s", logs.String())
	}
}

func TestLoad_ArgValidation(t *testing.T) {
	t.Parallel()

	enc := NewValueEncoder(intTextText(t))
	if _, err := Load(context.Background(), NewSliceSource(), enc, Budget{}, &sinkSpy{}); err == nil {
		t.Fatalf("expected error for empty budget")
	}
	if _, err := Load(context.Background(), NewSliceSource(), enc, Rows(-1), &sinkSpy{}); err == nil {
		t.Fatalf("expected error for negative budget")
	}
	if _, err := Load(context.Background(), NewSliceSource(), enc, Rows(1), nil); err == nil {
		t.Fatalf("expected error for nil sink")
	}
}

func TestLoad_SinkFunc(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	var calls int
	sink := SinkFunc(func(_ context.Context, b *Batch) error {
		calls++
		if b.Len() == 0 {
			t.Errorf("empty batch flushed")
		}
		return nil
	})
	if _, err := Load(context.Background(), NewSliceSource(numberedRows(5)...), NewValueEncoder(intTextText(t)), Rows(2), sink, quietLogger(&logs)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}
