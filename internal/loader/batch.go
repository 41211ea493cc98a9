package loader

import "fmt"

// Budget caps a batch by serialized bytes, by row count, or both. A zero field
// disables that limit. Backends normally set exactly one.
type Budget struct {
	MaxBytes int
	MaxRows  int
}

// Bytes returns a byte-size budget.
func Bytes(n int) Budget { return Budget{MaxBytes: n} }

// Rows returns a row-count budget.
func Rows(n int) Budget { return Budget{MaxRows: n} }

// Validate rejects negative limits and a budget with no limit at all.
func (b Budget) Validate() error {
	if b.MaxBytes < 0 || b.MaxRows < 0 {
		return fmt.Errorf("budget: limits must be >= 0 (bytes=%d rows=%d)", b.MaxBytes, b.MaxRows)
	}
	if b.MaxBytes == 0 && b.MaxRows == 0 {
		return fmt.Errorf("budget: at least one of MaxBytes or MaxRows must be set")
	}
	return nil
}

func (b Budget) String() string {
	switch {
	case b.MaxBytes > 0 && b.MaxRows > 0:
		return fmt.Sprintf("%d bytes / %d rows", b.MaxBytes, b.MaxRows)
	case b.MaxBytes > 0:
		return fmt.Sprintf("%d bytes", b.MaxBytes)
	default:
		return fmt.Sprintf("%d rows", b.MaxRows)
	}
}

// Fragment is one serialized row. Stmt holds a self-contained statement for
// literal-based sinks; Args holds ordered bind values for parameterized
// sinks. Size is the byte size counted against the budget.
type Fragment struct {
	Line int
	Stmt string
	Args []any
	Size int
}

// Batch accumulates fragments between flushes. Sinks must not retain it
// after Flush returns; the loader reuses its backing array.
type Batch struct {
	Fragments []Fragment
	Size      int
}

// Len is the number of fragments held.
func (b *Batch) Len() int { return len(b.Fragments) }

// fits reports whether f can be appended without going over budget.
func (b *Batch) fits(f Fragment, budget Budget) bool {
	if budget.MaxRows > 0 && len(b.Fragments)+1 > budget.MaxRows {
		return false
	}
	if budget.MaxBytes > 0 && b.Size+f.Size > budget.MaxBytes {
		return false
	}
	return true
}

func (b *Batch) add(f Fragment) {
	b.Fragments = append(b.Fragments, f)
	b.Size += f.Size
}

func (b *Batch) reset() {
	clear(b.Fragments)
	b.Fragments = b.Fragments[:0]
	b.Size = 0
}
