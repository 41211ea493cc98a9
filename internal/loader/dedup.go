package loader

import (
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"

	"co2load/internal/schema"
)

// ErrDuplicate is the rejection reason for rows whose key was already loaded
// earlier in the same run.
var ErrDuplicate = errors.New("duplicate key")

// dedup remembers the xxh3 hash of every accepted key. Hash collisions would
// reject a distinct row; at 64 bits that is negligible for a few million rows.
type dedup struct {
	pos  []int
	seen map[uint64]struct{}
	h    *xxh3.Hasher
}

func newDedup(s schema.Schema, cols []string) (*dedup, error) {
	d := &dedup{seen: make(map[uint64]struct{}), h: xxh3.New()}
	for _, c := range cols {
		i := s.Index(c)
		if i < 0 {
			return nil, fmt.Errorf("dedup: column %q not in schema", c)
		}
		d.pos = append(d.pos, s.Fields[i].Pos)
	}
	return d, nil
}

func (d *dedup) key(row Row) uint64 {
	d.h.Reset()
	for i, p := range d.pos {
		if i > 0 {
			_, _ = d.h.Write([]byte{0x1f})
		}
		_, _ = d.h.WriteString(row[p])
	}
	return d.h.Sum64()
}

// duplicate reports whether row's key was seen and records it otherwise.
func (d *dedup) duplicate(row Row) bool {
	k := d.key(row)
	if _, ok := d.seen[k]; ok {
		return true
	}
	d.seen[k] = struct{}{}
	return false
}
