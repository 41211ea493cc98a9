package csv

import (
	"fmt"
	"os"
)

// Open opens a CSV export for one sequential pass and tells the kernel so
// where supported.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	adviseSequential(f)
	return f, nil
}
