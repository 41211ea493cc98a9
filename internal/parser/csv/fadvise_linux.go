//go:build linux

package csv

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential enlarges readahead for the whole file. Errors are ignored;
// the hint only affects throughput.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_WILLNEED)
}
