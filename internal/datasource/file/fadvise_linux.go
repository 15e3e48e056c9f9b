//go:build linux

package file

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential asks for aggressive read-ahead. Failures are ignored; the
// hint only affects throughput.
func adviseSequential(f *os.File) {
	fd := int(f.Fd())
	_ = unix.Fadvise(fd, 0, 0, unix.FADV_SEQUENTIAL)
	_ = unix.Fadvise(fd, 0, 0, unix.FADV_WILLNEED)
}
