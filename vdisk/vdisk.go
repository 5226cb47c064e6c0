// Package vdisk provides block devices backed by ordinary files. All
// devices satisfy the goose disk.Disk contract: fixed 4KB blocks,
// synchronous calls, and panics on I/O failure (a device that cannot
// complete is fatal to this subsystem, not an error to retry).
package vdisk

import (
	"fmt"

	"github.com/tchajed/goose/machine/disk"
	"golang.org/x/sys/unix"
)

var _ disk.Disk = FileDisk{}

// FileDisk is a numBlocks-sized device over a regular file, using
// pread/pwrite so concurrent callers need no shared offset.
type FileDisk struct {
	fd        int
	numBlocks uint64
}

func NewFileDisk(path string, numBlocks uint64) (FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return FileDisk{}, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return FileDisk{}, err
	}
	if (stat.Mode&unix.S_IFREG) != 0 && uint64(stat.Size) != numBlocks*disk.BlockSize {
		err = unix.Ftruncate(fd, int64(numBlocks*disk.BlockSize))
		if err != nil {
			unix.Close(fd)
			return FileDisk{}, err
		}
	}
	return FileDisk{fd, numBlocks}, nil
}

func (d FileDisk) ReadTo(a uint64, buf disk.Block) {
	if uint64(len(buf)) != disk.BlockSize {
		panic(fmt.Errorf("vdisk: read into non-block-sized buffer (%d bytes)", len(buf)))
	}
	if a >= d.numBlocks {
		panic(fmt.Errorf("vdisk: out-of-bounds read at %d", a))
	}
	n, err := unix.Pread(d.fd, buf, int64(a*disk.BlockSize))
	if err != nil {
		panic("vdisk: read failed: " + err.Error())
	}
	if n != len(buf) {
		panic(fmt.Errorf("vdisk: short read at %d (%d of %d bytes)", a, n, disk.BlockSize))
	}
}

func (d FileDisk) Read(a uint64) disk.Block {
	buf := make(disk.Block, disk.BlockSize)
	d.ReadTo(a, buf)
	return buf
}

func (d FileDisk) Write(a uint64, v disk.Block) {
	if uint64(len(v)) != disk.BlockSize {
		panic(fmt.Errorf("vdisk: write of non-block-sized buffer (%d bytes)", len(v)))
	}
	if a >= d.numBlocks {
		panic(fmt.Errorf("vdisk: out-of-bounds write at %d", a))
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*disk.BlockSize))
	if err != nil {
		panic("vdisk: write failed: " + err.Error())
	}
	if n != len(v) {
		panic(fmt.Errorf("vdisk: short write at %d (%d of %d bytes)", a, n, disk.BlockSize))
	}
}

func (d FileDisk) Size() uint64 {
	return d.numBlocks
}

// Barrier orders all preceding writes before any later ones. On a
// file this is fsync, which flushes more than strictly necessary but
// gives the ordering the log's commit point needs.
func (d FileDisk) Barrier() {
	err := unix.Fsync(d.fd)
	if err != nil {
		panic("vdisk: fsync failed: " + err.Error())
	}
}

func (d FileDisk) Close() {
	err := unix.Close(d.fd)
	if err != nil {
		panic(err)
	}
}
