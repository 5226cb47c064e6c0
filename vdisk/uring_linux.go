//go:build linux

package vdisk

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/aethne0/giouring"
	"github.com/tchajed/goose/machine/disk"
	"golang.org/x/sys/unix"
)

var _ disk.Disk = (*UringDisk)(nil)

// UringDisk drives the same file contract through io_uring. One
// submission is in flight at a time; the win over FileDisk is the
// cheaper submission path, not queue depth.
type UringDisk struct {
	mu        *sync.Mutex
	ring      *giouring.Ring
	fd        int
	numBlocks uint64
}

func NewUringDisk(path string, numBlocks uint64) (*UringDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, err
	}
	err = unix.Ftruncate(fd, int64(numBlocks*disk.BlockSize))
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	ring, err := giouring.CreateRing(8)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &UringDisk{
		mu:        new(sync.Mutex),
		ring:      ring,
		fd:        fd,
		numBlocks: numBlocks,
	}, nil
}

// await submits the prepared SQE and blocks for its completion.
// Caller holds d.mu.
func (d *UringDisk) await() int32 {
	_, err := d.ring.SubmitAndWait(1)
	if err != nil && err != unix.EINTR {
		panic("vdisk: uring submit failed: " + err.Error())
	}
	for {
		cqe, err := d.ring.PeekCQE()
		if err == unix.EAGAIN || err == unix.EINTR || err == unix.ETIME {
			_, err = d.ring.SubmitAndWait(1)
			if err != nil && err != unix.EINTR {
				panic("vdisk: uring wait failed: " + err.Error())
			}
			continue
		}
		if err != nil {
			panic("vdisk: uring completion failed: " + err.Error())
		}
		res := cqe.Res
		d.ring.CQESeen(cqe)
		if res < 0 {
			panic(fmt.Errorf("vdisk: uring op failed: %v", unix.Errno(-res)))
		}
		return res
	}
}

func (d *UringDisk) ReadTo(a uint64, buf disk.Block) {
	if uint64(len(buf)) != disk.BlockSize {
		panic(fmt.Errorf("vdisk: read into non-block-sized buffer (%d bytes)", len(buf)))
	}
	if a >= d.numBlocks {
		panic(fmt.Errorf("vdisk: out-of-bounds read at %d", a))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sqe := d.ring.GetSQE()
	if sqe == nil {
		panic("vdisk: submission queue full")
	}
	sqe.PrepareRead(d.fd, uintptr(unsafe.Pointer(&buf[0])), uint32(disk.BlockSize), a*disk.BlockSize)
	sqe.UserData = a
	res := d.await()
	runtime.KeepAlive(buf)
	if res != int32(disk.BlockSize) {
		panic(fmt.Errorf("vdisk: short uring read at %d: %d bytes", a, res))
	}
}

func (d *UringDisk) Read(a uint64) disk.Block {
	buf := make(disk.Block, disk.BlockSize)
	d.ReadTo(a, buf)
	return buf
}

func (d *UringDisk) Write(a uint64, v disk.Block) {
	if uint64(len(v)) != disk.BlockSize {
		panic(fmt.Errorf("vdisk: write of non-block-sized buffer (%d bytes)", len(v)))
	}
	if a >= d.numBlocks {
		panic(fmt.Errorf("vdisk: out-of-bounds write at %d", a))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sqe := d.ring.GetSQE()
	if sqe == nil {
		panic("vdisk: submission queue full")
	}
	sqe.PrepareWrite(d.fd, uintptr(unsafe.Pointer(&v[0])), uint32(disk.BlockSize), a*disk.BlockSize)
	sqe.UserData = a
	res := d.await()
	runtime.KeepAlive(v)
	if res != int32(disk.BlockSize) {
		panic(fmt.Errorf("vdisk: short uring write at %d: %d bytes", a, res))
	}
}

func (d *UringDisk) Size() uint64 {
	return d.numBlocks
}

func (d *UringDisk) Barrier() {
	d.mu.Lock()
	defer d.mu.Unlock()
	sqe := d.ring.GetSQE()
	if sqe == nil {
		panic("vdisk: submission queue full")
	}
	sqe.PrepareFsync(d.fd, 0)
	sqe.UserData = 0
	d.await()
}

func (d *UringDisk) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ring.QueueExit()
	err := unix.Close(d.fd)
	if err != nil {
		panic(err)
	}
}
