package vdisk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"
	"golang.org/x/sys/unix"
)

func mkBlock(b byte) disk.Block {
	block := make(disk.Block, disk.BlockSize)
	for i := range block {
		block[i] = b
	}
	return block
}

func TestFileDiskRoundTrip(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 100)
	require.NoError(t, err)

	d.Write(0, mkBlock(1))
	d.Write(99, mkBlock(2))
	assert.Equal(mkBlock(1), d.Read(0))
	assert.Equal(mkBlock(2), d.Read(99))
	assert.Equal(uint64(100), d.Size())

	buf := make(disk.Block, disk.BlockSize)
	d.ReadTo(99, buf)
	assert.Equal(mkBlock(2), buf)
}

func TestFileDiskPersists(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 10)
	require.NoError(t, err)
	d.Write(3, mkBlock(7))
	d.Barrier()
	d.Close()

	d2, err := NewFileDisk(path, 10)
	require.NoError(t, err)
	defer d2.Close()
	assert.Equal(mkBlock(7), d2.Read(3))
	assert.Equal(mkBlock(0), d2.Read(4), "untouched blocks read as zeros")
}

func TestFileDiskBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 10)
	require.NoError(t, err)
	defer d.Close()

	assert.Panics(t, func() { d.Read(10) })
	assert.Panics(t, func() { d.Write(10, mkBlock(0)) })
	assert.Panics(t, func() { d.Write(0, make(disk.Block, 1)) })
}

func TestFileDiskShortRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 10)
	require.NoError(t, err)
	defer d.Close()
	d.Write(9, mkBlock(3))

	// shrink the backing file behind the device: an in-bounds read the
	// file can no longer satisfy must not hand back a torn block
	require.NoError(t, unix.Truncate(path, int64(5*disk.BlockSize)))
	assert.Equal(t, mkBlock(0), d.Read(0))
	assert.Panics(t, func() { d.Read(9) })
}
