// Package mkfs writes an empty, mountable file system onto a block
// device: superblock, empty log, inode region with a root directory,
// and a bitmap that accounts for every metadata block.
package mkfs

import (
	"github.com/garentyler/xv6-riscv/alloc"
	"github.com/garentyler/xv6-riscv/bcache"
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/dir"
	"github.com/garentyler/xv6-riscv/inode"
	"github.com/garentyler/xv6-riscv/super"
	"github.com/garentyler/xv6-riscv/util"
	"github.com/garentyler/xv6-riscv/wal"
	"github.com/negrel/assert"
	"github.com/tchajed/goose/machine/disk"
)

// Format lays out a file system of the given geometry on d and
// returns its superblock. Everything on the device is discarded. The
// superblock goes down last, so a mountable image is a complete one.
func Format(d disk.Disk, size uint64, ninodes uint64) *super.FsSuper {
	sb := super.MkFsSuper(size, ninodes)
	util.DPrintf(1, "mkfs: %d blocks, %d inodes, data starts at %d",
		size, ninodes, sb.DataStart())

	zero := make(disk.Block, disk.BlockSize)
	for bn := uint64(1); bn < sb.DataStart(); bn++ {
		d.Write(bn, zero)
	}
	markBitmap(d, sb)

	// build the root directory with the real machinery so the entry
	// and inode formats can never drift from the code that reads them
	bc := bcache.MkBcache(2 * common.NBUF)
	bc.AttachDisk(common.ROOTDEV, d)
	l := wal.MkLog(bc, common.ROOTDEV, sb)
	ba := alloc.MkAlloc(bc, sb)
	it := inode.MkItable(bc, l, sb, ba)

	l.Begin()
	root, err := it.Alloc(common.ROOTDEV, common.KindDir, 0, 0)
	if err != nil {
		panic(err)
	}
	assert.True(root.Inum == common.ROOTINUM, "root must take the first inum")
	root.Nlink = 1
	if err := dir.Link(root, ".", root.Inum); err != nil {
		panic(err)
	}
	if err := dir.Link(root, "..", root.Inum); err != nil {
		panic(err)
	}
	root.Update()
	root.Unlock()
	root.Put()
	l.End()

	l.Shutdown()
	it.Shutdown()
	bc.Shutdown()

	d.Write(super.SUPERBLK, sb.Encode())
	d.Barrier()
	return sb
}

// markBitmap claims the boot, super, log, inode, and bitmap blocks so
// the allocator never hands out metadata.
func markBitmap(d disk.Disk, sb *super.FsSuper) {
	nmeta := sb.DataStart()
	for blk := uint64(0); blk < sb.NBitmap(); blk++ {
		b := make(disk.Block, disk.BlockSize)
		base := blk * common.BPB
		for bi := uint64(0); bi < common.BPB && base+bi < nmeta; bi++ {
			b[bi/8] |= byte(1) << (bi % 8)
		}
		d.Write(sb.BitmapBlock(base), b)
	}
}
