// Package common holds the on-disk geometry shared by every layer.
// These values are part of the persisted format: changing any of them
// changes what a formatted image means.
package common

import (
	"github.com/tchajed/goose/machine/disk"
)

const (
	// FSMAGIC identifies a formatted superblock.
	FSMAGIC uint64 = 0x10203040

	NDIRECT   uint64 = 12                       // direct addresses per inode
	NINDIRECT uint64 = disk.BlockSize / 8       // addresses in the indirect block
	MAXFILE   uint64 = NDIRECT + NINDIRECT      // max file length in blocks
	INODESZ   uint64 = 128                      // on-disk inode size
	IPB       uint64 = disk.BlockSize / INODESZ // inodes per block

	DIRSIZ   uint64 = 24         // name bytes in a directory entry
	DIRENTSZ uint64 = 8 + DIRSIZ // entry size: inum + name

	BPB uint64 = disk.BlockSize * 8 // bitmap bits per block

	// MAXOPBLOCKS bounds the block footprint of one begin/end bracket;
	// admission control in the log reserves this much per operation.
	MAXOPBLOCKS uint64 = 10
	LOGSIZE     uint64 = 3 * MAXOPBLOCKS // log body capacity
	NBUF        uint64 = 3 * MAXOPBLOCKS // buffer cache slots
	NINODE      uint64 = 50              // in-memory inode table slots
	NDEV        uint64 = 10              // attachable devices

	ROOTDEV uint64 = 1
)

// Inode kinds as stored on disk. KindFree marks an unallocated slot.
const (
	KindFree uint32 = 0
	KindDir  uint32 = 1
	KindFile uint32 = 2
	KindDev  uint32 = 3
)

type Inum uint64
type Bnum = uint64

const (
	NULLINUM Inum = 0
	ROOTINUM Inum = 1
	NULLBNUM Bnum = 0
)
