// Package super describes the fixed disk layout:
//
//	[ boot | super | log header+body | inodes | bitmap | data ]
//
// The superblock (block 1) is written once by mkfs and read-only
// after mount; every other layer derives block addresses from it.
package super

import (
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/util"
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"
)

const (
	BOOTBLK  common.Bnum = 0
	SUPERBLK common.Bnum = 1
)

type FsSuper struct {
	Magic      uint64
	Size       uint64 // total blocks on the device
	Nblocks    uint64 // data blocks
	Ninodes    uint64
	Nlog       uint64 // log blocks: one header + body
	LogStart   uint64
	InodeStart uint64
	BmapStart  uint64
}

// MkFsSuper lays out a file system covering size blocks with room for
// ninodes inodes. The layout must agree forever with what mkfs wrote,
// so all region sizes are derived, never tuned at mount time.
func MkFsSuper(size uint64, ninodes uint64) *FsSuper {
	nlog := common.LOGSIZE + 1
	ninodeblocks := util.RoundUp(ninodes, common.IPB)
	nbitmap := size/common.BPB + 1
	nmeta := 2 + nlog + ninodeblocks + nbitmap
	if nmeta >= size {
		panic("super: device too small for metadata")
	}
	return &FsSuper{
		Magic:      common.FSMAGIC,
		Size:       size,
		Nblocks:    size - nmeta,
		Ninodes:    ninodes,
		Nlog:       nlog,
		LogStart:   2,
		InodeStart: 2 + nlog,
		BmapStart:  2 + nlog + ninodeblocks,
	}
}

// Load reads and validates the superblock. A bad magic means the
// device was never formatted (or the format changed): unrecoverable.
func Load(d disk.Disk) *FsSuper {
	sb := decode(d.Read(SUPERBLK))
	if sb.Magic != common.FSMAGIC {
		panic("super: invalid file system magic")
	}
	if sb.Size > d.Size() {
		panic("super: superblock larger than device")
	}
	return sb
}

func (sb *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(sb.Magic)
	enc.PutInt(sb.Size)
	enc.PutInt(sb.Nblocks)
	enc.PutInt(sb.Ninodes)
	enc.PutInt(sb.Nlog)
	enc.PutInt(sb.LogStart)
	enc.PutInt(sb.InodeStart)
	enc.PutInt(sb.BmapStart)
	return enc.Finish()
}

func decode(b disk.Block) *FsSuper {
	dec := marshal.NewDec(b)
	return &FsSuper{
		Magic:      dec.GetInt(),
		Size:       dec.GetInt(),
		Nblocks:    dec.GetInt(),
		Ninodes:    dec.GetInt(),
		Nlog:       dec.GetInt(),
		LogStart:   dec.GetInt(),
		InodeStart: dec.GetInt(),
		BmapStart:  dec.GetInt(),
	}
}

// LogHdr is the header block; LogBody(i) is the i'th of LOGSIZE slots.
func (sb *FsSuper) LogHdr() common.Bnum {
	return sb.LogStart
}

func (sb *FsSuper) LogBody(i uint64) common.Bnum {
	return sb.LogStart + 1 + i
}

// MaxInum is the exclusive upper bound on valid inode numbers.
func (sb *FsSuper) MaxInum() common.Inum {
	return common.Inum(sb.Ninodes)
}

func (sb *FsSuper) InodeBlock(inum common.Inum) common.Bnum {
	return sb.InodeStart + uint64(inum)/common.IPB
}

// InodeOffset is the byte offset of inum's slot within its block.
func (sb *FsSuper) InodeOffset(inum common.Inum) uint64 {
	return (uint64(inum) % common.IPB) * common.INODESZ
}

func (sb *FsSuper) BitmapBlock(bn common.Bnum) common.Bnum {
	return sb.BmapStart + bn/common.BPB
}

func (sb *FsSuper) NBitmap() uint64 {
	return sb.Size/common.BPB + 1
}

// DataStart is the first block the allocator may hand out.
func (sb *FsSuper) DataStart() common.Bnum {
	return sb.BmapStart + sb.NBitmap()
}
