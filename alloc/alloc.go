// Package alloc hands out data blocks from the on-disk bitmap. Bit bn
// covers device block bn; mkfs premarks the bits of every metadata
// block, so the allocator can scan the whole map without knowing the
// layout. Claims and releases are logged: they become durable with
// the caller's transaction.
package alloc

import (
	"errors"
	"sync"

	"github.com/garentyler/xv6-riscv/bcache"
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/super"
	"github.com/garentyler/xv6-riscv/util"
	"github.com/garentyler/xv6-riscv/wal"
)

var ErrNoBlocks = errors.New("alloc: out of data blocks")

type Alloc struct {
	mu   *sync.Mutex // protects next
	bc   *bcache.Bcache
	sb   *super.FsSuper
	next uint64 // rotating search hint
}

func MkAlloc(bc *bcache.Bcache, sb *super.FsSuper) *Alloc {
	return &Alloc{
		mu:   new(sync.Mutex),
		bc:   bc,
		sb:   sb,
		next: 0,
	}
}

func (a *Alloc) hint() uint64 {
	a.mu.Lock()
	n := a.next
	a.mu.Unlock()
	return n
}

func (a *Alloc) setHint(n uint64) {
	a.mu.Lock()
	a.next = n % a.sb.Size
	a.mu.Unlock()
}

// Alloc returns the number of a freshly claimed and zeroed block.
// Two log slots are consumed (bitmap block and the zeroed block); the
// caller holds the bracket. The search starts at a rotating hint so
// sequential allocations do not rescan the map's head.
func (a *Alloc) Alloc(l *wal.Log, dev uint64) (common.Bnum, error) {
	nbitmap := a.sb.NBitmap()
	startBlk := a.hint() / common.BPB
	for scanned := uint64(0); scanned < nbitmap; scanned++ {
		base := ((startBlk + scanned) % nbitmap) * common.BPB
		b := a.bc.Get(dev, a.sb.BitmapBlock(base))
		for bi := uint64(0); bi < common.BPB && base+bi < a.sb.Size; bi++ {
			m := byte(1) << (bi % 8)
			if b.Data[bi/8]&m == 0 {
				b.Data[bi/8] |= m
				l.Write(b)
				a.bc.Release(b)
				bn := base + bi
				a.setHint(bn + 1)
				a.zero(l, dev, bn)
				util.DPrintf(2, "alloc: block %d", bn)
				return bn, nil
			}
		}
		a.bc.Release(b)
	}
	return common.NULLBNUM, ErrNoBlocks
}

// zero clears a freshly claimed block through the log, so indirect
// blocks and directory growth always start from zeros even after a
// replay.
func (a *Alloc) zero(l *wal.Log, dev uint64, bn common.Bnum) {
	b := a.bc.Get(dev, bn)
	for i := range b.Data {
		b.Data[i] = 0
	}
	l.Write(b)
	a.bc.Release(b)
}

// Free returns bn to the map. Freeing a free block is a bookkeeping
// bug somewhere above, not a runtime condition.
func (a *Alloc) Free(l *wal.Log, dev uint64, bn common.Bnum) {
	if bn == common.NULLBNUM || bn >= a.sb.Size {
		panic("alloc: free of block outside the volume")
	}
	b := a.bc.Get(dev, a.sb.BitmapBlock(bn))
	bi := bn % common.BPB
	m := byte(1) << (bi % 8)
	if b.Data[bi/8]&m == 0 {
		panic("alloc: freeing free block")
	}
	b.Data[bi/8] &^= m
	l.Write(b)
	a.bc.Release(b)
	util.DPrintf(2, "alloc: free block %d", bn)
}
