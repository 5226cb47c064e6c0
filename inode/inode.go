// Package inode implements files: a fixed on-disk table of inodes, a
// fixed in-memory table of handles to them, and content access
// through direct plus one-level indirect block addresses.
//
// A handle goes through two stages. Iget/Alloc/Dup give a referenced,
// unlocked *Inode: it pins the table slot but says nothing about the
// fields. Lock gives exclusive use of the content and loads the
// on-disk fields on first touch. Mutations persist only when Update
// runs inside the caller's log bracket.
package inode

import (
	"errors"
	"sync"

	"github.com/garentyler/xv6-riscv/alloc"
	"github.com/garentyler/xv6-riscv/bcache"
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/super"
	"github.com/garentyler/xv6-riscv/util"
	"github.com/garentyler/xv6-riscv/wal"
	"github.com/negrel/assert"
	"github.com/tchajed/marshal"
)

var (
	ErrNoInodes  = errors.New("inode: out of inodes")
	ErrBadOffset = errors.New("inode: write beyond end of file")
	ErrTooLarge  = errors.New("inode: file would exceed the maximum size")
)

// Stat is the caller-visible snapshot of an inode's metadata.
type Stat struct {
	Dev   uint64
	Inum  common.Inum
	Kind  uint32
	Nlink uint32
	Size  uint64
}

type Inode struct {
	tbl *Itable

	// identity; immutable while ref > 0
	Dev  uint64
	Inum common.Inum

	ref uint64 // owned by the table lock

	mu    *sync.Mutex // long-hold content lock
	valid bool        // on-disk fields loaded; set once per tenancy

	// copies of the on-disk fields; owned by mu
	Kind  uint32
	Major uint32
	Minor uint32
	Nlink uint32
	Size  uint64
	addrs []common.Bnum // NDIRECT direct, then the indirect block
}

// Itable is the in-memory inode table: NINODE slots shared by all
// callers. A slot is recycled only when its refcount is zero.
type Itable struct {
	mu     *sync.Mutex // short-hold; guards ref and slot identity
	bc     *bcache.Bcache
	log    *wal.Log
	sb     *super.FsSuper
	ba     *alloc.Alloc
	inodes []Inode
}

func MkItable(bc *bcache.Bcache, l *wal.Log, sb *super.FsSuper, ba *alloc.Alloc) *Itable {
	it := &Itable{
		mu:     new(sync.Mutex),
		bc:     bc,
		log:    l,
		sb:     sb,
		ba:     ba,
		inodes: make([]Inode, common.NINODE),
	}
	for i := range it.inodes {
		it.inodes[i].tbl = it
		it.inodes[i].mu = new(sync.Mutex)
		it.inodes[i].addrs = make([]common.Bnum, common.NDIRECT+1)
	}
	return it
}

// Iget returns a referenced, unlocked handle for (dev, inum), sharing
// the slot with any other holder of the same inode. No I/O. Running
// out of slots is fatal: handles are short-lived by design.
func (it *Itable) Iget(dev uint64, inum common.Inum) *Inode {
	it.mu.Lock()
	var empty *Inode
	for i := range it.inodes {
		ip := &it.inodes[i]
		if ip.ref > 0 && ip.Dev == dev && ip.Inum == inum {
			ip.ref++
			it.mu.Unlock()
			return ip
		}
		if empty == nil && ip.ref == 0 {
			empty = ip
		}
	}
	if empty == nil {
		panic("itable: no inodes")
	}
	empty.Dev = dev
	empty.Inum = inum
	empty.ref = 1
	empty.valid = false
	it.mu.Unlock()
	return empty
}

// Alloc claims a free slot in the on-disk inode region and returns a
// referenced, locked handle typed as kind. The caller holds a bracket.
func (it *Itable) Alloc(dev uint64, kind uint32, major uint32, minor uint32) (*Inode, error) {
	assert.True(kind != common.KindFree, "allocating a free inode")
	for inum := common.ROOTINUM; inum < it.sb.MaxInum(); inum++ {
		b := it.bc.Get(dev, it.sb.InodeBlock(inum))
		off := it.sb.InodeOffset(inum)
		dec := marshal.NewDec(b.Data[off : off+common.INODESZ])
		if dec.GetInt32() != common.KindFree {
			it.bc.Release(b)
			continue
		}
		// claim it: a fresh inode of this kind, no links, no content
		enc := marshal.NewEnc(common.INODESZ)
		enc.PutInt32(kind)
		enc.PutInt32(major)
		enc.PutInt32(minor)
		copy(b.Data[off:off+common.INODESZ], enc.Finish())
		it.log.Write(b)
		it.bc.Release(b)
		util.DPrintf(2, "inode: alloc %d kind %d", inum, kind)

		ip := it.Iget(dev, inum)
		ip.Lock()
		return ip, nil
	}
	return nil, ErrNoInodes
}

// Shutdown asserts every handle has been put back.
func (it *Itable) Shutdown() {
	it.mu.Lock()
	for i := range it.inodes {
		if it.inodes[i].ref != 0 {
			panic("itable: shutdown with referenced inode")
		}
	}
	it.mu.Unlock()
}

// Dup adds a reference to the same cached inode. No I/O.
func (ip *Inode) Dup() *Inode {
	ip.tbl.mu.Lock()
	assert.Greater(ip.ref, uint64(0), "dup of unreferenced inode")
	ip.ref++
	ip.tbl.mu.Unlock()
	return ip
}

// Lock takes exclusive use of the content, reading the on-disk fields
// on the slot's first use. Locking an inode the disk says is free is
// fatal; references to a freed inode mean bookkeeping above is broken.
func (ip *Inode) Lock() {
	ip.mu.Lock()
	if !ip.valid {
		b := ip.tbl.bc.Get(ip.Dev, ip.tbl.sb.InodeBlock(ip.Inum))
		off := ip.tbl.sb.InodeOffset(ip.Inum)
		ip.decode(b.Data[off : off+common.INODESZ])
		ip.tbl.bc.Release(b)
		ip.valid = true
		if ip.Kind == common.KindFree {
			panic("inode: lock of a free inode")
		}
	}
}

func (ip *Inode) Unlock() {
	ip.mu.Unlock()
}

// Put drops one reference. The last reference to an unlinked inode
// frees its content and its on-disk slot, so Put must run inside a
// bracket whenever that case is possible.
func (ip *Inode) Put() {
	tbl := ip.tbl
	tbl.mu.Lock()
	if ip.ref == 1 && ip.valid && ip.Nlink == 0 {
		// ref == 1 means no one else holds the content lock, so this
		// cannot block. valid and Nlink are stable for the same reason.
		ip.mu.Lock()
		tbl.mu.Unlock()

		util.DPrintf(2, "inode: free %d", ip.Inum)
		ip.trunc()
		ip.Kind = common.KindFree
		ip.Update()
		ip.valid = false
		ip.mu.Unlock()

		tbl.mu.Lock()
	}
	if ip.ref == 0 {
		panic("inode: put of unreferenced inode")
	}
	ip.ref--
	tbl.mu.Unlock()
}

// Update writes the in-memory fields into the inode's slot on disk,
// via the log. Call it after any field mutation meant to persist; the
// caller holds the lock and a bracket.
func (ip *Inode) Update() {
	tbl := ip.tbl
	b := tbl.bc.Get(ip.Dev, tbl.sb.InodeBlock(ip.Inum))
	off := tbl.sb.InodeOffset(ip.Inum)
	ip.encode(b.Data[off : off+common.INODESZ])
	tbl.log.Write(b)
	tbl.bc.Release(b)
}

// Stati snapshots the metadata. Caller holds the lock.
func (ip *Inode) Stati() Stat {
	return Stat{
		Dev:   ip.Dev,
		Inum:  ip.Inum,
		Kind:  ip.Kind,
		Nlink: ip.Nlink,
		Size:  ip.Size,
	}
}

func (ip *Inode) encode(dst []byte) {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt32(ip.Kind)
	enc.PutInt32(ip.Major)
	enc.PutInt32(ip.Minor)
	enc.PutInt32(ip.Nlink)
	enc.PutInt(ip.Size)
	enc.PutInts(ip.addrs)
	copy(dst, enc.Finish())
}

func (ip *Inode) decode(src []byte) {
	dec := marshal.NewDec(src)
	ip.Kind = dec.GetInt32()
	ip.Major = dec.GetInt32()
	ip.Minor = dec.GetInt32()
	ip.Nlink = dec.GetInt32()
	ip.Size = dec.GetInt()
	ip.addrs = dec.GetInts(common.NDIRECT + 1)
}
