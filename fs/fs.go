// Package fs is the top of the storage stack: pathnames, files, and
// directories over a journaled block device. Every mutating operation
// runs as one atomic bracket against the log, so a crash either keeps
// the whole operation or none of it.
//
// Operations take a start inode for relative paths (nil means the
// root) and return referenced, unlocked handles. Callers give handles
// back with Close.
package fs

import (
	"errors"

	"github.com/garentyler/xv6-riscv/alloc"
	"github.com/garentyler/xv6-riscv/bcache"
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/inode"
	"github.com/garentyler/xv6-riscv/super"
	"github.com/garentyler/xv6-riscv/util"
	"github.com/garentyler/xv6-riscv/wal"
	"github.com/tchajed/goose/machine/disk"
)

var (
	ErrNotFound = errors.New("fs: no such file or directory")
	ErrNotDir   = errors.New("fs: not a directory")
	ErrNotEmpty = errors.New("fs: directory not empty")
	ErrIsDir    = errors.New("fs: is a directory")
	ErrInvalid  = errors.New("fs: invalid path")
)

type FileSys struct {
	dev uint64
	bc  *bcache.Bcache
	sb  *super.FsSuper
	l   *wal.Log
	ba  *alloc.Alloc
	it  *inode.Itable
}

// Mount brings up the stack over a formatted device, replaying any
// committed log left by a crash before anything else can read.
func Mount(d disk.Disk) *FileSys {
	sb := super.Load(d)
	// room for every admitted bracket to pin MAXOPBLOCKS while
	// readers hold loose buffers on top
	bc := bcache.MkBcache(2 * common.NBUF)
	bc.AttachDisk(common.ROOTDEV, d)
	l := wal.MkLog(bc, common.ROOTDEV, sb)
	ba := alloc.MkAlloc(bc, sb)
	it := inode.MkItable(bc, l, sb, ba)
	util.DPrintf(1, "fs: mounted, %d blocks, %d inodes", sb.Size, sb.Ninodes)
	return &FileSys{
		dev: common.ROOTDEV,
		bc:  bc,
		sb:  sb,
		l:   l,
		ba:  ba,
		it:  it,
	}
}

// Shutdown drains in-flight brackets and verifies every handle and
// buffer came back. The device itself stays open for the caller.
func (fs *FileSys) Shutdown() {
	fs.l.Shutdown()
	fs.it.Shutdown()
	fs.bc.Shutdown()
	util.DPrintf(1, "fs: shut down")
}

// Super exposes the mounted geometry.
func (fs *FileSys) Super() *super.FsSuper {
	return fs.sb
}

// Root returns a handle on the root directory.
func (fs *FileSys) Root() *inode.Inode {
	return fs.it.Iget(fs.dev, common.ROOTINUM)
}

// Begin opens a bracket for callers that work on handles directly.
// The named operations bracket themselves; do not nest them inside.
func (fs *FileSys) Begin() {
	fs.l.Begin()
}

func (fs *FileSys) End() {
	fs.l.End()
}

// Close gives a handle back. The last handle on an unlinked file
// frees it, which writes, so Close brackets the drop.
func (fs *FileSys) Close(ip *inode.Inode) {
	fs.l.Begin()
	ip.Put()
	fs.l.End()
}

// ReadAt returns up to n bytes of the file at off, short at end of
// file. Reads bypass the log entirely.
func (fs *FileSys) ReadAt(ip *inode.Inode, off uint64, n uint64) []byte {
	ip.Lock()
	data := ip.Read(off, n)
	ip.Unlock()
	return data
}

// WriteAt writes data into the file at off, bracketing chunk by chunk
// so no single bracket logs more blocks than one operation may hold.
// A full disk returns the byte count that made it down.
func (fs *FileSys) WriteAt(ip *inode.Inode, off uint64, data []byte) (uint64, error) {
	max := (common.MAXOPBLOCKS - 4) / 2 * disk.BlockSize
	var cnt uint64
	for cnt < uint64(len(data)) {
		n := util.Min(uint64(len(data))-cnt, max)
		fs.l.Begin()
		ip.Lock()
		w, err := ip.Write(off+cnt, data[cnt:cnt+n])
		ip.Unlock()
		fs.l.End()
		cnt += w
		if err != nil {
			return cnt, err
		}
	}
	return cnt, nil
}

// Stat resolves path and snapshots the inode's metadata.
func (fs *FileSys) Stat(start *inode.Inode, path string) (inode.Stat, error) {
	fs.l.Begin()
	ip, _, err := fs.namex(start, path, false)
	if err != nil {
		fs.l.End()
		return inode.Stat{}, err
	}
	ip.Lock()
	st := ip.Stati()
	ip.Unlock()
	ip.Put()
	fs.l.End()
	return st, nil
}
