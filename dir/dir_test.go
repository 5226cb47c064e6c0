package dir

import (
	"fmt"
	"testing"

	"github.com/garentyler/xv6-riscv/alloc"
	"github.com/garentyler/xv6-riscv/bcache"
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/inode"
	"github.com/garentyler/xv6-riscv/super"
	"github.com/garentyler/xv6-riscv/wal"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"
)

type testFs struct {
	t  *testing.T
	d  disk.Disk
	sb *super.FsSuper
	bc *bcache.Bcache
	l  *wal.Log
	ba *alloc.Alloc
	it *inode.Itable
}

func markMeta(d disk.Disk, sb *super.FsSuper) {
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

func mkTestFs(t *testing.T) *testFs {
	d := disk.NewMemDisk(2000)
	sb := super.MkFsSuper(2000, 64)
	markMeta(d, sb)
	bc := bcache.MkBcache(2 * common.NBUF)
	bc.AttachDisk(common.ROOTDEV, d)
	l := wal.MkLog(bc, common.ROOTDEV, sb)
	ba := alloc.MkAlloc(bc, sb)
	it := inode.MkItable(bc, l, sb, ba)
	return &testFs{t: t, d: d, sb: sb, bc: bc, l: l, ba: ba, it: it}
}

// mkDir allocates a linked directory inode and returns it locked.
func (fs *testFs) mkDir() *inode.Inode {
	fs.t.Helper()
	fs.l.Begin()
	dp, err := fs.it.Alloc(common.ROOTDEV, common.KindDir, 0, 0)
	require.NoError(fs.t, err)
	dp.Nlink = 1
	dp.Update()
	fs.l.End()
	return dp
}

// mkFile allocates a linked file inode, unlocked.
func (fs *testFs) mkFile() *inode.Inode {
	fs.t.Helper()
	fs.l.Begin()
	ip, err := fs.it.Alloc(common.ROOTDEV, common.KindFile, 0, 0)
	require.NoError(fs.t, err)
	ip.Nlink = 1
	ip.Update()
	ip.Unlock()
	fs.l.End()
	return ip
}

func (fs *testFs) link(dp *inode.Inode, name string, inum common.Inum) error {
	fs.l.Begin()
	err := Link(dp, name, inum)
	fs.l.End()
	return err
}

func TestLinkThenLookup(t *testing.T) {
	fs := mkTestFs(t)
	dp := fs.mkDir()
	ia := fs.mkFile()

	require.NoError(t, fs.link(dp, "alpha", ia.Inum))

	inum, off, ok := Lookup(dp, "alpha")
	require.True(t, ok)
	require.Equal(t, ia.Inum, inum)
	require.Equal(t, uint64(0), off)
	require.Equal(t, common.DIRENTSZ, dp.Size)

	_, _, ok = Lookup(dp, "beta")
	require.False(t, ok)
}

func TestLinkDuplicateRejected(t *testing.T) {
	fs := mkTestFs(t)
	dp := fs.mkDir()
	ia := fs.mkFile()
	ib := fs.mkFile()

	require.NoError(t, fs.link(dp, "name", ia.Inum))
	require.ErrorIs(t, fs.link(dp, "name", ib.Inum), ErrExists)

	// the original binding is untouched
	inum, _, ok := Lookup(dp, "name")
	require.True(t, ok)
	require.Equal(t, ia.Inum, inum)
}

func TestClearedSlotIsReused(t *testing.T) {
	fs := mkTestFs(t)
	dp := fs.mkDir()
	ia, ib, ic, id := fs.mkFile(), fs.mkFile(), fs.mkFile(), fs.mkFile()

	require.NoError(t, fs.link(dp, "a", ia.Inum))
	require.NoError(t, fs.link(dp, "b", ib.Inum))
	require.NoError(t, fs.link(dp, "c", ic.Inum))
	_, offB, ok := Lookup(dp, "b")
	require.True(t, ok)

	fs.l.Begin()
	Clear(dp, offB)
	fs.l.End()
	_, _, ok = Lookup(dp, "b")
	require.False(t, ok)

	require.NoError(t, fs.link(dp, "d", id.Inum))
	_, offD, ok := Lookup(dp, "d")
	require.True(t, ok)
	require.Equal(t, offB, offD)
	require.Equal(t, 3*common.DIRENTSZ, dp.Size)
}

func TestLongNamesMatchOnPrefix(t *testing.T) {
	fs := mkTestFs(t)
	dp := fs.mkDir()
	ia := fs.mkFile()

	long := "an-unreasonably-long-directory-entry-name"
	require.NoError(t, fs.link(dp, long, ia.Inum))

	inum, _, ok := Lookup(dp, long)
	require.True(t, ok)
	require.Equal(t, ia.Inum, inum)

	// a different tail beyond the stored prefix still matches
	_, _, ok = Lookup(dp, long[:common.DIRSIZ]+"-other-tail")
	require.True(t, ok)

	_, _, ok = Lookup(dp, long[:common.DIRSIZ-1])
	require.False(t, ok)
}

func TestIsEmpty(t *testing.T) {
	fs := mkTestFs(t)
	dp := fs.mkDir()

	require.NoError(t, fs.link(dp, ".", dp.Inum))
	require.NoError(t, fs.link(dp, "..", common.ROOTINUM))
	require.True(t, IsEmpty(dp))

	ia := fs.mkFile()
	require.NoError(t, fs.link(dp, "occupant", ia.Inum))
	require.False(t, IsEmpty(dp))

	_, off, ok := Lookup(dp, "occupant")
	require.True(t, ok)
	fs.l.Begin()
	Clear(dp, off)
	fs.l.End()
	require.True(t, IsEmpty(dp))
}

func TestEntriesSpanBlocks(t *testing.T) {
	fs := mkTestFs(t)
	dp := fs.mkDir()
	ia := fs.mkFile()

	perBlock := disk.BlockSize / common.DIRENTSZ
	n := perBlock + perBlock/2
	for i := uint64(0); i < n; i++ {
		require.NoError(t, fs.link(dp, fmt.Sprintf("entry%04d", i), ia.Inum))
	}
	require.Equal(t, n*common.DIRENTSZ, dp.Size)

	for _, i := range []uint64{0, perBlock - 1, perBlock, n - 1} {
		inum, off, ok := Lookup(dp, fmt.Sprintf("entry%04d", i))
		require.True(t, ok, "entry %d", i)
		require.Equal(t, ia.Inum, inum)
		require.Equal(t, i*common.DIRENTSZ, off)
	}
}

func TestListReturnsLiveEntries(t *testing.T) {
	fs := mkTestFs(t)
	dp := fs.mkDir()
	ia := fs.mkFile()

	require.Empty(t, List(dp))

	names := []string{"one", "two", "three"}
	for _, name := range names {
		require.NoError(t, fs.link(dp, name, ia.Inum))
	}
	_, off, ok := Lookup(dp, "two")
	require.True(t, ok)
	fs.l.Begin()
	Clear(dp, off)
	fs.l.End()

	ents := List(dp)
	require.Len(t, ents, 2)
	require.Equal(t, Ent{Name: "one", Inum: ia.Inum}, ents[0])
	require.Equal(t, Ent{Name: "three", Inum: ia.Inum}, ents[1])
}

func TestConcurrentLinkOneWinner(t *testing.T) {
	fs := mkTestFs(t)
	dp := fs.mkDir()
	dp.Unlock()
	ia, ib := fs.mkFile(), fs.mkFile()

	errs := make(chan error, 2)
	for _, ip := range []*inode.Inode{ia, ib} {
		go func(target *inode.Inode) {
			fs.l.Begin()
			dp.Lock()
			err := Link(dp, "contested", target.Inum)
			dp.Unlock()
			fs.l.End()
			errs <- err
		}(ip)
	}
	err1, err2 := <-errs, <-errs

	if err1 == nil {
		require.ErrorIs(t, err2, ErrExists)
	} else {
		require.ErrorIs(t, err1, ErrExists)
		require.NoError(t, err2)
	}

	dp.Lock()
	winner, _, ok := Lookup(dp, "contested")
	require.True(t, ok)
	require.Contains(t, []common.Inum{ia.Inum, ib.Inum}, winner)
	require.Equal(t, common.DIRENTSZ, dp.Size)
	dp.Unlock()
}
