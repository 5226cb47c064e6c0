package inode

import (
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/util"
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"
)

// bmap maps the bn'th block of the file to a disk block, allocating
// the data block (and the indirect block, when needed) on first use.
// Caller holds the lock; allocation requires a bracket.
func (ip *Inode) bmap(bn uint64) (common.Bnum, error) {
	tbl := ip.tbl
	if bn < common.NDIRECT {
		if ip.addrs[bn] == common.NULLBNUM {
			a, err := tbl.ba.Alloc(tbl.log, ip.Dev)
			if err != nil {
				return common.NULLBNUM, err
			}
			ip.addrs[bn] = a
		}
		return ip.addrs[bn], nil
	}
	bn -= common.NDIRECT
	if bn >= common.NINDIRECT {
		panic("inode: block number out of range")
	}
	if ip.addrs[common.NDIRECT] == common.NULLBNUM {
		a, err := tbl.ba.Alloc(tbl.log, ip.Dev)
		if err != nil {
			return common.NULLBNUM, err
		}
		ip.addrs[common.NDIRECT] = a
	}
	b := tbl.bc.Get(ip.Dev, ip.addrs[common.NDIRECT])
	off := bn * 8
	a := marshal.NewDec(b.Data[off : off+8]).GetInt()
	if a == common.NULLBNUM {
		a2, err := tbl.ba.Alloc(tbl.log, ip.Dev)
		if err != nil {
			tbl.bc.Release(b)
			return common.NULLBNUM, err
		}
		a = a2
		enc := marshal.NewEnc(8)
		enc.PutInt(a)
		copy(b.Data[off:off+8], enc.Finish())
		tbl.log.Write(b)
	}
	tbl.bc.Release(b)
	return a, nil
}

// Read returns up to n bytes starting at off, stopping short at end
// of file. Reading at or past the end returns nil. Caller holds the
// lock; no bracket is needed, since files have no holes and reads
// therefore never allocate.
func (ip *Inode) Read(off uint64, n uint64) []byte {
	if off >= ip.Size || util.SumOverflows(off, n) {
		return nil
	}
	if off+n > ip.Size {
		n = ip.Size - off
	}
	data := make([]byte, 0, n)
	for n > 0 {
		a, err := ip.bmap(off / disk.BlockSize)
		if err != nil {
			panic("inode: hole in a file")
		}
		boff := off % disk.BlockSize
		nbytes := util.Min(disk.BlockSize-boff, n)
		b := ip.tbl.bc.Get(ip.Dev, a)
		data = append(data, b.Data[boff:boff+nbytes]...)
		ip.tbl.bc.Release(b)
		off += nbytes
		n -= nbytes
	}
	return data
}

// Write copies data into the file starting at off, growing it as
// needed, and persists the new metadata. Writes must start at or
// before the current end: files never have holes. Running out of
// disk space returns the count written so far along with the error.
//
// One write can dirty up to two blocks per appended block plus the
// inode itself; callers bound their writes so a bracket can hold them.
func (ip *Inode) Write(off uint64, data []byte) (uint64, error) {
	n := uint64(len(data))
	if off > ip.Size || util.SumOverflows(off, n) {
		return 0, ErrBadOffset
	}
	if off+n > common.MAXFILE*disk.BlockSize {
		return 0, ErrTooLarge
	}
	var cnt uint64
	var werr error
	for cnt < n {
		a, err := ip.bmap((off + cnt) / disk.BlockSize)
		if err != nil {
			werr = err
			break
		}
		boff := (off + cnt) % disk.BlockSize
		nbytes := util.Min(disk.BlockSize-boff, n-cnt)
		b := ip.tbl.bc.Get(ip.Dev, a)
		copy(b.Data[boff:boff+nbytes], data[cnt:cnt+nbytes])
		ip.tbl.log.Write(b)
		ip.tbl.bc.Release(b)
		cnt += nbytes
	}
	if off+cnt > ip.Size {
		ip.Size = off + cnt
	}
	ip.Update()
	return cnt, werr
}

// Trunc discards the file's content, returning every data block and
// the indirect block to the allocator, and persists the empty inode.
// Caller holds the lock and a bracket; the frees all land in a few
// bitmap blocks, which absorption collapses into that many log slots.
func (ip *Inode) Trunc() {
	ip.trunc()
	ip.Update()
}

func (ip *Inode) trunc() {
	tbl := ip.tbl
	for i := uint64(0); i < common.NDIRECT; i++ {
		if ip.addrs[i] != common.NULLBNUM {
			tbl.ba.Free(tbl.log, ip.Dev, ip.addrs[i])
			ip.addrs[i] = common.NULLBNUM
		}
	}
	if ip.addrs[common.NDIRECT] != common.NULLBNUM {
		b := tbl.bc.Get(ip.Dev, ip.addrs[common.NDIRECT])
		addrs := marshal.NewDec(b.Data).GetInts(common.NINDIRECT)
		tbl.bc.Release(b)
		for _, a := range addrs {
			if a != common.NULLBNUM {
				tbl.ba.Free(tbl.log, ip.Dev, a)
			}
		}
		tbl.ba.Free(tbl.log, ip.Dev, ip.addrs[common.NDIRECT])
		ip.addrs[common.NDIRECT] = common.NULLBNUM
	}
	ip.Size = 0
}
