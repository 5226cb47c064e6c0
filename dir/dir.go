// Package dir reads and writes directory entries inside a locked
// directory inode. An entry is a fixed-size record: an inum and a
// zero-padded name. A zero inum marks a free slot; slots are reused
// before the directory grows.
//
// Callers hold the directory's lock throughout and a bracket around
// anything that writes. Link counts are the caller's business: this
// package only edits the entry records.
package dir

import (
	"errors"

	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/inode"
	"github.com/tchajed/marshal"
)

var ErrExists = errors.New("dir: name exists")

func encode(inum common.Inum, name string) []byte {
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt(uint64(inum))
	b := make([]byte, common.DIRSIZ)
	copy(b, name)
	enc.PutBytes(b)
	return enc.Finish()
}

func decode(d []byte) (common.Inum, string) {
	dec := marshal.NewDec(d)
	inum := common.Inum(dec.GetInt())
	b := dec.GetBytes(common.DIRSIZ)
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return inum, string(b[:n])
}

// names longer than a slot store and match on their first DIRSIZ bytes
func truncName(name string) string {
	if uint64(len(name)) > common.DIRSIZ {
		return name[:common.DIRSIZ]
	}
	return name
}

// Lookup scans dp for name and returns the entry's inum and byte
// offset.
func Lookup(dp *inode.Inode, name string) (common.Inum, uint64, bool) {
	if dp.Kind != common.KindDir {
		panic("dir: lookup in a non-directory")
	}
	want := truncName(name)
	for off := uint64(0); off < dp.Size; off += common.DIRENTSZ {
		inum, ename := decode(dp.Read(off, common.DIRENTSZ))
		if inum == common.NULLINUM {
			continue
		}
		if ename == want {
			return inum, off, true
		}
	}
	return common.NULLINUM, 0, false
}

// Link adds a name → inum entry to dp, reusing the first free slot
// and growing the directory when there is none. Growth can fail when
// the disk fills; the caller's bracket makes the failure harmless.
func Link(dp *inode.Inode, name string, inum common.Inum) error {
	if _, _, ok := Lookup(dp, name); ok {
		return ErrExists
	}
	off := dp.Size
	for o := uint64(0); o < dp.Size; o += common.DIRENTSZ {
		eInum, _ := decode(dp.Read(o, common.DIRENTSZ))
		if eInum == common.NULLINUM {
			off = o
			break
		}
	}
	_, err := dp.Write(off, encode(inum, name))
	return err
}

// Clear zeroes the entry at off, freeing the slot for reuse.
func Clear(dp *inode.Inode, off uint64) {
	ent := make([]byte, common.DIRENTSZ)
	if _, err := dp.Write(off, ent); err != nil {
		// rewriting a slot that exists never allocates
		panic(err)
	}
}

// Ent is one live directory entry.
type Ent struct {
	Name string
	Inum common.Inum
}

// List returns the live entries in dp, in slot order.
func List(dp *inode.Inode) []Ent {
	var ents []Ent
	for off := uint64(0); off < dp.Size; off += common.DIRENTSZ {
		inum, name := decode(dp.Read(off, common.DIRENTSZ))
		if inum == common.NULLINUM {
			continue
		}
		ents = append(ents, Ent{Name: name, Inum: inum})
	}
	return ents
}

// IsEmpty reports whether dp holds nothing besides the "." and ".."
// entries in its first two slots.
func IsEmpty(dp *inode.Inode) bool {
	for off := 2 * common.DIRENTSZ; off < dp.Size; off += common.DIRENTSZ {
		inum, _ := decode(dp.Read(off, common.DIRENTSZ))
		if inum != common.NULLINUM {
			return false
		}
	}
	return true
}
