package fs

import (
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/dir"
	"github.com/garentyler/xv6-riscv/inode"
)

// skipElem peels the first element off path: "a//b/c" gives "a" and
// "b/c". An empty element means the path is exhausted.
func skipElem(path string) (string, string) {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	if i == len(path) {
		return "", ""
	}
	s := i
	for i < len(path) && path[i] != '/' {
		i++
	}
	name := path[s:i]
	for i < len(path) && path[i] == '/' {
		i++
	}
	return name, path[i:]
}

// namex walks path from start (nil or a leading slash mean the root).
// With parent set it stops one element early and returns the enclosing
// directory plus the final name. Handles come back unlocked and
// referenced; at most one inode is locked at any moment, and a child
// is only ever locked after its parent has been released, so walks
// cannot deadlock with each other.
//
// Runs inside the caller's bracket: dropping a handle mid-walk can
// free an inode that lost its last name while we held it.
func (fs *FileSys) namex(start *inode.Inode, path string, parent bool) (*inode.Inode, string, error) {
	var ip *inode.Inode
	if (len(path) > 0 && path[0] == '/') || start == nil {
		ip = fs.it.Iget(fs.dev, common.ROOTINUM)
	} else {
		ip = start.Dup()
	}

	name, rest := skipElem(path)
	for name != "" {
		ip.Lock()
		if ip.Kind != common.KindDir {
			ip.Unlock()
			ip.Put()
			return nil, "", ErrNotDir
		}
		if parent && rest == "" {
			ip.Unlock()
			return ip, name, nil
		}
		inum, _, ok := dir.Lookup(ip, name)
		if !ok {
			ip.Unlock()
			ip.Put()
			return nil, "", ErrNotFound
		}
		next := fs.it.Iget(ip.Dev, inum)
		ip.Unlock()
		ip.Put()
		ip = next
		name, rest = skipElem(rest)
	}
	if parent {
		// "/" and "" name no final element
		ip.Put()
		return nil, "", ErrInvalid
	}
	return ip, "", nil
}

// Resolve walks path to its inode.
func (fs *FileSys) Resolve(start *inode.Inode, path string) (*inode.Inode, error) {
	fs.l.Begin()
	ip, _, err := fs.namex(start, path, false)
	fs.l.End()
	return ip, err
}

// ResolveParent walks path to the directory that would hold its final
// element, returning that directory and the element's name.
func (fs *FileSys) ResolveParent(start *inode.Inode, path string) (*inode.Inode, string, error) {
	fs.l.Begin()
	dp, name, err := fs.namex(start, path, true)
	fs.l.End()
	return dp, name, err
}
