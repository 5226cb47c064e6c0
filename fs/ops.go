package fs

import (
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/dir"
	"github.com/garentyler/xv6-riscv/inode"
	"github.com/garentyler/xv6-riscv/util"
)

// Create makes path as a fresh inode of the given kind and returns a
// handle on it. Creating a file over an existing file (or device)
// returns the existing inode instead; anything else that already
// exists is an error. New directories come with "." and ".." and bump
// the parent's link count for the latter.
func (fs *FileSys) Create(start *inode.Inode, path string, kind uint32, major uint32, minor uint32) (*inode.Inode, error) {
	fs.l.Begin()
	ip, err := fs.create(start, path, kind, major, minor)
	fs.l.End()
	return ip, err
}

func (fs *FileSys) create(start *inode.Inode, path string, kind uint32, major uint32, minor uint32) (*inode.Inode, error) {
	dp, name, err := fs.namex(start, path, true)
	if err != nil {
		return nil, err
	}
	dp.Lock()

	if inum, _, ok := dir.Lookup(dp, name); ok {
		// reference the child before releasing the parent, or a racing
		// unlink could free it under us; lock it only after, since the
		// name may be "." and locks are not reentrant
		ip := fs.it.Iget(fs.dev, inum)
		dp.Unlock()
		dp.Put()
		ip.Lock()
		if kind == common.KindFile && (ip.Kind == common.KindFile || ip.Kind == common.KindDev) {
			ip.Unlock()
			return ip, nil
		}
		ip.Unlock()
		ip.Put()
		return nil, dir.ErrExists
	}

	ip, err := fs.it.Alloc(fs.dev, kind, major, minor)
	if err != nil {
		dp.Unlock()
		dp.Put()
		return nil, err
	}
	ip.Nlink = 1
	ip.Update()

	if kind == common.KindDir {
		// the self entry carries no link count, or directories could
		// never be freed
		err = dir.Link(ip, ".", ip.Inum)
		if err == nil {
			err = dir.Link(ip, "..", dp.Inum)
		}
	}
	if err == nil {
		err = dir.Link(dp, name, ip.Inum)
	}
	if err != nil {
		// undo the allocation; the half-made inode was never reachable
		ip.Nlink = 0
		ip.Update()
		ip.Unlock()
		ip.Put()
		dp.Unlock()
		dp.Put()
		return nil, err
	}
	if kind == common.KindDir {
		dp.Nlink++ // the child's ".."
		dp.Update()
	}
	dp.Unlock()
	dp.Put()
	ip.Unlock()
	util.DPrintf(1, "fs: created %q kind %d inum %d", path, kind, ip.Inum)
	return ip, nil
}

// MkDir creates an empty directory at path.
func (fs *FileSys) MkDir(start *inode.Inode, path string) error {
	ip, err := fs.Create(start, path, common.KindDir, 0, 0)
	if err != nil {
		return err
	}
	fs.Close(ip)
	return nil
}

// Open returns a handle on the inode at path.
func (fs *FileSys) Open(start *inode.Inode, path string) (*inode.Inode, error) {
	fs.l.Begin()
	ip, _, err := fs.namex(start, path, false)
	fs.l.End()
	return ip, err
}

// Unlink removes path's directory entry. A directory must be empty to
// go. The inode itself is freed once the last open handle drops.
func (fs *FileSys) Unlink(start *inode.Inode, path string) error {
	fs.l.Begin()
	err := fs.unlink(start, path)
	fs.l.End()
	return err
}

func (fs *FileSys) unlink(start *inode.Inode, path string) error {
	dp, name, err := fs.namex(start, path, true)
	if err != nil {
		return err
	}
	if name == "." || name == ".." {
		dp.Put()
		return ErrInvalid
	}
	dp.Lock()

	inum, off, ok := dir.Lookup(dp, name)
	if !ok {
		dp.Unlock()
		dp.Put()
		return ErrNotFound
	}
	ip := fs.it.Iget(fs.dev, inum)
	ip.Lock()
	if ip.Nlink < 1 {
		panic("fs: unlink of an inode with no links")
	}
	if ip.Kind == common.KindDir && !dir.IsEmpty(ip) {
		ip.Unlock()
		ip.Put()
		dp.Unlock()
		dp.Put()
		return ErrNotEmpty
	}

	dir.Clear(dp, off)
	if ip.Kind == common.KindDir {
		dp.Nlink-- // the child's ".." is gone
		dp.Update()
	}
	dp.Unlock()
	dp.Put()

	ip.Nlink--
	ip.Update()
	ip.Unlock()
	ip.Put()
	util.DPrintf(1, "fs: unlinked %q inum %d", path, inum)
	return nil
}

// Link gives the file at old a second name at new. Directories cannot
// be linked; their shape must stay a tree.
func (fs *FileSys) Link(start *inode.Inode, old string, new string) error {
	fs.l.Begin()
	err := fs.link(start, old, new)
	fs.l.End()
	return err
}

func (fs *FileSys) link(start *inode.Inode, old string, new string) error {
	ip, _, err := fs.namex(start, old, false)
	if err != nil {
		return err
	}
	ip.Lock()
	if ip.Kind == common.KindDir {
		ip.Unlock()
		ip.Put()
		return ErrIsDir
	}
	// count the new name first; undone below if it cannot be written
	ip.Nlink++
	ip.Update()
	ip.Unlock()

	dp, name, err := fs.namex(start, new, true)
	if err == nil {
		dp.Lock()
		err = dir.Link(dp, name, ip.Inum)
		dp.Unlock()
		dp.Put()
	}
	if err != nil {
		ip.Lock()
		ip.Nlink--
		ip.Update()
		ip.Unlock()
		ip.Put()
		return err
	}
	ip.Put()
	return nil
}

// ReadFile returns the whole content of the file at path.
func (fs *FileSys) ReadFile(start *inode.Inode, path string) ([]byte, error) {
	ip, err := fs.Open(start, path)
	if err != nil {
		return nil, err
	}
	ip.Lock()
	if ip.Kind == common.KindDir {
		ip.Unlock()
		fs.Close(ip)
		return nil, ErrIsDir
	}
	data := ip.Read(0, ip.Size)
	ip.Unlock()
	fs.Close(ip)
	return data, nil
}

// WriteFile makes path hold exactly data, creating the file if needed
// and discarding what it held before. The write lands chunk by chunk;
// on a full disk the file keeps the prefix that fit.
func (fs *FileSys) WriteFile(start *inode.Inode, path string, data []byte) error {
	ip, err := fs.Create(start, path, common.KindFile, 0, 0)
	if err != nil {
		return err
	}
	fs.l.Begin()
	ip.Lock()
	ip.Trunc()
	ip.Unlock()
	fs.l.End()

	_, err = fs.WriteAt(ip, 0, data)
	fs.Close(ip)
	return err
}

// ReadDir lists the live entries of the directory at path.
func (fs *FileSys) ReadDir(start *inode.Inode, path string) ([]dir.Ent, error) {
	ip, err := fs.Open(start, path)
	if err != nil {
		return nil, err
	}
	ip.Lock()
	if ip.Kind != common.KindDir {
		ip.Unlock()
		fs.Close(ip)
		return nil, ErrNotDir
	}
	ents := dir.List(ip)
	ip.Unlock()
	fs.Close(ip)
	return ents, nil
}
