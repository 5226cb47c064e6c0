// fsdump prints what lives on a disk image: the superblock geometry,
// the state of the write-ahead log, and the directory tree.
//
//	fsdump [-uring] [-tree=false] img
//
// Listing the tree mounts the image, which replays any committed log
// a crash left behind.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/fs"
	"github.com/garentyler/xv6-riscv/super"
	"github.com/garentyler/xv6-riscv/wal"
	"github.com/lmittmann/tint"
	"github.com/tchajed/goose/machine/disk"
)

func main() {
	uring := flag.Bool("uring", false, "access the image through io_uring (linux only)")
	tree := flag.Bool("tree", true, "mount and list the directory tree")
	flag.Parse()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.TimeOnly,
	})))

	if flag.NArg() != 1 {
		slog.Error("usage: fsdump [flags] img")
		os.Exit(2)
	}
	path := flag.Arg(0)

	fi, err := os.Stat(path)
	if err != nil {
		slog.Error("stat image", "path", path, "err", err)
		os.Exit(1)
	}
	blocks := uint64(fi.Size()) / disk.BlockSize
	if blocks == 0 {
		slog.Error("image smaller than one block", "path", path)
		os.Exit(1)
	}

	d, closeDisk, err := openDisk(path, blocks, *uring)
	if err != nil {
		slog.Error("open image", "path", path, "err", err)
		os.Exit(1)
	}
	defer closeDisk()

	sb := super.Load(d)
	fmt.Printf("super: %d blocks, %d inodes, log [%d,%d), inodes at %d, bitmap at %d, data [%d,%d)\n",
		sb.Size, sb.Ninodes, sb.LogStart, sb.LogStart+sb.Nlog,
		sb.InodeStart, sb.BmapStart, sb.DataStart(), sb.Size)

	n, addrs, ok := wal.InspectHeader(d.Read(sb.LogHdr()))
	switch {
	case !ok:
		fmt.Printf("log: unsound header (count %d), a mount will discard it\n", n)
	case n == 0:
		fmt.Println("log: empty")
	default:
		fmt.Printf("log: %d committed blocks awaiting install: %v\n", n, addrs)
	}

	if *tree {
		fsys := fs.Mount(d)
		fmt.Println("/")
		if err := walk(fsys, "/", 1); err != nil {
			slog.Error("walk", "err", err)
			os.Exit(1)
		}
		fsys.Shutdown()
	}
}

func walk(fsys *fs.FileSys, path string, depth int) error {
	ents, err := fsys.ReadDir(nil, path)
	if err != nil {
		return err
	}
	for _, e := range ents {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		full := path + "/" + e.Name
		if path == "/" {
			full = "/" + e.Name
		}
		st, err := fsys.Stat(nil, full)
		if err != nil {
			return err
		}
		fmt.Printf("%s%-28s %-4s inum %-4d nlink %d size %d\n",
			strings.Repeat("  ", depth), e.Name, kindName(st.Kind),
			st.Inum, st.Nlink, st.Size)
		if st.Kind == common.KindDir {
			if err := walk(fsys, full, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func kindName(kind uint32) string {
	switch kind {
	case common.KindDir:
		return "dir"
	case common.KindFile:
		return "file"
	case common.KindDev:
		return "dev"
	}
	return "free"
}
