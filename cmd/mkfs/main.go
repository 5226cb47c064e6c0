// mkfs formats a disk image and optionally seeds it with files from
// the host.
//
//	mkfs [-size blocks] [-ninodes n] img [file ...]
package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/garentyler/xv6-riscv/fs"
	"github.com/garentyler/xv6-riscv/mkfs"
	"github.com/garentyler/xv6-riscv/vdisk"
	"github.com/lmittmann/tint"
)

func main() {
	size := flag.Uint64("size", 2000, "image size in blocks")
	ninodes := flag.Uint64("ninodes", 200, "inode table capacity")
	flag.Parse()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	})))

	if flag.NArg() < 1 {
		slog.Error("usage: mkfs [flags] img [file ...]")
		os.Exit(2)
	}
	path := flag.Arg(0)

	d, err := vdisk.NewFileDisk(path, *size)
	if err != nil {
		slog.Error("open image", "path", path, "err", err)
		os.Exit(1)
	}
	sb := mkfs.Format(d, *size, *ninodes)
	slog.Info("formatted", "path", path, "blocks", sb.Size,
		"inodes", sb.Ninodes, "data blocks", sb.Size-sb.DataStart())

	if flag.NArg() > 1 {
		fsys := fs.Mount(d)
		for _, src := range flag.Args()[1:] {
			data, err := os.ReadFile(src)
			if err != nil {
				slog.Error("read", "file", src, "err", err)
				os.Exit(1)
			}
			name := "/" + filepath.Base(src)
			if err := fsys.WriteFile(nil, name, data); err != nil {
				slog.Error("write", "file", name, "err", err)
				os.Exit(1)
			}
			slog.Info("added", "file", name, "bytes", len(data))
		}
		fsys.Shutdown()
	}
	d.Close()
}
