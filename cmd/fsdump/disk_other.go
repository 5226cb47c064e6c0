//go:build !linux

package main

import (
	"errors"

	"github.com/garentyler/xv6-riscv/vdisk"
	"github.com/tchajed/goose/machine/disk"
)

func openDisk(path string, blocks uint64, uring bool) (disk.Disk, func(), error) {
	if uring {
		return nil, nil, errors.New("io_uring is linux-only")
	}
	d, err := vdisk.NewFileDisk(path, blocks)
	if err != nil {
		return nil, nil, err
	}
	return d, d.Close, nil
}
