package super

import (
	"testing"

	"github.com/garentyler/xv6-riscv/common"
	"github.com/stretchr/testify/assert"
	"github.com/tchajed/goose/machine/disk"
)

func TestLayout(t *testing.T) {
	assert := assert.New(t)
	sb := MkFsSuper(2000, 200)

	assert.Equal(uint64(2), sb.LogStart)
	assert.Equal(sb.LogStart+sb.Nlog, sb.InodeStart, "inodes follow the log")
	assert.Less(sb.InodeStart, sb.BmapStart)
	assert.Less(sb.BmapStart, sb.DataStart())
	assert.Equal(sb.Size, sb.DataStart()+sb.Nblocks, "data runs to the end")

	// log region holds the header plus every body slot
	assert.Equal(sb.LogHdr()+1, sb.LogBody(0))
	assert.Less(sb.LogBody(common.LOGSIZE-1), sb.InodeStart)

	// all inodes fall inside the inode region
	last := common.Inum(sb.Ninodes - 1)
	assert.Less(sb.InodeBlock(last), sb.BmapStart)
	assert.Less(sb.InodeOffset(last), disk.BlockSize)
}

func TestEncodeDecode(t *testing.T) {
	assert := assert.New(t)
	sb := MkFsSuper(2000, 200)

	d := disk.NewMemDisk(2000)
	d.Write(SUPERBLK, sb.Encode())
	got := Load(d)
	assert.Equal(sb, got)
}

func TestLoadRejectsUnformatted(t *testing.T) {
	d := disk.NewMemDisk(10)
	assert.Panics(t, func() { Load(d) })
}

func TestTooSmall(t *testing.T) {
	assert.Panics(t, func() { MkFsSuper(common.LOGSIZE, 1) })
}
