package wal

import (
	"github.com/cespare/xxhash"
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/util"
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"
)

// On disk the header block is [count][checksum][LOGSIZE addresses].
// The checksum is xxhash64 over the encoded count and addresses. The
// header block is the only sub-block-atomic write the design relies
// on, so a torn header must be detectable: a bad sum reads as an
// empty log.

func sumHeader(addrs []common.Bnum) uint64 {
	enc := marshal.NewEnc(8 + 8*common.LOGSIZE)
	enc.PutInt(uint64(len(addrs)))
	enc.PutInts(addrs)
	return xxhash.Sum64(enc.Finish())
}

// InspectHeader decodes a raw header block, for offline tools as much
// as for the log itself. It returns the committed count, the
// destination blocks, and whether the record is sound; a zero count is
// a clean, sound header.
func InspectHeader(b disk.Block) (uint64, []common.Bnum, bool) {
	dec := marshal.NewDec(b)
	n := dec.GetInt()
	sum := dec.GetInt()
	addrs := dec.GetInts(common.LOGSIZE)
	if n == 0 {
		return 0, nil, true
	}
	if n > common.LOGSIZE {
		return n, nil, false
	}
	addrs = addrs[:n]
	return n, addrs, sum == sumHeader(addrs)
}

// readHeader returns the committed destination blocks, or nil when no
// transaction is pending (count zero, implausible count, or checksum
// mismatch from a torn write).
func (l *Log) readHeader() []common.Bnum {
	b := l.bc.Get(l.dev, l.sb.LogHdr())
	n, addrs, ok := InspectHeader(b.Data)
	l.bc.Release(b)

	if !ok {
		util.DPrintf(1, "wal: bad header (count %d), ignoring", n)
		return nil
	}
	return addrs
}

// writeHeader is the commit point when addrs is non-empty, and marks
// the log free again when it is nil.
func (l *Log) writeHeader(addrs []common.Bnum) {
	if uint64(len(addrs)) > common.LOGSIZE {
		panic("wal: header overflow")
	}
	b := l.bc.Get(l.dev, l.sb.LogHdr())
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(uint64(len(addrs)))
	enc.PutInt(sumHeader(addrs))
	enc.PutInts(addrs)
	copy(b.Data, enc.Finish())
	l.bc.WriteBack(b)
	l.bc.Release(b)
}
