// Package wal is a write-ahead log of whole blocks. Callers bracket
// each logical operation with Begin/End and route every block
// mutation through Write instead of writing the device. All
// operations active between two commits share one on-disk
// transaction (group commit); the transaction becomes visible
// atomically when the log header reaches the disk.
//
// The log occupies a fixed extent: one header block naming up to
// LOGSIZE destination blocks, then LOGSIZE body slots holding their
// content. Begin's admission control reserves MAXOPBLOCKS per active
// operation so the extent can never overflow mid-transaction.
package wal

import (
	"sync"

	"github.com/garentyler/xv6-riscv/bcache"
	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/super"
	"github.com/garentyler/xv6-riscv/util"
)

type Log struct {
	mu   *sync.Mutex // short-hold; guards the fields below
	cond *sync.Cond  // admission and drain waiters

	bc  *bcache.Bcache
	dev uint64
	sb  *super.FsSuper

	outstanding uint64        // operations begun and not yet ended
	committing  bool          // a commit is running; nobody may begin
	pending     []common.Bnum // absorbed blocks, in log-slot order
	ncommits    uint64        // completed commits, for tests
}

// MkLog recovers any committed-but-uninstalled transaction before
// returning, so the disk is consistent before the first operation is
// admitted.
func MkLog(bc *bcache.Bcache, dev uint64, sb *super.FsSuper) *Log {
	mu := new(sync.Mutex)
	l := &Log{
		mu:      mu,
		cond:    sync.NewCond(mu),
		bc:      bc,
		dev:     dev,
		sb:      sb,
		pending: make([]common.Bnum, 0, common.LOGSIZE),
	}
	l.recover()
	return l
}

func (l *Log) recover() {
	addrs := l.readHeader()
	if len(addrs) == 0 {
		return
	}
	util.DPrintf(1, "wal: recover %d blocks", len(addrs))
	l.install(addrs, true)
	l.bc.Barrier(l.dev)
	l.writeHeader(nil)
	l.bc.Barrier(l.dev)
}

// Begin admits one bounded operation: at most MAXOPBLOCKS Writes.
// It blocks while a commit is running, or while joining would let the
// building transaction outgrow the log.
func (l *Log) Begin() {
	l.mu.Lock()
	for l.committing ||
		uint64(len(l.pending))+(l.outstanding+1)*common.MAXOPBLOCKS > common.LOGSIZE {
		l.cond.Wait()
	}
	l.outstanding++
	l.mu.Unlock()
}

// Write absorbs b into the building transaction: pins it so the cache
// cannot evict the new content before install, and claims a log slot
// unless the block already has one (a block written twice in one
// transaction commits once, with the latest bytes, because the logged
// unit is the cached block itself).
//
// The caller holds b and an open bracket, and must release b before
// calling End.
func (l *Log) Write(b *bcache.Buf) {
	l.mu.Lock()
	if l.outstanding == 0 {
		panic("wal: write outside a transaction")
	}
	if b.Dev != l.dev {
		panic("wal: buffer from another device")
	}
	if uint64(len(l.pending)) >= common.LOGSIZE {
		panic("wal: transaction too big")
	}
	for _, bn := range l.pending {
		if bn == b.Blkno {
			util.DPrintf(2, "wal: absorb %d", b.Blkno)
			l.mu.Unlock()
			return
		}
	}
	l.pending = append(l.pending, b.Blkno)
	l.bc.Pin(b)
	l.mu.Unlock()
}

// End closes one operation. The last operation out commits the whole
// transaction synchronously on its own goroutine; siblings return
// immediately and their writes ride along.
func (l *Log) End() {
	l.mu.Lock()
	if l.committing {
		panic("wal: end during commit")
	}
	if l.outstanding == 0 {
		panic("wal: end without begin")
	}
	l.outstanding--
	if l.outstanding > 0 {
		// one reservation freed; a waiting Begin may now fit
		l.cond.Broadcast()
		l.mu.Unlock()
		return
	}
	l.committing = true
	addrs := l.pending
	l.mu.Unlock()

	l.commit(addrs)

	l.mu.Lock()
	l.pending = l.pending[:0]
	l.committing = false
	l.ncommits++
	l.cond.Broadcast()
	l.mu.Unlock()
}

// commit makes addrs durable as one atomic transaction:
// body, barrier, header (the commit point), barrier, install, barrier,
// clear header, barrier. A crash before the header write loses the
// transaction cleanly; a crash after it is finished by recover. The
// final barrier keeps a stale header from outliving the next
// transaction's body writes.
func (l *Log) commit(addrs []common.Bnum) {
	if len(addrs) == 0 {
		return
	}
	util.DPrintf(1, "wal: commit %d blocks", len(addrs))
	l.writeBody(addrs)
	l.bc.Barrier(l.dev)
	l.writeHeader(addrs)
	l.bc.Barrier(l.dev)
	l.install(addrs, false)
	l.bc.Barrier(l.dev)
	l.writeHeader(nil)
	l.bc.Barrier(l.dev)
}

// writeBody copies each absorbed block's cached content into its log
// slot. The sources are pinned and no operation is active, so the
// cache still holds exactly the committed bytes.
func (l *Log) writeBody(addrs []common.Bnum) {
	for i, bn := range addrs {
		to := l.bc.Get(l.dev, l.sb.LogBody(uint64(i)))
		from := l.bc.Get(l.dev, bn)
		copy(to.Data, from.Data)
		l.bc.WriteBack(to)
		l.bc.Release(from)
		l.bc.Release(to)
	}
}

// install copies logged blocks from the body slots to their home
// locations. During normal commit it also drops the pins taken by
// Write; during recovery there are no pins.
func (l *Log) install(addrs []common.Bnum, recovering bool) {
	for i, bn := range addrs {
		lbuf := l.bc.Get(l.dev, l.sb.LogBody(uint64(i)))
		dbuf := l.bc.Get(l.dev, bn)
		copy(dbuf.Data, lbuf.Data)
		l.bc.WriteBack(dbuf)
		if !recovering {
			l.bc.Unpin(dbuf)
		}
		l.bc.Release(lbuf)
		l.bc.Release(dbuf)
	}
}

// Shutdown waits until no operation is open and no commit is running.
// The log keeps no goroutines of its own; this exists so a clean
// unmount can assert quiescence before tearing down the cache.
func (l *Log) Shutdown() {
	l.mu.Lock()
	for l.outstanding > 0 || l.committing {
		l.cond.Wait()
	}
	l.mu.Unlock()
}
