// Package bcache is a fixed-capacity cache of device blocks. Every
// block read or write in the file system goes through it: layers
// above never touch a disk.Disk directly. A block lives in at most
// one slot, so two callers naming the same (device, block) always see
// the same bytes.
package bcache

import (
	"sync"

	"github.com/garentyler/xv6-riscv/common"
	"github.com/garentyler/xv6-riscv/util"
	"github.com/negrel/assert"
	"github.com/tchajed/goose/machine/disk"
)

// Buf is one cache slot. Data may be touched only between Get and
// Release, while the buffer's lock is held.
type Buf struct {
	Dev   uint64
	Blkno common.Bnum
	Data  disk.Block

	mu    *sync.Mutex // long-hold; owner may block on device I/O
	valid bool        // Data holds the block's content; owned by mu

	// owned by the cache lock
	refcnt  uint64
	pins    uint64
	lastUse uint64
}

type devblk struct {
	dev uint64
	bn  common.Bnum
}

type Bcache struct {
	mu    *sync.Mutex // short-hold; never held across I/O
	disks []disk.Disk // indexed by device id, fixed at attach time
	bufs  []Buf
	slots map[devblk]uint64 // identity -> index into bufs
	tick  uint64            // release order for eviction
}

func MkBcache(nbufs uint64) *Bcache {
	bc := &Bcache{
		mu:    new(sync.Mutex),
		disks: make([]disk.Disk, common.NDEV),
		bufs:  make([]Buf, nbufs),
		slots: make(map[devblk]uint64),
	}
	for i := range bc.bufs {
		bc.bufs[i].mu = new(sync.Mutex)
		bc.bufs[i].Data = make(disk.Block, disk.BlockSize)
	}
	return bc
}

// AttachDisk binds a device id. Attach everything before the first
// Get; the device table is not guarded afterwards.
func (bc *Bcache) AttachDisk(dev uint64, d disk.Disk) {
	if dev >= common.NDEV {
		panic("bcache: device id out of range")
	}
	if bc.disks[dev] != nil {
		panic("bcache: device already attached")
	}
	bc.disks[dev] = d
}

func (bc *Bcache) disk(dev uint64) disk.Disk {
	d := bc.disks[dev]
	if d == nil {
		panic("bcache: unattached device")
	}
	return d
}

// Get returns the buffer for (dev, blkno) with its lock held, reading
// the block from the device if no holder has loaded it yet. Blocks
// until any prior holder releases. Running out of evictable slots is
// fatal: it means too many buffers are held at once.
func (bc *Bcache) Get(dev uint64, blkno common.Bnum) *Buf {
	key := devblk{dev, blkno}

	bc.mu.Lock()
	if i, ok := bc.slots[key]; ok {
		b := &bc.bufs[i]
		b.refcnt++
		bc.mu.Unlock()
		b.mu.Lock()
		bc.load(b)
		return b
	}

	// Not cached: recycle the least-recently-released slot. A slot
	// with refcnt == 0 has no lock holder (Release unlocks first), so
	// taking its lock below cannot block.
	victimIdx := -1
	for i := range bc.bufs {
		b := &bc.bufs[i]
		if b.refcnt == 0 && b.pins == 0 {
			if victimIdx < 0 || b.lastUse < bc.bufs[victimIdx].lastUse {
				victimIdx = i
			}
		}
	}
	if victimIdx < 0 {
		panic("bcache: no buffers")
	}
	victim := &bc.bufs[victimIdx]
	if victim.valid {
		delete(bc.slots, devblk{victim.Dev, victim.Blkno})
		util.DPrintf(3, "bcache: evict %d.%d for %d.%d", victim.Dev, victim.Blkno, dev, blkno)
	}
	victim.Dev = dev
	victim.Blkno = blkno
	victim.valid = false
	victim.refcnt = 1
	bc.slots[key] = uint64(victimIdx)
	bc.mu.Unlock()

	victim.mu.Lock()
	bc.load(victim)
	return victim
}

// load fills Data on first touch. Caller holds b's lock; the load is
// done here, not under the cache lock, so other slots stay usable
// while the device works.
func (bc *Bcache) load(b *Buf) {
	if !b.valid {
		b.Data = bc.disk(b.Dev).Read(b.Blkno)
		b.valid = true
	}
}

// Release unlocks b and drops the caller's reference. At refcnt zero
// the slot becomes evictable and moves to the most-recently-used end
// of the eviction order.
func (bc *Bcache) Release(b *Buf) {
	b.mu.Unlock()
	bc.mu.Lock()
	if b.refcnt == 0 {
		panic("bcache: release of unreferenced buffer")
	}
	b.refcnt--
	if b.refcnt == 0 {
		bc.tick++
		b.lastUse = bc.tick
	}
	bc.mu.Unlock()
}

// WriteBack writes b's payload to the device synchronously. Only the
// log calls this for data inside a transaction; everything else must
// go through the log's Write.
func (bc *Bcache) WriteBack(b *Buf) {
	assert.True(b.valid, "write-back of unloaded buffer")
	bc.disk(b.Dev).Write(b.Blkno, b.Data)
}

// Pin exempts b's slot from eviction. Pins stack, and are counted
// separately from references: a pinned, unreferenced slot keeps its
// identity but cannot be recycled.
func (bc *Bcache) Pin(b *Buf) {
	bc.mu.Lock()
	assert.Greater(b.refcnt, uint64(0), "pin of unreferenced buffer")
	b.pins++
	bc.mu.Unlock()
}

func (bc *Bcache) Unpin(b *Buf) {
	bc.mu.Lock()
	if b.pins == 0 {
		panic("bcache: unpin of unpinned buffer")
	}
	b.pins--
	bc.mu.Unlock()
}

// Barrier orders previously written blocks on the device; the log
// brackets its commit point with it.
func (bc *Bcache) Barrier(dev uint64) {
	bc.disk(dev).Barrier()
}

// Shutdown checks that every slot has been released and unpinned,
// then detaches all devices. For test isolation; does not close the
// underlying disks (their opener owns them).
func (bc *Bcache) Shutdown() {
	bc.mu.Lock()
	for i := range bc.bufs {
		b := &bc.bufs[i]
		if b.refcnt != 0 {
			panic("bcache: shutdown with live buffer")
		}
		if b.pins != 0 {
			panic("bcache: shutdown with pinned buffer")
		}
	}
	for i := range bc.disks {
		bc.disks[i] = nil
	}
	bc.mu.Unlock()
}
