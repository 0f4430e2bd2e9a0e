package memory

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/23skdu/slotarena/internal/diag"
	"github.com/23skdu/slotarena/internal/errors"
	"github.com/23skdu/slotarena/internal/metrics"
)

// SlotAlign is the boundary every slot is rounded up to.
const SlotAlign = 16

const noIndex = -1

// Handle names one allocation in a Pool. Gen is bumped each time the slot is
// handed out, so a handle kept across a free and a reuse is detected as
// stale. The zero Handle is never valid.
//
// Gen is unrelated to the caller-assigned mark generation used by Sweep.
type Handle struct {
	Index uint32
	Gen   uint32
}

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.Index, h.Gen)
}

// entry is the per-slot metadata. It holds no Go pointers so the table can
// live in arena memory.
type entry struct {
	nextFree   int32
	generation int32 // caller-assigned mark generation
	handleGen  uint32
	allocated  bool
	marked     bool
}

// Pool is a fixed-capacity allocator of uniformly sized slots carved from an
// Arena. Allocation pops the head of an intrusive free list and Free pushes
// the slot back onto the front, so the most recently freed slot is reused
// first.
//
// Running out of slots, asking for the wrong element type and passing a
// handle the pool does not own are contract violations: they are logged at
// Error and handed to the Env's fatal policy.
//
// A Pool never owns memory. It is reclaimed when its arena is cleared or
// released, after which every call fails with errors.ErrInvalidated.
type Pool struct {
	arena      *Arena
	arenaEpoch uint64
	env        *Env
	label      string

	backing []byte
	entries []entry
	sites   []Site

	slotSize        int
	alignedSlotSize int
	maxCount        int
	count           int
	firstFree       int32

	typeTag string
	site    Site
}

// AlignedSlotSize rounds slotSize up to the next multiple of SlotAlign.
func AlignedSlotSize(slotSize int) int {
	return alignUp(slotSize, SlotAlign)
}

// NewPool carves storage for maxCount slots of slotSize bytes, plus the entry
// table, from arena. All slots start free and are linked in ascending order.
func NewPool(arena *Arena, slotSize, maxCount int, typeTag string) (*Pool, error) {
	return newPool(arena, slotSize, maxCount, typeTag, callerSite(1))
}

func newPool(arena *Arena, slotSize, maxCount int, typeTag string, site Site) (*Pool, error) {
	if arena == nil {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument, "pool.construct", typeTag, "nil arena at %s", site)
	}
	env := arena.env
	if slotSize <= 0 || maxCount <= 0 || maxCount > math.MaxInt32 {
		err := errors.Newf(errors.ErrorTypeInvalidArgument, "pool.construct", typeTag,
			"invalid layout slot_size:%d count:%d at %s", slotSize, maxCount, site)
		env.logf(diag.Error, "%s", err.Error())
		return nil, err
	}

	if slotSize > math.MaxInt-SlotAlign || AlignedSlotSize(slotSize) > math.MaxInt/maxCount {
		err := errors.Newf(errors.ErrorTypeInvalidArgument, "pool.construct", typeTag,
			"layout overflows slot_size:%d count:%d at %s", slotSize, maxCount, site)
		env.logf(diag.Error, "%s", err.Error())
		return nil, err
	}

	env.logf(diag.Info, "memory alloc '%s' count:%d", typeTag, maxCount)

	aligned := AlignedSlotSize(slotSize)
	saved := arena.cursor
	backing, err := arena.allocAligned(maxCount*aligned, SlotAlign, "memory pool slots")
	if err == nil && backing == nil {
		err = errors.New(errors.ErrorTypeInvalidArgument, "pool.construct", typeTag, "empty slot storage")
	}
	if err != nil {
		return nil, err
	}
	entryBytes, err := arena.allocAligned(maxCount*int(unsafe.Sizeof(entry{})), int(unsafe.Alignof(entry{})), "memory pool entries")
	if err == nil && entryBytes == nil {
		err = errors.New(errors.ErrorTypeInvalidArgument, "pool.construct", typeTag, "empty entry table")
	}
	if err != nil {
		// Give back the slot storage carved above.
		arena.cursor = saved
		arena.observe()
		return nil, err
	}

	p := &Pool{
		arena:           arena,
		arenaEpoch:      arena.epoch,
		env:             env,
		label:           arena.name + "/" + typeTag,
		backing:         backing,
		entries:         unsafe.Slice((*entry)(unsafe.Pointer(&entryBytes[0])), maxCount),
		sites:           make([]Site, maxCount),
		slotSize:        slotSize,
		alignedSlotSize: aligned,
		maxCount:        maxCount,
		typeTag:         typeTag,
		site:            site,
	}
	p.initializeEntries()
	env.registerPool(p)
	if env.metrics {
		metrics.PoolCapacitySlots.WithLabelValues(p.label).Set(float64(maxCount))
		metrics.PoolLiveSlots.WithLabelValues(p.label).Set(0)
	}
	return p, nil
}

// initializeEntries links every slot into the free list in ascending order.
// Handle generations survive so handles from before a Clear stay stale.
func (p *Pool) initializeEntries() {
	for i := range p.entries {
		e := &p.entries[i]
		e.allocated = false
		e.nextFree = int32(i + 1)
		p.sites[i] = Site{}
	}
	p.entries[len(p.entries)-1].nextFree = noIndex
	p.firstFree = 0
	p.count = 0
}

// Alloc checks typeTag and size against the pool's declared element type
// and pops a free slot. The slot contents are whatever its previous owner
// left behind.
func (p *Pool) Alloc(typeTag string, size int) (Handle, error) {
	return p.alloc(typeTag, size, "pool.alloc", 2)
}

// Calloc is Alloc followed by zeroing the slot's first SlotSize bytes.
func (p *Pool) Calloc(typeTag string, size int) (Handle, error) {
	h, err := p.alloc(typeTag, size, "pool.calloc", 2)
	if err != nil {
		return h, err
	}
	clear(p.slot(int(h.Index)))
	return h, nil
}

// alloc records the site skip frames above itself as the allocation site.
func (p *Pool) alloc(typeTag string, size int, op string, skip int) (Handle, error) {
	if p == nil {
		return Handle{}, errors.NewInvalidArgument(op, typeTag, "pool is null")
	}
	if err := p.check(op); err != nil {
		return Handle{}, err
	}
	if typeTag != p.typeTag {
		return Handle{}, p.fail(errors.NewTypeMismatch(op, p.label,
			fmt.Sprintf("type name mismatch, expected %s received %s", p.typeTag, typeTag)))
	}
	if size != p.slotSize {
		return Handle{}, p.fail(errors.NewTypeMismatch(op, p.label,
			fmt.Sprintf("struct size mismatch, expected %d received %d", p.slotSize, size)))
	}
	if p.firstFree == noIndex {
		return Handle{}, p.fail(errors.NewOutOfCapacity(op, p.label,
			fmt.Sprintf("out of memory in pool (%d) %s %s", p.count, p.typeTag, p.site)).AsFatal())
	}

	index := p.firstFree
	e := &p.entries[index]
	p.firstFree = e.nextFree
	e.nextFree = noIndex
	e.allocated = true
	e.handleGen++
	if e.handleGen == 0 {
		e.handleGen = 1
	}
	p.sites[index] = callerSite(skip)
	p.count++

	if p.env.metrics {
		metrics.PoolAllocationsTotal.WithLabelValues(p.label).Inc()
		metrics.PoolLiveSlots.WithLabelValues(p.label).Set(float64(p.count))
	}
	return Handle{Index: uint32(index), Gen: e.handleGen}, nil
}

// Free returns the slot behind h to the front of the free list.
func (p *Pool) Free(h Handle) error {
	index, err := p.resolve(h, "pool.free")
	if err != nil {
		return err
	}
	p.release(index, "free")
	return nil
}

func (p *Pool) release(index int, path string) {
	e := &p.entries[index]
	e.allocated = false
	e.nextFree = p.firstFree
	p.firstFree = int32(index)
	p.count--
	if p.env.metrics {
		metrics.PoolFreesTotal.WithLabelValues(p.label, path).Inc()
		metrics.PoolLiveSlots.WithLabelValues(p.label).Set(float64(p.count))
	}
}

// Bytes returns the SlotSize bytes of the slot behind h.
func (p *Pool) Bytes(h Handle) ([]byte, error) {
	index, err := p.resolve(h, "pool.bytes")
	if err != nil {
		return nil, err
	}
	return p.slot(index), nil
}

// Offset returns the byte offset of h's slot from the start of the pool's
// slot storage: always Index * AlignedSlotSize.
func (p *Pool) Offset(h Handle) (int, error) {
	index, err := p.resolve(h, "pool.offset")
	if err != nil {
		return 0, err
	}
	return index * p.alignedSlotSize, nil
}

// Pointer projects an index straight onto its slot, allocated or not. It is
// meant for owners that track their own indices and iterate by position.
func (p *Pool) Pointer(index int) []byte {
	start := index * p.alignedSlotSize
	return p.backing[start : start+p.slotSize : start+p.slotSize]
}

// Handle returns the current handle of an allocated index.
func (p *Pool) Handle(index int) (Handle, bool) {
	if index < 0 || index >= p.maxCount || !p.entries[index].allocated {
		return Handle{}, false
	}
	return Handle{Index: uint32(index), Gen: p.entries[index].handleGen}, true
}

// Site returns where the slot behind h was allocated.
func (p *Pool) Site(h Handle) (Site, error) {
	index, err := p.resolve(h, "pool.site")
	if err != nil {
		return Site{}, err
	}
	return p.sites[index], nil
}

// Clear returns every slot to the free list without touching slot memory.
// Outstanding handles become stale.
func (p *Pool) Clear() error {
	if err := p.check("pool.clear"); err != nil {
		return err
	}
	freed := p.count
	p.initializeEntries()
	if p.env.metrics {
		metrics.PoolFreesTotal.WithLabelValues(p.label, "clear").Add(float64(freed))
		metrics.PoolLiveSlots.WithLabelValues(p.label).Set(0)
	}
	return nil
}

func (p *Pool) slot(index int) []byte {
	return p.Pointer(index)
}

// resolve validates h and returns its index. Out-of-range handles are
// invalid frees; handles to a free or reused slot are stale.
func (p *Pool) resolve(h Handle, op string) (int, error) {
	if p == nil {
		return 0, errors.NewInvalidArgument(op, "", "pool is null")
	}
	if err := p.check(op); err != nil {
		return 0, err
	}
	if h.Index >= uint32(p.maxCount) {
		return 0, p.fail(errors.NewInvalidFree(op, p.label,
			fmt.Sprintf("handle %s outside pool of %d slots", h, p.maxCount)))
	}
	e := &p.entries[h.Index]
	if !e.allocated || e.handleGen != h.Gen {
		return 0, p.fail(errors.NewStaleHandle(op, p.label,
			fmt.Sprintf("handle %s does not name a live slot (allocated:%t gen:%d)", h, e.allocated, e.handleGen)))
	}
	return int(h.Index), nil
}

// check fails once the arena the pool was carved from has moved on.
func (p *Pool) check(op string) error {
	if !p.Valid() {
		return p.fail(errors.NewInvalidated(op, p.label,
			fmt.Sprintf("arena '%s' was cleared or released", p.arena.name)))
	}
	return nil
}

// Valid reports whether the arena behind p still holds its storage.
func (p *Pool) Valid() bool {
	return p != nil && p.arena.epoch == p.arenaEpoch && p.arena.Valid()
}

func (p *Pool) fail(err *errors.StructuredError) error {
	return p.env.fatal(p.label, err)
}

func (p *Pool) TypeTag() string      { return p.typeTag }
func (p *Pool) Count() int           { return p.count }
func (p *Pool) MaxCount() int        { return p.maxCount }
func (p *Pool) SlotSize() int        { return p.slotSize }
func (p *Pool) AlignedSlotSize() int { return p.alignedSlotSize }
func (p *Pool) Arena() *Arena        { return p.arena }
func (p *Pool) ConstructedAt() Site  { return p.site }
func (p *Pool) Label() string        { return p.label }
func (p *Pool) BackingLen() int      { return len(p.backing) }
func (p *Pool) EntryCount() int      { return len(p.entries) }
func (p *Pool) Available() int       { return p.maxCount - p.count }

// DebugString renders "pool <tag> count:<n> max:<m>".
func (p *Pool) DebugString() string {
	return fmt.Sprintf("pool %s count:%d max:%d", p.typeTag, p.count, p.maxCount)
}

// PrintDebug logs DebugString at Info. It never changes pool state.
func (p *Pool) PrintDebug() {
	p.env.logf(diag.Info, "%s", p.DebugString())
}
