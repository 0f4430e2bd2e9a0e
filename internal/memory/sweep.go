package memory

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/23skdu/slotarena/internal/diag"
	"github.com/23skdu/slotarena/internal/metrics"
)

// The pool does not trace anything. A reclamation cycle is driven entirely
// by the owner:
//
//	pool.ClearMarks()
//	for _, h := range reachable { pool.Mark(h, epoch) }
//	freed, _ := pool.Sweep(epoch - keep)
//
// A slot's mark generation persists from the last time it was marked, not
// from when it was allocated.

// ClearMarks drops the keep mark of every slot.
func (p *Pool) ClearMarks() error {
	if err := p.check("pool.clear_marks"); err != nil {
		return err
	}
	for i := range p.entries {
		p.entries[i].marked = false
	}
	return nil
}

// Mark flags the slot behind h as kept and records generation.
func (p *Pool) Mark(h Handle, generation int32) error {
	index, err := p.resolve(h, "pool.mark")
	if err != nil {
		return err
	}
	e := &p.entries[index]
	e.marked = true
	e.generation = generation
	return nil
}

// IsMarked reports the keep mark of the slot behind h.
func (p *Pool) IsMarked(h Handle) (bool, error) {
	index, err := p.resolve(h, "pool.is_marked")
	if err != nil {
		return false, err
	}
	return p.entries[index].marked, nil
}

// Generation returns the mark generation last recorded for h's slot.
func (p *Pool) Generation(h Handle) (int32, error) {
	index, err := p.resolve(h, "pool.generation")
	if err != nil {
		return 0, err
	}
	return p.entries[index].generation, nil
}

// Sweep frees every allocated slot that is not marked and whose mark
// generation is <= maxGeneration, exactly as Free would, and returns how
// many slots it freed. Marks are left as they are.
func (p *Pool) Sweep(maxGeneration int32) (int, error) {
	return p.sweep(maxGeneration, nil)
}

// SweepCollect is Sweep that also reports which indices were freed, so the
// owner can drop its own references to them. The bitmap may be handed back
// with ReleaseBitmap once the owner is done with it.
func (p *Pool) SweepCollect(maxGeneration int32) (*roaring.Bitmap, error) {
	freed := getBitmap()
	if _, err := p.sweep(maxGeneration, freed); err != nil {
		ReleaseBitmap(freed)
		return nil, err
	}
	return freed, nil
}

func (p *Pool) sweep(maxGeneration int32, collect *roaring.Bitmap) (int, error) {
	if err := p.check("pool.sweep"); err != nil {
		return 0, err
	}
	freed := 0
	for i := range p.entries {
		e := &p.entries[i]
		if !e.allocated || e.marked || e.generation > maxGeneration {
			continue
		}
		p.release(i, "sweep")
		if collect != nil {
			collect.Add(uint32(i))
		}
		freed++
	}
	if p.env.metrics {
		metrics.PoolSweepsTotal.WithLabelValues(p.label).Inc()
	}
	p.env.logf(diag.Verbose, "sweep '%s' max_generation:%d freed:%d live:%d", p.label, maxGeneration, freed, p.count)
	return freed, nil
}

// Live returns the set of allocated indices. See ReleaseBitmap.
func (p *Pool) Live() *roaring.Bitmap {
	live := getBitmap()
	for i := range p.entries {
		if p.entries[i].allocated {
			live.Add(uint32(i))
		}
	}
	return live
}
