package voice

// Pool is a fixed-capacity set of voice slots. New notes allocate a free
// slot; when every slot is still sounding, the pool steals the oldest
// releasing (lowest-priority, already note_on=false) voice, or failing
// that the oldest voice of any state.
type Pool struct {
	voices []*Voice
	age    []uint64
	clock  uint64
}

// NewPool allocates size voice slots at the given sample rate.
func NewPool(size int, sampleRate float64) *Pool {
	p := &Pool{voices: make([]*Voice, size), age: make([]uint64, size)}
	for i := range p.voices {
		p.voices[i] = New(sampleRate)
	}
	return p
}

// Len returns the pool's fixed capacity.
func (p *Pool) Len() int { return len(p.voices) }

// Voice returns the slot at index.
func (p *Pool) Voice(index int) *Voice { return p.voices[index] }

// Reclaim releases any voice slots that have gone silent since the last
// call, so Allocate can find them free again.
func (p *Pool) Reclaim() {
	for _, v := range p.voices {
		if v.Active && v.Silent() {
			v.Active = false
		}
	}
}

// Allocate finds a slot for a new note: a free slot if one exists,
// otherwise the oldest releasing voice, otherwise the oldest active
// voice of any state (steal-releasing-or-oldest policy). It returns the
// slot index and whether an existing voice was stolen.
func (p *Pool) Allocate() (index int, stole bool) {
	p.clock++
	for i, v := range p.voices {
		if !v.Active {
			p.age[i] = p.clock
			return i, false
		}
	}
	oldestReleasing, oldestReleasingAge := -1, ^uint64(0)
	oldestAny, oldestAnyAge := -1, ^uint64(0)
	for i, v := range p.voices {
		if p.age[i] < oldestAnyAge {
			oldestAny, oldestAnyAge = i, p.age[i]
		}
		if !v.NoteOn && p.age[i] < oldestReleasingAge {
			oldestReleasing, oldestReleasingAge = i, p.age[i]
		}
	}
	victim := oldestAny
	if oldestReleasing >= 0 {
		victim = oldestReleasing
	}
	p.age[victim] = p.clock
	return victim, true
}

// Active returns the currently-active voices, for a device
// graph node to pull a block's worth of audio from.
func (p *Pool) Active() []*Voice {
	var out []*Voice
	for _, v := range p.voices {
		if v.Active {
			out = append(out, v)
		}
	}
	return out
}
