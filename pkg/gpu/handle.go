package gpu

import (
	"fmt"
	"iter"
)

// Handle refers to a resource in an Arena. The generation distinguishes
// successive occupants of the same slot. The zero Handle is never issued.
type Handle struct {
	Index uint32
	Gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.Gen == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.Index, h.Gen)
}

type arenaSlot[T any] struct {
	value T
	gen   uint32
	used  bool
}

// Arena is a slot table of values addressed by generation-tagged handles.
// Removing a value bumps its slot's generation, so every outstanding
// handle to it turns stale rather than pointing at the next occupant.
//
// Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.value = v
		s.used = true
		return Handle{Index: idx, Gen: s.gen}
	}
	a.slots = append(a.slots, arenaSlot[T]{value: v, gen: 1, used: true})
	return Handle{Index: uint32(len(a.slots) - 1), Gen: 1}
}

func (a *Arena[T]) slot(h Handle) *arenaSlot[T] {
	if h.Gen == 0 || int(h.Index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.Index]
	if !s.used || s.gen != h.Gen {
		return nil
	}
	return s
}

// Get returns the value for h, or false if h is stale.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	if s := a.slot(h); s != nil {
		return s.value, true
	}
	var zero T
	return zero, false
}

// Live reports whether h refers to a stored value.
func (a *Arena[T]) Live(h Handle) bool {
	return a.slot(h) != nil
}

// Remove deletes the value for h and returns it.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	s := a.slot(h)
	if s == nil {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.used = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, h.Index)
	a.live--
	return v, true
}

// Len returns the number of stored values.
func (a *Arena[T]) Len() int {
	return a.live
}

// All iterates over live handles and their values in slot order.
func (a *Arena[T]) All() iter.Seq2[Handle, T] {
	return func(yield func(Handle, T) bool) {
		for i := range a.slots {
			s := &a.slots[i]
			if !s.used {
				continue
			}
			if !yield(Handle{Index: uint32(i), Gen: s.gen}, s.value) {
				return
			}
		}
	}
}
