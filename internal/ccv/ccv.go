// Package ccv implements the cross-causal value: a vector clock, a map of
// dependency clocks, and an opaque set-valued payload. A Value forms a
// join-semilattice; Merge implements the same three-way split as
// causal_cache_utils.cpp's causal_comparison/causal_merge.
package ccv

import "github.com/rise-lab/causalcache/internal/vclock"

// Payload is the opaque application value carried alongside a clock. It is
// a set of strings closed under union, the simplest join-semilattice that
// can absorb concurrent writers without losing either side.
type Payload map[string]struct{}

// NewPayload builds a Payload from the given elements.
func NewPayload(elems ...string) Payload {
	p := make(Payload, len(elems))
	for _, e := range elems {
		p[e] = struct{}{}
	}
	return p
}

// Copy returns a shallow copy of p.
func (p Payload) Copy() Payload {
	out := make(Payload, len(p))
	for k := range p {
		out[k] = struct{}{}
	}
	return out
}

// Union returns the set union of p and other without mutating either.
func (p Payload) Union(other Payload) Payload {
	out := make(Payload, len(p)+len(other))
	for k := range p {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Slice returns the payload's elements in no particular order.
func (p Payload) Slice() []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	return out
}

// Value is a cross-causal value: a vector clock, a map of the clocks this
// value's writer had observed for each dependency key at write time, and
// the payload itself.
type Value struct {
	VC      vclock.Clock
	Deps    map[string]vclock.Clock
	Payload Payload
}

// New builds a Value with the given clock and payload and an empty
// dependency map.
func New(vc vclock.Clock, payload Payload) Value {
	return Value{VC: vc, Deps: map[string]vclock.Clock{}, Payload: payload}
}

// Empty returns the zero Value, used as the does-not-exist sentinel: an
// empty VC compares as Dominated by anything non-empty.
func Empty() Value {
	return Value{VC: vclock.New(), Deps: map[string]vclock.Clock{}, Payload: Payload{}}
}

// IsEmpty reports whether v carries no clock information, i.e. represents
// a key the KVS reported as not existing.
func (v Value) IsEmpty() bool {
	return v.VC.IsEmpty()
}

// Clone returns a deep copy of v, safe to mutate independently. Used
// whenever a Value is pinned into the version store: once pinned it must
// never be mutated by a later merge into the causal-cut store.
func (v Value) Clone() Value {
	out := Value{
		VC:      v.VC.Copy(),
		Deps:    make(map[string]vclock.Clock, len(v.Deps)),
		Payload: v.Payload.Copy(),
	}
	for k, d := range v.Deps {
		out.Deps[k] = d.Copy()
	}
	return out
}

// MergeDeps returns the pointwise-max merge of two dependency maps, used
// by Merge's concurrent branch.
func MergeDeps(lhs, rhs map[string]vclock.Clock) map[string]vclock.Clock {
	out := make(map[string]vclock.Clock, len(lhs)+len(rhs))
	for k, v := range lhs {
		out[k] = v.Copy()
	}
	for k, v := range rhs {
		if existing, ok := out[k]; ok {
			out[k] = vclock.Merge(existing, v)
		} else {
			out[k] = v.Copy()
		}
	}
	return out
}

// Merge combines self and other per the cross-causal lattice: if other's
// clock dominates-or-equals self's, other wins outright (replace); if
// self already dominates-or-equals other, self wins (no-op); otherwise the
// writes are concurrent and the result merges clocks, dependency maps, and
// payloads. Merge never mutates self or other; it returns the result.
func Merge(self, other Value) Value {
	switch vclock.Compare(other.VC, self.VC) {
	case vclock.DominatesOrEqual:
		return other.Clone()
	case vclock.Dominated:
		return self.Clone()
	default:
		return Value{
			VC:      vclock.Merge(self.VC, other.VC),
			Deps:    MergeDeps(self.Deps, other.Deps),
			Payload: self.Payload.Union(other.Payload),
		}
	}
}

// MergeInto merges other into *self in place, mirroring the original's
// do_merge which mutates the receiving lattice. Returns true if self
// changed.
func MergeInto(self *Value, other Value) bool {
	before := self.VC
	merged := Merge(*self, other)
	if vclock.Equal(merged.VC, before) {
		return false
	}
	*self = merged
	return true
}
