package cache

import (
	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/kvsclient"
	"github.com/rise-lab/causalcache/internal/vclock"
)

// findLatticeFromInPreparation scans every in-progress closure for a value
// already collected for key whose clock dominates-or-equals vc. Grounded
// on find_lattice_from_in_preparation: the original notes that returning
// the first match rather than the maximal one only costs extra resolution
// work, never correctness, so this does the same.
func (s *State) findLatticeFromInPreparation(key string, vc vclock.Clock) (ccv.Value, bool) {
	for _, closure := range s.InPreparation {
		if value, ok := closure.Values[key]; ok && vclock.Dominates(value.VC, vc) {
			return value, true
		}
	}
	return ccv.Value{}, false
}

// populateInPreparation merges value for depKey into headKey's closure,
// returning true if the closure actually changed (i.e. recursion into
// value's own dependencies is warranted). Grounded on
// populate_in_preparation.
func (s *State) populateInPreparation(headKey, depKey string, value ccv.Value) bool {
	closure := s.InPreparation[headKey]
	if closure == nil {
		closure = newClosure()
		s.InPreparation[headKey] = closure
	}

	existing, ok := closure.Values[depKey]
	if !ok {
		closure.Values[depKey] = value.Clone()
		return true
	}
	if !ccv.MergeInto(&existing, value) {
		return false
	}
	closure.Values[depKey] = existing
	return true
}

// recursiveDependencyCheck walks value's dependency map for headKey,
// resolving each dependency from the causal-cut store, the in-preparation
// area, or the unmerged store before falling back to an asynchronous KVS
// get registered in the cover map. Grounded on recursive_dependency_check;
// termination is guaranteed by the same argument as the original:
// populateInPreparation only triggers further recursion when the closure
// strictly grows in the lattice, and the lattice has finite depth for any
// concrete write history.
func (s *State) recursiveDependencyCheck(headKey string, value ccv.Value, kvs kvsclient.KvsAsyncClient) {
	closure := s.InPreparation[headKey]
	if closure == nil {
		closure = newClosure()
		s.InPreparation[headKey] = closure
	}

	for depKey, depVC := range value.Deps {
		if cut, ok := s.CausalCut[depKey]; ok && vclock.Dominates(cut.VC, depVC) {
			continue
		}

		if prepValue, ok := s.findLatticeFromInPreparation(depKey, depVC); ok {
			if s.populateInPreparation(headKey, depKey, prepValue) {
				s.recursiveDependencyCheck(headKey, prepValue, kvs)
			}
			continue
		}

		if unmerged, ok := s.Unmerged[depKey]; ok && vclock.Dominates(unmerged.VC, depVC) {
			if s.populateInPreparation(headKey, depKey, unmerged) {
				s.recursiveDependencyCheck(headKey, unmerged, kvs)
			}
			continue
		}

		closure.ToFetch[depKey] = struct{}{}
		s.registerCover(depKey, depVC, headKey)
		kvs.GetAsync(depKey)
	}
}

// registerCover records that headKey is waiting on depKey reaching at
// least depVC, the reverse index a KVS get response walks in
// resolveCoverMap (called from HandleKVSGetResponse). Grounded on cover_map's insertion sites in
// recursive_dependency_check.
func (s *State) registerCover(depKey string, depVC vclock.Clock, headKey string) {
	for _, entry := range s.CoverMap[depKey] {
		if vclock.Equal(entry.Clock, depVC) {
			entry.Heads[headKey] = struct{}{}
			return
		}
	}
	s.CoverMap[depKey] = append(s.CoverMap[depKey], &CoverEntry{
		Clock: depVC.Copy(),
		Heads: map[string]struct{}{headKey: {}},
	})
}

// populateCausalFrontier maintains the antichain of vector clocks that
// clients have declared as prior causal chains for key: any existing frontier entry dominated
// by vc is dropped, and vc itself is skipped if an existing entry already
// dominates it. Grounded on populate_causal_frontier.
func (s *State) populateCausalFrontier(key string, vc vclock.Clock) {
	frontier := s.CausalFrontier[key]

	for _, existing := range frontier {
		if vclock.Dominates(existing, vc) {
			return
		}
	}

	kept := frontier[:0]
	for _, existing := range frontier {
		if !vclock.Dominates(vc, existing) {
			kept = append(kept, existing)
		}
	}
	s.CausalFrontier[key] = append(kept, vc.Copy())
}
