package cache

import (
	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/vclock"
)

// promoteToCausalCut merges a head key's completed dependency closure into
// the causal-cut store and wakes every CROSS waiter blocked on it.
// Grounded on merge_into_causal_cut: every (key, value) pair accumulated in
// the closure is merged into C (an empty value marks the key as not
// existing), then every pending-cross waiter whose to-cover set included
// headKey is notified once that set is fully satisfied.
func (s *State) promoteToCausalCut(headKey string, fire func(addr string)) {
	closure := s.InPreparation[headKey]
	if closure == nil {
		return
	}

	for key, value := range closure.Values {
		if value.IsEmpty() {
			continue
		}
		if existing, ok := s.CausalCut[key]; ok {
			ccv.MergeInto(&existing, value)
			s.CausalCut[key] = existing
		} else {
			s.CausalCut[key] = value.Clone()
		}
	}

	delete(s.InPreparation, headKey)

	for addr, meta := range s.PendingCross {
		if _, waiting := meta.ToCoverSet[headKey]; !waiting {
			continue
		}
		delete(meta.ToCoverSet, headKey)
		if len(meta.ToCoverSet) == 0 {
			fire(addr)
		}
	}
}

// chooseRemote decides whether key must be answered by a peer rather than
// this cache's own causal-cut store: either the key is entirely absent
// locally, or the client declared a prior causal chain for key that
// dominates what this cache holds, meaning a peer has already served the
// client something this cache hasn't caught up to yet. Grounded on
// find_address.
func (s *State) chooseRemote(key string, priorChains []vclock.Clock) bool {
	local, ok := s.CausalCut[key]
	if !ok {
		return true
	}
	for _, prior := range priorChains {
		if vclock.Compare(local.VC, prior) == vclock.Dominated {
			return true
		}
	}
	return false
}

// saveVersions recursively pins causal-cut values into the client's
// version store for every key in futureReadSet reachable from key's
// dependency chain, guarded by observed to avoid revisiting a key twice in
// one walk. Grounded on save_versions.
func (s *State) saveVersions(clientID, key string, futureReadSet map[string]struct{}, observed map[string]struct{}) {
	if _, seen := observed[key]; seen {
		return
	}
	observed[key] = struct{}{}

	value, ok := s.CausalCut[key]
	if !ok {
		return
	}

	if _, wanted := futureReadSet[key]; wanted {
		if _, ok := s.VersionStore[clientID]; !ok {
			s.VersionStore[clientID] = map[string]ccv.Value{}
		}
		s.VersionStore[clientID][key] = value.Clone()
	}

	for depKey := range value.Deps {
		s.saveVersions(clientID, depKey, futureReadSet, observed)
	}
}
