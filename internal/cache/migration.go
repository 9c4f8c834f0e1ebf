package cache

import (
	"github.com/rise-lab/causalcache/internal/kvsclient"
	"github.com/rise-lab/causalcache/internal/vclock"
)

// RunMigration opportunistically promotes unmerged keys whose dependencies
// are now satisfied into the causal-cut store, without a triggering client
// read. Grounded on causal_cache_periodic_migration_handler.cpp, which in
// original_source carries unresolved merge-conflict markers over whether
// the unmerged store should be passed into the promotion step; here
// promoteToCausalCut takes no unmerged store and promotes only the values
// collected in the key's closure, skipping empty (does-not-exist) ones.
// Migration reads the unmerged store and never mutates it.
//
// Per spec.md §4.10, a key is a migration candidate when it is not already
// being prepared and C[k] is either absent or strictly dominated by U[k]
// — not merely "already in C at all" — so a key whose causal-cut entry
// has gone stale since an earlier PUT is re-seeded and re-resolved rather
// than skipped forever. Seeding and dependency resolution reuse
// recursiveDependencyCheck, the same multi-level closure walk a
// client-triggered CROSS get uses, so a migrated key's own dependencies
// are never promoted ahead of their own dependencies.
func (s *State) RunMigration(kvs kvsclient.KvsAsyncClient, fireRemote func(peerAddr, replyAddr, key string), respond func(CrossGetResult)) {
	for key, value := range s.Unmerged {
		if cut, ok := s.CausalCut[key]; ok && vclock.Compare(cut.VC, value.VC) != vclock.Dominated {
			continue
		}
		if _, inPrep := s.InPreparation[key]; inPrep {
			continue
		}

		s.InPreparation[key] = newClosure()
		s.InPreparation[key].Values[key] = value.Clone()
		s.recursiveDependencyCheck(key, value, kvs)

		if len(s.InPreparation[key].ToFetch) == 0 {
			s.promoteToCausalCut(key, func(addr string) { s.finishCross(addr, fireRemote, respond) })
		}
	}
}
