package cache

import (
	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/kvsclient"
	"github.com/rise-lab/causalcache/internal/vclock"
)

// KeySetReportKeyPrefix namespaces the metadata key this cache instance
// reports its key set under, so a monitoring consumer can tell cache
// identities apart in the backing KVS.
const KeySetReportKeyPrefix = "__causalcache_keyset__:"

// RunKeySetReport puts the set of keys this instance currently caches to
// the KVS under a last-writer-wins metadata key, timestamped by clock so
// concurrent reports from other instances never clobber a newer one out of
// order. Grounded on causal_cache.cpp's report_start /
// kCausalCacheReportThreshold block; failures are not retried, matching
// the original (a missed report is superseded by the next tick anyway).
func (s *State) RunKeySetReport(kvs kvsclient.KvsAsyncClient, clock uint64) {
	keys := make([]string, 0, len(s.KeySet))
	for k := range s.KeySet {
		keys = append(keys, k)
	}

	value := ccv.New(vclock.Clock{s.SiteID: clock}, ccv.NewPayload(keys...))
	kvs.PutAsync(KeySetReportKeyPrefix+s.SiteID, value, "")
}
