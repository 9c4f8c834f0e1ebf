package cache

import (
	"github.com/google/uuid"

	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/kvsclient"
	"github.com/rise-lab/causalcache/internal/logger"
	"github.com/rise-lab/causalcache/internal/metrics"
	"github.com/rise-lab/causalcache/internal/vclock"
)

// HandleKVSGetResponse processes an asynchronous get reply from the
// backing KVS. Grounded on causal_cache_kvs_response_handler.cpp's success
// branch and process_response in causal_cache_utils.cpp, including the
// two-pass cover-map resolution: a head is only removed from its to-fetch
// set once every still-pending cover-map entry for this key has been
// checked in this pass, not as each individual entry happens to resolve —
// otherwise a head could be promoted while another entry for the same key
// it also depends on is still unsatisfied.
func (s *State) HandleKVSGetResponse(resp kvsclient.Response, kvs kvsclient.KvsAsyncClient, onSingle func(SingleGetResult), fireRemote func(peerAddr, replyAddr, key string), respond func(CrossGetResult)) {
	key := resp.Key
	value := ccv.Empty()
	if resp.Exists {
		value = resp.Value
	}

	if existing, ok := s.Unmerged[key]; ok {
		ccv.MergeInto(&existing, value)
		s.Unmerged[key] = existing
	} else {
		s.Unmerged[key] = value.Clone()
	}
	s.touchKeySet(key)
	updated := s.Unmerged[key]

	if addrs, ok := s.SingleCallbackMap[key]; ok {
		value := SingleValue{Exists: !updated.IsEmpty(), Payload: updated.Payload.Slice()}
		for _, addr := range addrs {
			meta, ok := s.PendingSingle[addr]
			if !ok {
				continue
			}
			meta.Results[key] = value
			delete(meta.ToCoverSet, key)
			if len(meta.ToCoverSet) == 0 {
				onSingle(SingleGetResult{Values: meta.Results, Addr: addr})
				delete(s.PendingSingle, addr)
			}
		}
		delete(s.SingleCallbackMap, key)
	}

	if closure, ok := s.InPreparation[key]; ok {
		if _, wasFetching := closure.ToFetch[key]; wasFetching {
			delete(closure.ToFetch, key)
			closure.Values[key] = updated.Clone()
			s.recursiveDependencyCheck(key, updated, kvs)
			if len(closure.ToFetch) == 0 {
				s.promoteToCausalCut(key, func(addr string) { s.finishCross(addr, fireRemote, respond) })
			}
		}
	}

	s.resolveCoverMap(key, kvs, fireRemote, respond)
}

// resolveCoverMap runs the two-pass check over cover_map[key]: first every
// entry is classified as satisfied or not by the newly-updated unmerged
// value, then a waiting head is only considered resolved if it appears in
// the satisfied set and never in the not-satisfied set for this pass.
func (s *State) resolveCoverMap(key string, kvs kvsclient.KvsAsyncClient, fireRemote func(peerAddr, replyAddr, key string), respond func(CrossGetResult)) {
	entries := s.CoverMap[key]
	if len(entries) == 0 {
		return
	}

	updated := s.Unmerged[key]
	maybeSatisfied := map[string]struct{}{}
	notSatisfied := map[string]struct{}{}
	var resolvedEntries []*CoverEntry
	var remaining []*CoverEntry

	for _, entry := range entries {
		if vclock.Dominates(updated.VC, entry.Clock) {
			for head := range entry.Heads {
				maybeSatisfied[head] = struct{}{}
			}
			resolvedEntries = append(resolvedEntries, entry)
		} else {
			for head := range entry.Heads {
				notSatisfied[head] = struct{}{}
			}
			remaining = append(remaining, entry)
		}
	}

	for _, entry := range resolvedEntries {
		for head := range entry.Heads {
			if _, stillBlocked := notSatisfied[head]; stillBlocked {
				continue
			}

			closure := s.InPreparation[head]
			if closure == nil {
				continue
			}
			closure.Values[key] = updated.Clone()
			delete(closure.ToFetch, key)
			s.recursiveDependencyCheck(head, updated, kvs)
			if len(closure.ToFetch) == 0 {
				s.promoteToCausalCut(head, func(addr string) { s.finishCross(addr, fireRemote, respond) })
			}
		}
	}

	if len(remaining) > 0 {
		s.CoverMap[key] = remaining
		// A higher version is needed to satisfy the remaining waiters.
		metrics.DependencyRegetTotal.Inc()
		kvs.GetAsync(key)
	} else {
		delete(s.CoverMap, key)
	}
}

// HandleKVSPutResponse processes the acknowledgement of a client-issued
// write. Grounded on causal_cache_kvs_response_handler.cpp's PUT success
// branch: look up the pending reply address by request id, notify the
// caller, and garbage-collect the mapping. The periodic key-set report
// never registers a request id, so its puts are silently dropped here,
// matching the original's behavior of only retrying/replying for
// client-initiated puts.
func (s *State) HandleKVSPutResponse(resp kvsclient.Response, log logger.Logger, ack func(addr string)) {
	addr, ok := s.RequestIDToAddress[resp.RequestID]
	if !ok {
		return
	}
	delete(s.RequestIDToAddress, resp.RequestID)
	ack(addr)
}

// HandleKVSTimeout retries a timed-out KVS operation: a get is always
// reissued unconditionally, a put only if it was client-initiated (i.e.
// still has an address mapping) under a fresh request id, with the
// address mapping moved to that id so the eventual success response still
// finds its waiter. Grounded on causal_cache_kvs_response_handler.cpp's
// TIMEOUT branch.
func (s *State) HandleKVSTimeout(resp kvsclient.Response, kvs kvsclient.KvsAsyncClient) {
	switch resp.Op {
	case kvsclient.OpGet:
		kvs.GetAsync(resp.Key)
	case kvsclient.OpPut:
		if addr, ok := s.RequestIDToAddress[resp.RequestID]; ok {
			newID := uuid.NewString()
			delete(s.RequestIDToAddress, resp.RequestID)
			s.RequestIDToAddress[newID] = addr
			kvs.PutAsync(resp.Key, s.Unmerged[resp.Key], newID)
		}
	}
}
