package cache

import (
	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/kvsclient"
	"github.com/rise-lab/causalcache/internal/logger"
	"github.com/rise-lab/causalcache/internal/vclock"
)

// KeyVersion pairs a key with a vector clock, the cache-internal
// counterpart of wire.KeyVersion.
type KeyVersion struct {
	Key string
	VC  vclock.Clock
}

// CrossGetRequest is a CROSS-consistency read over a set of keys, along
// with whatever causal chains the client has already observed upstream
// (used to decide whether a local value is stale enough that a peer must
// be consulted instead), the keys the client intends to read next
// (pinned into the version store for those future reads), and the peer
// locations the client already knows about for keys that might need a
// remote fetch.
type CrossGetRequest struct {
	ClientID              string
	ReadSet               []string
	FutureReadSet         []string
	PriorCausalChains     map[string][]vclock.Clock
	VersionedKeyLocations map[string][]KeyVersion
	ReplyAddr             string
}

// CrossGetResult is delivered once every key in the read set has been
// resolved, locally or via a peer round-trip.
type CrossGetResult struct {
	ClientID string
	Local    map[string][]string
	DNE      map[string]struct{}
	Addr     string
	// VersionedKeyQueryAddr is this cache's own peer address, reported so
	// the client can route a later request's versioned_key_locations here.
	VersionedKeyQueryAddr string
	// VersionedKeys lists the keys (and versions) this cache has pinned
	// for the client.
	VersionedKeys []KeyVersion
}

// HandleCrossGet answers a CROSS-consistency get. Grounded on the
// ConsistencyType::CROSS branch of causal_cache_get_request_handler.cpp:
// first the causal frontier is updated from the client's declared prior
// chains, then every key in the read set is classified per spec.md
// §4.4(c): already in the causal cut, already its own head in the
// in-preparation area (a waiter attaches to it directly), or otherwise
// opened as a new head seeded from the best known value in priority order
// — an in-preparation lattice, then the unmerged store, then a forced KVS
// get. Requests whose entire read set resolves locally are answered
// immediately, the rest wait on fireRemote/promotion.
func (s *State) HandleCrossGet(req CrossGetRequest, kvs kvsclient.KvsAsyncClient, fireRemote func(peerAddr, replyAddr, key string), respond func(CrossGetResult)) {
	for key, chains := range req.PriorCausalChains {
		for _, vc := range chains {
			s.populateCausalFrontier(key, vc)
		}
	}

	peerForKey := map[string]string{}
	for peerAddr, entries := range req.VersionedKeyLocations {
		for _, kv := range entries {
			peerForKey[kv.Key] = peerAddr
		}
	}

	meta := &CrossMetadata{
		ClientID:          req.ClientID,
		ReadSet:           toSet(req.ReadSet),
		FutureReadSet:     toSet(req.FutureReadSet),
		PriorCausalChains: req.PriorCausalChains,
		ToCoverSet:        map[string]struct{}{},
		RemoteReadSet:     map[string]struct{}{},
		PeerForKey:        peerForKey,
		Local:             map[string]ccv.Value{},
		Remote:            map[string]ccv.Value{},
		DNESet:            map[string]struct{}{},
		ResponseAddr:      req.ReplyAddr,
	}
	s.PendingCross[req.ReplyAddr] = meta

	for _, key := range req.ReadSet {
		if _, ok := s.CausalCut[key]; ok {
			continue
		}

		if _, ok := s.InPreparation[key]; ok {
			meta.ToCoverSet[key] = struct{}{}
			continue
		}

		seed, ok := s.findLatticeFromInPreparation(key, vclock.New())
		if !ok {
			seed, ok = s.Unmerged[key]
		}

		if ok {
			s.InPreparation[key] = newClosure()
			s.InPreparation[key].Values[key] = seed.Clone()
			meta.ToCoverSet[key] = struct{}{}
			s.recursiveDependencyCheck(key, seed, kvs)
			if len(s.InPreparation[key].ToFetch) == 0 {
				// This request is finished by the check after the loop, once
				// every key of its read set has been classified.
				s.promoteToCausalCut(key, func(addr string) {
					if addr != req.ReplyAddr {
						s.finishCross(addr, fireRemote, respond)
					}
				})
			}
			continue
		}

		s.InPreparation[key] = newClosure()
		s.InPreparation[key].ToFetch[key] = struct{}{}
		meta.ToCoverSet[key] = struct{}{}
		s.registerCover(key, vclock.New(), key)
		kvs.GetAsync(key)
	}

	if len(meta.ToCoverSet) == 0 {
		s.finishCross(req.ReplyAddr, fireRemote, respond)
	}
}

// finishCross runs once every head a CROSS request depends on has been
// promoted: it splits the read set into keys answerable locally and keys
// that must be fetched from a peer, and either responds immediately or
// waits on the remote leg. A remote key is routed to the peer address the
// client's versioned_key_locations named for it; if none was named, the
// key has no route to resolve and is left pending (consistent with
// spec.md §9's acceptance of indefinite blocking on an unresolved
// dependency). Grounded on fire_remote_read_requests / respond_to_client.
func (s *State) finishCross(addr string, fireRemote func(peerAddr, replyAddr, key string), respond func(CrossGetResult)) {
	meta, ok := s.PendingCross[addr]
	if !ok {
		return
	}

	anyRemote := false
	for key := range meta.ReadSet {
		value, ok := s.CausalCut[key]
		if !ok {
			meta.DNESet[key] = struct{}{}
			continue
		}
		if s.chooseRemote(key, meta.PriorCausalChains[key]) {
			meta.RemoteReadSet[key] = struct{}{}
			anyRemote = true
			peerAddr, known := meta.PeerForKey[key]
			if !known {
				if s.Log != nil {
					s.Log.Warn("no peer location known for remote-required key",
						logger.String("key", key), logger.String("client_id", meta.ClientID))
				}
				continue
			}
			fireRemote(peerAddr, addr, key)
			continue
		}
		meta.Local[key] = value.Clone()
		observed := map[string]struct{}{}
		s.saveVersions(meta.ClientID, key, meta.FutureReadSet, observed)
	}

	if anyRemote {
		s.ClientIDToAddress[meta.ClientID] = addOne(s.ClientIDToAddress[meta.ClientID], addr)
		return
	}

	s.respondCross(addr, respond)
}

// respondCross assembles and delivers the final CrossGetResult, then
// releases the pending-cross bookkeeping for addr. Grounded on
// respond_to_client.
func (s *State) respondCross(addr string, respond func(CrossGetResult)) {
	meta, ok := s.PendingCross[addr]
	if !ok {
		return
	}

	result := CrossGetResult{
		ClientID:              meta.ClientID,
		Local:                 map[string][]string{},
		DNE:                   map[string]struct{}{},
		Addr:                  addr,
		VersionedKeyQueryAddr: s.SelfAddr,
	}
	for key := range meta.DNESet {
		result.DNE[key] = struct{}{}
	}
	for key, value := range meta.Local {
		result.Local[key] = value.Payload.Slice()
	}
	for key, value := range meta.Remote {
		result.Local[key] = value.Payload.Slice()
	}
	if pinned, ok := s.VersionStore[meta.ClientID]; ok {
		for key, value := range pinned {
			result.VersionedKeys = append(result.VersionedKeys, KeyVersion{Key: key, VC: value.VC.Copy()})
		}
	}

	respond(result)

	delete(s.PendingCross, addr)
	if addrs, ok := s.ClientIDToAddress[meta.ClientID]; ok {
		delete(addrs, addr)
		if len(addrs) == 0 {
			delete(s.ClientIDToAddress, meta.ClientID)
		}
	}
}

func toSet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

func addOne(set map[string]struct{}, item string) map[string]struct{} {
	if set == nil {
		set = map[string]struct{}{}
	}
	set[item] = struct{}{}
	return set
}
