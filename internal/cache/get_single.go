package cache

import "github.com/rise-lab/causalcache/internal/kvsclient"

// SingleGetRequest is a SINGLE-consistency read over a set of keys,
// answered together in one response once every key has a value in the
// unmerged store. Grounded on the ConsistencyType::SINGLE branch of
// causal_cache_get_request_handler.cpp and the shared to_cover_set
// spec.md §4.3 and scenarios S1/S2 describe.
type SingleGetRequest struct {
	Keys      []string
	ReplyAddr string
}

// SingleValue is one key's answer inside a SingleGetResult.
type SingleValue struct {
	Exists  bool
	Payload []string
}

// SingleGetResult is delivered to replyFn once every key in the request's
// to_cover_set has been resolved, either immediately or after one or more
// KVS round-trips.
type SingleGetResult struct {
	Values map[string]SingleValue
	Addr   string
}

// SingleMetadata tracks one in-flight multi-key SINGLE get while its
// shared to_cover_set still has keys missing from the unmerged store.
type SingleMetadata struct {
	ToCoverSet map[string]struct{}
	Results    map[string]SingleValue
}

// HandleSingleGet answers a SINGLE-consistency get. Each requested key
// already in the unmerged store is collected immediately; every other key
// is added to the request's to_cover_set, an async KVS get is issued, and
// single_callback_map[key] records this request's reply address so
// HandleKVSGetResponse can find its way back here. The response is sent
// once the to_cover_set is empty — immediately if every key was already
// covered (S1), or once the last arrival drains it (S2).
func (s *State) HandleSingleGet(req SingleGetRequest, kvs kvsclient.KvsAsyncClient, reply func(SingleGetResult)) {
	meta := &SingleMetadata{
		ToCoverSet: map[string]struct{}{},
		Results:    map[string]SingleValue{},
	}

	for _, key := range req.Keys {
		if value, ok := s.Unmerged[key]; ok {
			meta.Results[key] = SingleValue{Exists: true, Payload: value.Payload.Slice()}
			continue
		}
		meta.ToCoverSet[key] = struct{}{}
		s.SingleCallbackMap[key] = append(s.SingleCallbackMap[key], req.ReplyAddr)
		kvs.GetAsync(key)
	}

	if len(meta.ToCoverSet) == 0 {
		reply(SingleGetResult{Values: meta.Results, Addr: req.ReplyAddr})
		return
	}

	s.PendingSingle[req.ReplyAddr] = meta
}
