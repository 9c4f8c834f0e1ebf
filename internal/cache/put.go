package cache

import (
	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/kvsclient"
	"github.com/rise-lab/causalcache/internal/vclock"
)

// Consistency selects how a Get/Put request is answered: SINGLE only ever
// consults this key, CROSS also resolves and closes its dependencies.
type Consistency int

const (
	Single Consistency = iota
	Cross
)

// PutRequest is one client write. Deps records the clocks the writer had
// observed for each dependency key at write time, becoming the new CCV's
// dependency map.
type PutRequest struct {
	Key         string
	VC          vclock.Clock
	Payload     ccv.Payload
	Deps        map[string]vclock.Clock
	Consistency Consistency
	ClientID    string
	RequestID   string
	ReplyAddr   string
}

// HandlePut applies a client write: merges the new value into the
// unmerged store, and for CROSS-consistency writes also merges it directly
// into the causal-cut store and pins it in the version store for
// read-your-writes, before always forwarding the write to the backing KVS
// asynchronously. Grounded on put_request_handler.
func (s *State) HandlePut(req PutRequest, kvs kvsclient.KvsAsyncClient) {
	value := ccv.New(req.VC, req.Payload)
	for depKey, depVC := range req.Deps {
		value.Deps[depKey] = depVC
	}

	if existing, ok := s.Unmerged[req.Key]; ok {
		ccv.MergeInto(&existing, value)
		s.Unmerged[req.Key] = existing
	} else {
		s.Unmerged[req.Key] = value.Clone()
	}
	s.touchKeySet(req.Key)

	if req.Consistency == Cross {
		if existing, ok := s.CausalCut[req.Key]; ok {
			ccv.MergeInto(&existing, value)
			s.CausalCut[req.Key] = existing
		} else {
			s.CausalCut[req.Key] = value.Clone()
		}

		if _, ok := s.VersionStore[req.ClientID]; !ok {
			s.VersionStore[req.ClientID] = map[string]ccv.Value{}
		}
		s.VersionStore[req.ClientID][req.Key] = s.CausalCut[req.Key].Clone()
	}

	s.RequestIDToAddress[req.RequestID] = req.ReplyAddr
	kvs.PutAsync(req.Key, s.Unmerged[req.Key], req.RequestID)
}
