package cache

import (
	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/logger"
)

// VersionedKeyRequest asks a peer cache for its pinned version-store
// entries for a given client id, one leg of a CROSS read whose keys live
// on another instance. PeerAddr is the peer cache to dial when this
// request is being sent; ResponseAddr is this cache's own reachable
// address, carried along so the peer can dial back its reply; FromAddr is
// populated on the receiving side from the inbound request's
// ResponseAddr, and is the address the eventual response gets dialed to.
type VersionedKeyRequest struct {
	ClientID     string
	Keys         []string
	PeerAddr     string
	ResponseAddr string
	FromAddr     string
}

// VersionedKeyResponse carries back whatever of the requested keys the
// peer had pinned for this client id.
type VersionedKeyResponse struct {
	ClientID string
	Values   map[string]ccv.Value
	FromAddr string
}

// HandleVersionedKeyRequest answers a peer's request for this cache's
// pinned version-store entries. Grounded on
// causal_cache_versioned_key_handlers.cpp's versioned_key_request_handler:
// missing keys are simply omitted from the reply rather than causing an
// error response (the original logs and continues).
func (s *State) HandleVersionedKeyRequest(req VersionedKeyRequest, log logger.Logger) VersionedKeyResponse {
	pinned := s.VersionStore[req.ClientID]
	values := make(map[string]ccv.Value, len(req.Keys))
	for _, key := range req.Keys {
		if value, ok := pinned[key]; ok {
			values[key] = value.Clone()
		} else if log != nil {
			log.Warn("versioned key request for unpinned key",
				logger.String("client_id", req.ClientID),
				logger.String("key", key))
		}
	}
	return VersionedKeyResponse{ClientID: req.ClientID, Values: values}
}

// HandleVersionedKeyResponse folds one peer's reply into the pending CROSS
// request(s) waiting on that client id, and once every remote key has
// arrived for a given pending request, finalizes and sends the response.
// Grounded on versioned_key_response_handler.
func (s *State) HandleVersionedKeyResponse(resp VersionedKeyResponse, respond func(CrossGetResult)) {
	addrs := s.ClientIDToAddress[resp.ClientID]
	for addr := range addrs {
		meta, ok := s.PendingCross[addr]
		if !ok {
			continue
		}
		for key, value := range resp.Values {
			if _, wanted := meta.RemoteReadSet[key]; !wanted {
				continue
			}
			meta.Remote[key] = value.Clone()
			delete(meta.RemoteReadSet, key)
		}
		if len(meta.RemoteReadSet) == 0 {
			s.respondCross(addr, respond)
		}
	}
}
