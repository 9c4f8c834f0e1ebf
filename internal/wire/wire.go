// Package wire defines the JSON message schemas exchanged between clients
// and a causal cache instance, and between cache peers, mirroring the
// logical fields of the original's protobuf-described requests (see
// include/requests.hpp and causal_cache_handlers.hpp). JSON-over-HTTP/
// websocket stands in for protobuf-over-zmq here: a faithful protobuf
// port would need protoc-generated stubs, which this repository cannot
// produce without running the toolchain.
package wire

// ClockEntry is one writer-id/counter pair of a wire-encoded vector clock.
type ClockEntry struct {
	ID    string `json:"id"`
	Count uint64 `json:"count"`
}

// Clock is a wire-encoded vector clock.
type Clock []ClockEntry

// PutTuple is one key/value write inside a CausalRequest.
type PutTuple struct {
	Key     string            `json:"key"`
	VC      Clock             `json:"vc"`
	Payload []string          `json:"payload"`
	Deps    map[string]Clock  `json:"deps,omitempty"`
}

// KeyVersion pairs a key with a vector clock. It appears on a
// CausalRequest to tell the cache which peer address holds a dependency's
// pinned version (versioned_key_locations), and on a CausalResponse to
// report back which keys this cache has pinned for the client
// (versioned_keys).
type KeyVersion struct {
	Key string `json:"key"`
	VC  Clock  `json:"vc"`
}

// CausalRequest is a client's GET or PUT request against the cache.
type CausalRequest struct {
	ClientID          string                  `json:"client_id"`
	RequestID         string                  `json:"request_id"`
	Consistency       string                  `json:"consistency"` // "SINGLE" | "CROSS"
	Puts              []PutTuple              `json:"puts,omitempty"`
	ReadSet           []string                `json:"read_set,omitempty"`
	PriorCausalChains map[string][]Clock      `json:"prior_causal_chains,omitempty"`
	// FutureReadSet names keys the client expects to read next, so the
	// cache knows which dependency versions to pin for it (CROSS GET
	// only).
	FutureReadSet []string `json:"future_read_set,omitempty"`
	// VersionedKeyLocations maps a peer cache address to the keys (and
	// the versions at which) the client believes that peer holds, so the
	// cache knows where to route a remote fetch instead of guessing
	// (CROSS GET only).
	VersionedKeyLocations map[string][]KeyVersion `json:"versioned_key_locations,omitempty"`
}

// CausalResponseTuple is one key's answer inside a CausalResponse.
type CausalResponseTuple struct {
	Key     string   `json:"key"`
	Error   bool     `json:"error"`
	Payload []string `json:"payload,omitempty"`
}

// CausalResponse answers a CausalRequest.
type CausalResponse struct {
	ClientID string                `json:"client_id"`
	Tuples   []CausalResponseTuple `json:"tuples"`
	// VersionedKeyQueryAddr is this cache's own peer address, so the
	// client can later ask it directly for the versions listed below.
	VersionedKeyQueryAddr string `json:"versioned_key_query_addr,omitempty"`
	// VersionedKeys lists the keys (and versions) this cache pinned for
	// the client while answering this request.
	VersionedKeys []KeyVersion `json:"versioned_keys,omitempty"`
}

// VersionedKeyRequest asks a peer cache for its pinned version-store
// entries for a client id. ResponseAddr carries the requester's own
// reachable peer address, so the receiver knows where to dial the reply
// back rather than guessing from the inbound connection.
type VersionedKeyRequest struct {
	ClientID     string   `json:"client_id"`
	Keys         []string `json:"keys"`
	ResponseAddr string   `json:"response_address"`
}

// VersionedKeyTuple is one key's pinned value inside a
// VersionedKeyResponse.
type VersionedKeyTuple struct {
	Key     string   `json:"key"`
	VC      Clock    `json:"vc"`
	Payload []string `json:"payload"`
}

// VersionedKeyResponse answers a VersionedKeyRequest.
type VersionedKeyResponse struct {
	ClientID string              `json:"client_id"`
	Tuples   []VersionedKeyTuple `json:"tuples"`
}

// FromMap converts a map[string]uint64 into a wire Clock.
func FromMap(m map[string]uint64) Clock {
	c := make(Clock, 0, len(m))
	for id, count := range m {
		c = append(c, ClockEntry{ID: id, Count: count})
	}
	return c
}

// ToMap converts a wire Clock back into a map[string]uint64.
func (c Clock) ToMap() map[string]uint64 {
	m := make(map[string]uint64, len(c))
	for _, e := range c {
		m[e.ID] = e.Count
	}
	return m
}
