// Package cache implements the causal cache's core event-loop state: the
// unmerged store, the causal-cut store, the in-preparation dependency
// closure area, the version store, and the bookkeeping maps the resolver
// uses to fan out and reassemble KVS responses. Every exported method here
// assumes it runs on the single goroutine owned by Loop (see loop.go); none
// of it takes its own locks, mirroring the original single-threaded,
// run-to-completion handler model.
package cache

import (
	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/logger"
	"github.com/rise-lab/causalcache/internal/vclock"
)

// Closure is the accumulated dependency-closure for one head key while it
// sits in the in-preparation area: the set of (key -> value) pairs
// collected so far, and the set of dependency keys still outstanding.
type Closure struct {
	Values  map[string]ccv.Value
	ToFetch map[string]struct{}
}

func newClosure() *Closure {
	return &Closure{
		Values:  map[string]ccv.Value{},
		ToFetch: map[string]struct{}{},
	}
}

// CoverEntry is one cover-map record: a clock a waiting head needs depKey
// to reach, and the set of heads waiting on it.
type CoverEntry struct {
	Clock vclock.Clock
	Heads map[string]struct{}
}

// CrossMetadata tracks one in-flight CROSS get while it waits on local
// promotion and/or remote peer round-trips before it can be answered.
type CrossMetadata struct {
	ClientID          string
	ReadSet           map[string]struct{}
	FutureReadSet     map[string]struct{}
	PriorCausalChains map[string][]vclock.Clock
	ToCoverSet        map[string]struct{}
	RemoteReadSet     map[string]struct{}
	// PeerForKey maps a key that must be read remotely to the peer
	// address the client's versioned_key_locations said holds it.
	PeerForKey   map[string]string
	Local        map[string]ccv.Value
	Remote       map[string]ccv.Value
	DNESet       map[string]struct{}
	ResponseAddr string
}

// State is the CacheState aggregate: every store and bookkeeping map the
// handlers in this package read and mutate. It corresponds to the globals
// opened at the top of causal_cache.cpp's run() and threaded through every
// handler function.
type State struct {
	Log logger.Logger

	// SiteID identifies this cache instance inside vector clocks and the
	// periodic key-set report.
	SiteID string

	// SelfAddr is this cache's own reachable peer address, reported back
	// to clients as versioned_key_query_addr so they can route a later
	// CROSS get's versioned_key_locations to this instance.
	SelfAddr string

	// Unmerged is U: the latest observed value per key, monotone, deps
	// may be unsatisfied.
	Unmerged map[string]ccv.Value

	// CausalCut is C: dependency-closed values safe for cross-key causal
	// reads.
	CausalCut map[string]ccv.Value

	// InPreparation is P: head key -> in-progress dependency closure.
	InPreparation map[string]*Closure

	// CoverMap is X: dependency key -> list of (required clock, waiting
	// heads) entries, the reverse index used when a KVS response
	// arrives. Entries for the same key are appended rather than keyed
	// by clock value directly, since vclock.Clock is not a valid map key.
	CoverMap map[string][]*CoverEntry

	// VersionStore is V: client id -> pinned key -> CCV snapshot, for
	// read-your-writes and future reads.
	VersionStore map[string]map[string]ccv.Value

	// SingleCallbackMap tracks, per key still missing from Unmerged, the
	// reply addresses of every pending multi-key SINGLE request waiting
	// on it.
	SingleCallbackMap map[string][]string

	// PendingSingle tracks in-flight multi-key SINGLE requests keyed by
	// their reply address, mirroring PendingCross's shape for CROSS
	// requests.
	PendingSingle map[string]*SingleMetadata

	// PendingCross tracks in-flight CROSS requests keyed by an internal
	// request address (the original's pending_cross_metadata map).
	PendingCross map[string]*CrossMetadata

	// ClientIDToAddress maps a client id to the set of pending-cross
	// addresses waiting on peer round-trips for that client.
	ClientIDToAddress map[string]map[string]struct{}

	// RequestIDToAddress correlates an outstanding client-issued KVS put
	// with the address to reply to once it completes.
	RequestIDToAddress map[string]string

	// CausalFrontier is the per-key antichain of vector clocks collected
	// from the prior causal chains clients declare on CROSS gets. Nothing
	// reads it; the local-vs-remote decision in chooseRemote uses the
	// request's own prior chains.
	CausalFrontier map[string][]vclock.Clock

	// KeySet is the set of keys this instance currently caches, reported
	// periodically to the KVS under a cache-identity metadata key.
	KeySet map[string]struct{}
}

// NewState builds an empty State for the given site id and this
// instance's own reachable peer address.
func NewState(siteID, selfAddr string, log logger.Logger) *State {
	return &State{
		Log:                log,
		SiteID:             siteID,
		SelfAddr:           selfAddr,
		Unmerged:           map[string]ccv.Value{},
		CausalCut:          map[string]ccv.Value{},
		InPreparation:      map[string]*Closure{},
		CoverMap:           map[string][]*CoverEntry{},
		VersionStore:       map[string]map[string]ccv.Value{},
		SingleCallbackMap:  map[string][]string{},
		PendingSingle:      map[string]*SingleMetadata{},
		PendingCross:       map[string]*CrossMetadata{},
		ClientIDToAddress:  map[string]map[string]struct{}{},
		RequestIDToAddress: map[string]string{},
		CausalFrontier:     map[string][]vclock.Clock{},
		KeySet:             map[string]struct{}{},
	}
}

// touchKeySet records that key is now cached locally, for the periodic
// key-set report.
func (s *State) touchKeySet(key string) {
	s.KeySet[key] = struct{}{}
}
