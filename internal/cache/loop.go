package cache

import (
	"context"
	"time"

	"github.com/rise-lab/causalcache/internal/kvsclient"
)

// Thresholds configures the two periodic handlers' intervals.
type Thresholds struct {
	Report  time.Duration
	Migrate time.Duration
}

// Transport is the minimal outbound capability Loop needs to fan out
// remote reads and deliver replies; internal/transport supplies the real
// websocket-backed implementation (transport.LoopTransport), which the
// HTTP handler tests also use.
type Transport interface {
	SendSingleResult(SingleGetResult)
	SendCrossResult(CrossGetResult)
	SendVersionedKeyRequest(VersionedKeyRequest)
	SendVersionedKeyResponse(VersionedKeyResponse)
}

// Loop is the single-goroutine cooperative scheduler that owns a State
// and drives every handler to completion once per turn, matching
// spec.md's run-to-completion concurrency model. Grounded on
// causal_cache.cpp's run(): a zmq poll over several PULL sockets plus two
// periodic timers, translated into a Go select over channels plus two
// time.Tickers (the idiomatic substitute for a poll loop over message
// queues; the real transport/routing layer is out of scope per spec.md
// §1, so these channels are the seam a concrete Transport feeds).
type Loop struct {
	State      *State
	KVS        kvsclient.KvsAsyncClient
	Transport  Transport
	Thresholds Thresholds

	// SelfAddr is this cache's own reachable peer address, carried on
	// outbound VersionedKeyRequests as ResponseAddr so a peer knows where
	// to dial its reply.
	SelfAddr string

	Gets          chan SingleOrCrossGetRequest
	Puts          chan PutRequest
	VersionGC     chan string
	PeerRequests  chan VersionedKeyRequest
	PeerResponses chan VersionedKeyResponse
}

// SingleOrCrossGetRequest is a tagged union so Loop can accept either get
// shape on one channel, mirroring the original's single request puller
// that carries a ConsistencyType discriminator.
type SingleOrCrossGetRequest struct {
	Single *SingleGetRequest
	Cross  *CrossGetRequest
}

// NewLoop builds a Loop with request channels buffered to 64 entries and
// the given thresholds.
func NewLoop(state *State, kvs kvsclient.KvsAsyncClient, transport Transport, thresholds Thresholds) *Loop {
	return &Loop{
		State:         state,
		KVS:           kvs,
		Transport:     transport,
		Thresholds:    thresholds,
		Gets:          make(chan SingleOrCrossGetRequest, 64),
		Puts:          make(chan PutRequest, 64),
		VersionGC:     make(chan string, 64),
		PeerRequests:  make(chan VersionedKeyRequest, 64),
		PeerResponses: make(chan VersionedKeyResponse, 64),
	}
}

// Run drives the event loop until ctx is cancelled. Each branch of the
// select runs exactly one handler to completion before the loop polls
// again, so no handler needs its own locking over State.
func (l *Loop) Run(ctx context.Context) {
	reportTicker := time.NewTicker(l.Thresholds.Report)
	migrateTicker := time.NewTicker(l.Thresholds.Migrate)
	defer reportTicker.Stop()
	defer migrateTicker.Stop()

	var reportClock uint64

	fireRemote := func(peerAddr, replyAddr, key string) {
		pinned := l.State.PendingCross[replyAddr]
		clientID := ""
		if pinned != nil {
			clientID = pinned.ClientID
		}
		l.Transport.SendVersionedKeyRequest(VersionedKeyRequest{
			ClientID:     clientID,
			Keys:         []string{key},
			PeerAddr:     peerAddr,
			ResponseAddr: l.SelfAddr,
		})
	}

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-l.Gets:
			if req.Single != nil {
				l.State.HandleSingleGet(*req.Single, l.KVS, l.Transport.SendSingleResult)
			}
			if req.Cross != nil {
				l.State.HandleCrossGet(*req.Cross, l.KVS, fireRemote, l.Transport.SendCrossResult)
			}

		case put := <-l.Puts:
			l.State.HandlePut(put, l.KVS)

		case clientID := <-l.VersionGC:
			delete(l.State.VersionStore, clientID)

		case req := <-l.PeerRequests:
			resp := l.State.HandleVersionedKeyRequest(req, l.State.Log)
			resp.FromAddr = req.FromAddr
			l.Transport.SendVersionedKeyResponse(resp)

		case resp := <-l.PeerResponses:
			l.State.HandleVersionedKeyResponse(resp, l.Transport.SendCrossResult)

		case resp := <-l.KVS.Responses():
			if resp.Err != nil {
				l.State.HandleKVSTimeout(resp, l.KVS)
				continue
			}
			switch resp.Op {
			case kvsclient.OpGet:
				l.State.HandleKVSGetResponse(resp, l.KVS, l.Transport.SendSingleResult, fireRemote, l.Transport.SendCrossResult)
			case kvsclient.OpPut:
				l.State.HandleKVSPutResponse(resp, l.State.Log, func(addr string) {
					l.Transport.SendSingleResult(SingleGetResult{Addr: addr})
				})
			}

		case <-reportTicker.C:
			reportClock++
			l.State.RunKeySetReport(l.KVS, reportClock)

		case <-migrateTicker.C:
			l.State.RunMigration(l.KVS, fireRemote, l.Transport.SendCrossResult)
		}
	}
}
