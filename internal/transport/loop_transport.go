package transport

import (
	"github.com/rise-lab/causalcache/internal/cache"
	"github.com/rise-lab/causalcache/internal/wire"
)

// LoopTransport implements cache.Transport: client-addressed results are
// delivered through a ClientRegistry (read by the blocked HTTP handler),
// peer-addressed versioned-key traffic goes out over a PeerDialer.
type LoopTransport struct {
	Clients *ClientRegistry
	Peers   *PeerDialer
}

func (t *LoopTransport) SendSingleResult(res cache.SingleGetResult) {
	t.Clients.Deliver(res.Addr, res)
}

func (t *LoopTransport) SendCrossResult(res cache.CrossGetResult) {
	t.Clients.Deliver(res.Addr, res)
}

func (t *LoopTransport) SendVersionedKeyRequest(req cache.VersionedKeyRequest) {
	_ = t.Peers.SendVersionedKeyRequest(req.PeerAddr, wire.VersionedKeyRequest{
		ClientID:     req.ClientID,
		Keys:         req.Keys,
		ResponseAddr: req.ResponseAddr,
	})
}

func (t *LoopTransport) SendVersionedKeyResponse(resp cache.VersionedKeyResponse) {
	tuples := make([]wire.VersionedKeyTuple, 0, len(resp.Values))
	for key, value := range resp.Values {
		tuples = append(tuples, wire.VersionedKeyTuple{
			Key:     key,
			VC:      wire.FromMap(value.VC),
			Payload: value.Payload.Slice(),
		})
	}
	_ = t.Peers.SendVersionedKeyResponse(resp.FromAddr, wire.VersionedKeyResponse{
		ClientID: resp.ClientID,
		Tuples:   tuples,
	})
}
