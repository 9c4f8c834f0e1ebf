// Package transport realizes the causal cache's peer transport and
// client-response routing, both left as interfaces in spec.md §1. Peer
// traffic (VersionedKeyRequest/Response) travels over
// github.com/gorilla/websocket outbound connections cached per address —
// the same role as the original's SocketCache — mirrored by an inbound
// github.com/gofiber/contrib/websocket upgrade endpoint mounted on the
// client-facing fiber app. Grounded on cmd/konsulctl/kv_commands.go's
// Watch command, the teacher's only hand-rolled websocket client.
package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rise-lab/causalcache/internal/logger"
	"github.com/rise-lab/causalcache/internal/wire"
)

// PeerDialer maintains one outbound websocket connection per peer cache
// address, dialing lazily and reusing the connection across requests.
type PeerDialer struct {
	mu    sync.Mutex
	conns map[string]*websocket.Conn
	log   logger.Logger
}

// NewPeerDialer builds an empty PeerDialer.
func NewPeerDialer(log logger.Logger) *PeerDialer {
	return &PeerDialer{conns: map[string]*websocket.Conn{}, log: log}
}

func (d *PeerDialer) connFor(addr string) (*websocket.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if conn, ok := d.conns[addr]; ok {
		return conn, nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/peer", addr), nil)
	if err != nil {
		return nil, fmt.Errorf("dial peer %s: %w", addr, err)
	}
	d.conns[addr] = conn
	return conn, nil
}

// envelope tags an outbound peer message with its kind so the inbound
// handler can dispatch without a second round-trip.
type envelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// SendVersionedKeyRequest dials (or reuses a connection to) addr and sends
// a VersionedKeyRequest, dropping the peer's cached connection on write
// failure so the next call redials.
func (d *PeerDialer) SendVersionedKeyRequest(addr string, req wire.VersionedKeyRequest) error {
	return d.send(addr, "versioned_key_request", req)
}

// SendVersionedKeyResponse replies to a peer that previously asked this
// cache for versioned keys.
func (d *PeerDialer) SendVersionedKeyResponse(addr string, resp wire.VersionedKeyResponse) error {
	return d.send(addr, "versioned_key_response", resp)
}

func (d *PeerDialer) send(addr, kind string, body interface{}) error {
	conn, err := d.connFor(addr)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	if err := conn.WriteJSON(envelope{Kind: kind, Body: raw}); err != nil {
		d.mu.Lock()
		delete(d.conns, addr)
		d.mu.Unlock()
		if d.log != nil {
			d.log.Warn("peer send failed, dropping connection",
				logger.String("addr", addr), logger.Error(err))
		}
		return err
	}
	return nil
}

// Close tears down every cached outbound connection.
func (d *PeerDialer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for addr, conn := range d.conns {
		conn.Close()
		delete(d.conns, addr)
	}
}
