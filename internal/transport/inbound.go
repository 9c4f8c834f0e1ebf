package transport

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/rise-lab/causalcache/internal/logger"
	"github.com/rise-lab/causalcache/internal/wire"
)

// PeerHandlers dispatches inbound peer traffic into the cache's request
// channels, decoupling the websocket framing in this package from
// internal/cache's handler signatures.
type PeerHandlers struct {
	OnVersionedKeyRequest  func(addr string, req wire.VersionedKeyRequest)
	OnVersionedKeyResponse func(addr string, resp wire.VersionedKeyResponse)
}

// MountPeerEndpoint registers the inbound peer websocket upgrade endpoint
// on app at /peer, built on github.com/gofiber/contrib/websocket exactly
// as the teacher mounts its own websocket routes. Every frame is a tagged
// envelope distinguishing versioned-key requests from responses, mirroring
// the original's separate zmq PULL sockets multiplexed onto one
// connection.
func MountPeerEndpoint(app *fiber.App, log logger.Logger, handlers PeerHandlers) {
	app.Use("/peer", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/peer", websocket.New(func(conn *websocket.Conn) {
		addr := conn.RemoteAddr().String()
		defer conn.Close()

		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				if log != nil {
					log.Debug("peer connection closed", logger.String("addr", addr))
				}
				return
			}

			switch env.Kind {
			case "versioned_key_request":
				var req wire.VersionedKeyRequest
				if err := json.Unmarshal(env.Body, &req); err == nil && handlers.OnVersionedKeyRequest != nil {
					// req.ResponseAddr, not the ephemeral conn-derived addr,
					// is the requester's real dialable peer address.
					handlers.OnVersionedKeyRequest(req.ResponseAddr, req)
				}
			case "versioned_key_response":
				var resp wire.VersionedKeyResponse
				if err := json.Unmarshal(env.Body, &resp); err == nil && handlers.OnVersionedKeyResponse != nil {
					handlers.OnVersionedKeyResponse(addr, resp)
				}
			default:
				if log != nil {
					log.Warn("unknown peer envelope kind", logger.String("kind", env.Kind))
				}
			}
		}
	}))
}
