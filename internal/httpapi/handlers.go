// Package httpapi exposes the causal cache's client-facing GET/PUT/GC
// surface as JSON-over-HTTP on github.com/gofiber/fiber/v2, realizing
// spec.md §6's CausalRequest/CausalResponse schema (internal/wire) over
// the ambient middleware stack (request-id, structured logging, metrics,
// tracing) the teacher wires onto every route.
package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rise-lab/causalcache/internal/cache"
	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/logger"
	"github.com/rise-lab/causalcache/internal/middleware"
	"github.com/rise-lab/causalcache/internal/transport"
	"github.com/rise-lab/causalcache/internal/vclock"
	"github.com/rise-lab/causalcache/internal/wire"
)

// Server wires the client-facing routes to a running Loop.
type Server struct {
	Loop     *cache.Loop
	Clients  *transport.ClientRegistry
	Log      logger.Logger
	Timeout  time.Duration
}

// RegisterRoutes mounts GET/PUT/GC handlers under the given fiber router
// group.
func (s *Server) RegisterRoutes(router fiber.Router) {
	router.Post("/get", s.handleGet)
	router.Post("/put", s.handlePut)
	router.Post("/gc", s.handleGC)
}

func (s *Server) handleGet(c *fiber.Ctx) error {
	var req wire.CausalRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.BadRequest(c, "invalid request body")
	}
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	if claims := middleware.GetClaims(c); claims != nil && !claims.AllowsClientID(req.ClientID) {
		return fiber.NewError(fiber.StatusForbidden, "bearer is not permitted to act as this client_id")
	}
	reqLog := logger.WithClient(middleware.GetLogger(c), req.ClientID)

	addr := uuid.NewString()
	waiter := s.Clients.Register(addr)

	switch req.Consistency {
	case "CROSS":
		prior := make(map[string][]vclock.Clock, len(req.PriorCausalChains))
		for key, chains := range req.PriorCausalChains {
			clocks := make([]vclock.Clock, 0, len(chains))
			for _, chain := range chains {
				clocks = append(clocks, vclock.Clock(chain.ToMap()))
			}
			prior[key] = clocks
		}
		locations := make(map[string][]cache.KeyVersion, len(req.VersionedKeyLocations))
		for peerAddr, entries := range req.VersionedKeyLocations {
			versions := make([]cache.KeyVersion, 0, len(entries))
			for _, e := range entries {
				versions = append(versions, cache.KeyVersion{Key: e.Key, VC: vclock.Clock(e.VC.ToMap())})
			}
			locations[peerAddr] = versions
		}
		reqLog.Info("CROSS get dispatched",
			logger.Int("read_set", len(req.ReadSet)),
			logger.Int("future_read_set", len(req.FutureReadSet)),
			logger.Int("versioned_key_locations", len(locations)))
		s.Loop.Gets <- cache.SingleOrCrossGetRequest{Cross: &cache.CrossGetRequest{
			ClientID:              req.ClientID,
			ReadSet:               req.ReadSet,
			FutureReadSet:         req.FutureReadSet,
			PriorCausalChains:     prior,
			VersionedKeyLocations: locations,
			ReplyAddr:             addr,
		}}
	default:
		reqLog.Info("SINGLE get dispatched", logger.Int("read_set", len(req.ReadSet)))
		s.Loop.Gets <- cache.SingleOrCrossGetRequest{Single: &cache.SingleGetRequest{
			Keys:      req.ReadSet,
			ReplyAddr: addr,
		}}
	}

	return s.awaitAndRespond(c, req.ClientID, addr, waiter)
}

func (s *Server) awaitAndRespond(c *fiber.Ctx, clientID, addr string, waiter <-chan interface{}) error {
	ctx, cancel := context.WithTimeout(c.Context(), s.Timeout)
	defer cancel()

	select {
	case result := <-waiter:
		return c.JSON(toCausalResponse(clientID, result))
	case <-ctx.Done():
		s.Clients.Forget(addr)
		return middleware.RequestTimeout(c, "cache request timed out")
	}
}

func toCausalResponse(clientID string, result interface{}) wire.CausalResponse {
	resp := wire.CausalResponse{ClientID: clientID}

	switch v := result.(type) {
	case cache.SingleGetResult:
		for key, val := range v.Values {
			resp.Tuples = append(resp.Tuples, wire.CausalResponseTuple{Key: key, Error: !val.Exists, Payload: val.Payload})
		}
	case cache.CrossGetResult:
		for key, payload := range v.Local {
			resp.Tuples = append(resp.Tuples, wire.CausalResponseTuple{Key: key, Payload: payload})
		}
		for key := range v.DNE {
			resp.Tuples = append(resp.Tuples, wire.CausalResponseTuple{Key: key, Error: true})
		}
		resp.VersionedKeyQueryAddr = v.VersionedKeyQueryAddr
		for _, kv := range v.VersionedKeys {
			resp.VersionedKeys = append(resp.VersionedKeys, wire.KeyVersion{Key: kv.Key, VC: wire.FromMap(kv.VC)})
		}
	}
	return resp
}

func (s *Server) handlePut(c *fiber.Ctx) error {
	var req wire.CausalRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.BadRequest(c, "invalid request body")
	}
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	if claims := middleware.GetClaims(c); claims != nil && !claims.AllowsClientID(req.ClientID) {
		return fiber.NewError(fiber.StatusForbidden, "bearer is not permitted to act as this client_id")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	consistency := cache.Single
	if req.Consistency == "CROSS" {
		consistency = cache.Cross
	}

	addr := uuid.NewString()
	waiter := s.Clients.Register(addr)

	logger.WithClient(middleware.GetLogger(c), req.ClientID).Info("put dispatched",
		logger.String("consistency", req.Consistency),
		logger.Int("tuples", len(req.Puts)))

	for _, tuple := range req.Puts {
		deps := make(map[string]vclock.Clock, len(tuple.Deps))
		for key, depClock := range tuple.Deps {
			deps[key] = vclock.Clock(depClock.ToMap())
		}
		s.Loop.Puts <- cache.PutRequest{
			Key:         tuple.Key,
			VC:          vclock.Clock(tuple.VC.ToMap()),
			Payload:     ccv.NewPayload(tuple.Payload...),
			Deps:        deps,
			Consistency: consistency,
			ClientID:    req.ClientID,
			RequestID:   req.RequestID,
			ReplyAddr:   addr,
		}
	}

	return s.awaitAndRespond(c, req.ClientID, addr, waiter)
}

func (s *Server) handleGC(c *fiber.Ctx) error {
	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.ClientID == "" {
		return middleware.BadRequest(c, "client_id is required")
	}
	logger.WithClient(middleware.GetLogger(c), req.ClientID).Info("version-store gc requested")
	s.Loop.VersionGC <- req.ClientID
	return c.SendStatus(fiber.StatusNoContent)
}
