package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/ingest"
	"github.com/papercomputeco/faultline/pkg/metrics"
	"github.com/papercomputeco/faultline/pkg/reduce"
	"github.com/papercomputeco/faultline/pkg/storage"
)

// Headers carrying the log line of a text trace submission.
const (
	HeaderLogger  = "X-Faultline-Logger"
	HeaderLevel   = "X-Faultline-Level"
	HeaderMessage = "X-Faultline-Message"
	HeaderThread  = "X-Faultline-Thread"
)

// FeedResponse is one page of a feed.
type FeedResponse struct {
	Scope   storage.Scope       `json:"scope"`
	ID      string              `json:"id,omitempty"`
	Offset  int                 `json:"offset"`
	Count   int                 `json:"count"`
	Entries []FeedEntryResponse `json:"entries"`
}

// FeedEntryResponse is a feed entry, with its fault's reduced trace when
// reduction parameters were supplied.
type FeedEntryResponse struct {
	*storage.FeedEntry
	Trace string `json:"trace,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleStats returns row counts of the store.
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.store.Stats(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(stats)
}

// handleSubmitFault handles POST /faults.
func (s *Server) handleSubmitFault(c *fiber.Ctx) error {
	var sub ingest.Submission
	if err := c.BodyParser(&sub); err != nil {
		s.config.Metrics.RecordSubmission(metrics.SubmitterJSON, metrics.OutcomeInvalid)
		return badRequest(c, "invalid request body")
	}

	receipt, err := s.store.SubmitFault(c.UserContext(), sub)
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(receipt)
}

// handleSubmitTrace handles POST /faults/trace. The body is the printed
// trace; the log line travels in the X-Faultline-* headers.
func (s *Server) handleSubmitTrace(c *fiber.Ctx) error {
	receipt, err := s.store.SubmitTrace(c.UserContext(), string(c.Body()), logEntryOf(c))
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(receipt)
}

func logEntryOf(c *fiber.Ctx) *storage.LogEntry {
	e := storage.LogEntry{
		Logger:  c.Get(HeaderLogger),
		Level:   c.Get(HeaderLevel),
		Message: c.Get(HeaderMessage),
		Thread:  c.Get(HeaderThread),
	}
	if e == (storage.LogEntry{}) {
		return nil
	}

	return &e
}

// handleGetFault returns a fault by identity, as JSON or, with
// ?format=text, as a printed trace.
func (s *Server) handleGetFault(c *fiber.Ctx) error {
	id, err := hashParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	r, err := reducerOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	f, err := s.store.GetFault(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}

	if c.Query("format") == "text" {
		if r == nil {
			r = &reduce.Reducer{}
		}
		c.Type("txt")
		return c.SendString(r.FormatFault(f))
	}

	return c.JSON(f)
}

// handleGetFaultStrand returns a fault strand by identity.
func (s *Server) handleGetFaultStrand(c *fiber.Ctx) error {
	id, err := hashParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	strand, err := s.store.GetFaultStrand(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(strand)
}

// handleGetFeedEntry returns one feed entry.
func (s *Server) handleGetFeedEntry(c *fiber.Ctx) error {
	id, err := uuidParam(c)
	if err != nil {
		return badRequest(c, "invalid feed entry id")
	}

	entry, err := s.store.GetFeedEntry(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(entry)
}

// handleGlobalFeed handles GET /feed.
func (s *Server) handleGlobalFeed(c *fiber.Ctx) error {
	return s.feed(c, storage.ScopeGlobal, identity.Hash{})
}

// handleFaultFeed handles GET /feed/faults/:id.
func (s *Server) handleFaultFeed(c *fiber.Ctx) error {
	id, err := hashParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := s.store.GetFault(c.UserContext(), id); err != nil {
		return s.fail(c, err)
	}

	return s.feed(c, storage.ScopeFault, id)
}

// handleFaultStrandFeed handles GET /feed/strands/:id.
func (s *Server) handleFaultStrandFeed(c *fiber.Ctx) error {
	id, err := hashParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := s.store.GetFaultStrand(c.UserContext(), id); err != nil {
		return s.fail(c, err)
	}

	return s.feed(c, storage.ScopeFaultStrand, id)
}

func (s *Server) feed(c *fiber.Ctx, scope storage.Scope, id identity.Hash) error {
	offset, count, msg := pageOf(c)
	if msg != "" {
		return badRequest(c, msg)
	}

	r, err := reducerOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.UserContext()
	entries, err := s.store.ListFeed(ctx, scope, id, offset, count)
	if err != nil {
		return s.fail(c, err)
	}

	resp := FeedResponse{
		Scope:   scope,
		Offset:  offset,
		Count:   len(entries),
		Entries: make([]FeedEntryResponse, len(entries)),
	}
	if scope != storage.ScopeGlobal {
		resp.ID = id.String()
	}

	traces := map[identity.Hash]string{}
	for i, e := range entries {
		resp.Entries[i] = FeedEntryResponse{FeedEntry: e}
		if r == nil {
			continue
		}

		t, err := s.reducedTrace(ctx, r, e.FaultID, traces)
		if err != nil {
			return s.fail(c, err)
		}
		resp.Entries[i].Trace = t
	}

	return c.JSON(resp)
}

// reducedTrace renders the fault once per request.
func (s *Server) reducedTrace(ctx context.Context, r *reduce.Reducer, id identity.Hash, cache map[identity.Hash]string) (string, error) {
	if t, ok := cache[id]; ok {
		return t, nil
	}

	f, err := s.store.GetFault(ctx, id)
	if err != nil {
		return "", err
	}

	t := r.FormatFault(f)
	cache[id] = t
	return t, nil
}
