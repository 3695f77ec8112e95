package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/faultline/pkg/ingest"
	"github.com/papercomputeco/faultline/pkg/storage"
	"github.com/papercomputeco/faultline/pkg/trace"
)

// ErrorResponse is the body of every failed request. Line and Excerpt are
// set for unparseable traces.
type ErrorResponse struct {
	Error   string `json:"error"`
	Line    int    `json:"line,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}

// fail maps a store error onto a status code.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	var perr *trace.ParseError
	switch {
	case errors.As(err, &perr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   perr.Error(),
			Line:    perr.Line,
			Excerpt: perr.Excerpt,
		})
	case errors.Is(err, ingest.ErrInvalidSubmission):
		return badRequest(c, err.Error())
	case storage.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	default:
		s.logger.ErrorContext(c.UserContext(), "request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}
}
