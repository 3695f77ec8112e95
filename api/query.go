package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/reduce"
)

// reducerOf builds a Reducer from the display, aggregate, remove and shorten
// query parameters. It returns nil when none of the prefix lists is given.
func reducerOf(c *fiber.Ctx) (*reduce.Reducer, error) {
	display, aggregate, remove := c.Query("display"), c.Query("aggregate"), c.Query("remove")
	if display == "" && aggregate == "" && remove == "" {
		return nil, nil
	}

	mode, err := reduce.ParseShortenMode(c.Query("shorten"))
	if err != nil {
		return nil, err
	}

	return &reduce.Reducer{
		Display:   reduce.ParsePrefixes(display, mode),
		Aggregate: reduce.ParsePrefixes(aggregate, reduce.ShortenNone),
		Remove:    reduce.ParsePrefixes(remove, reduce.ShortenNone),
	}, nil
}

func hashParam(c *fiber.Ctx) (identity.Hash, error) {
	return identity.ParseHash(c.Params("id"))
}

func uuidParam(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

// pageOf reads offset and count, applying DefaultFeedCount and MaxFeedCount.
func pageOf(c *fiber.Ctx) (offset, count int, msg string) {
	count = DefaultFeedCount

	if s := c.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, 0, "offset must be a non-negative integer"
		}
		offset = n
	}

	if s := c.Query("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, 0, "count must be a non-negative integer"
		}
		count = min(n, MaxFeedCount)
	}

	return offset, count, ""
}
