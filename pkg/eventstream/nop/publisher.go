package nop

import (
	"context"

	"github.com/papercomputeco/faultline/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishFeedEntry validates input and otherwise does nothing.
func (p *Publisher) PublishFeedEntry(_ context.Context, event *eventstream.FeedEntryEvent) error {
	if event == nil {
		return eventstream.ErrNilFeedEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
