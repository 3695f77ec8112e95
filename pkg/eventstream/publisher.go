package eventstream

import "context"

// Publisher publishes feed events to an event stream backend.
type Publisher interface {
	PublishFeedEntry(ctx context.Context, event *FeedEntryEvent) error
	Close() error
}
