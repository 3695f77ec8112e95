package eventstream

import "errors"

// ErrNilFeedEvent indicates a nil feed event payload was provided to a publisher.
var ErrNilFeedEvent = errors.New("nil feed event")
