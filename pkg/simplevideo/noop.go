package simplevideo

import "context"

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) AssetCreated(ctx context.Context, asset *VideoAsset) error {
	return nil
}

func (n *NoopEventSink) AssetStatusChanged(ctx context.Context, asset *VideoAsset, previous AssetStatus) error {
	return nil
}

func (n *NoopEventSink) AssetDeleted(ctx context.Context, videoID string, storageDeleted bool) error {
	return nil
}
