// Package events provides types and interfaces for an event-driven architecture.
//
// This package defines the typed events the engine publishes and an
// in-memory Bus that fans them out to subscribers. Components publish
// without knowing who is listening, enabling better separation of
// concerns and reducing circular dependencies.
//
// The primary components are:
// - TaskUpdatedEvent, NetworkChangedEvent, SyncStatusChangedEvent: the event types
// - Bus: non-blocking publish-subscribe with per-subscriber ordering
// - Subscription: handle whose Unsubscribe releases the subscriber
package events
