package core

import "context"

// ContainerEventType represents the type of a container lifecycle
// event. This is a domain-level type that decouples the core layer
// from the Docker SDK's events package.
type ContainerEventType string

const (
	// ContainerStarted corresponds to a container start event.
	ContainerStarted ContainerEventType = "started"
	// ContainerStopped corresponds to a container exit event.
	ContainerStopped ContainerEventType = "stopped"
)

// ContainerEvent is a single container lifecycle notification from
// the runtime collaborator.
type ContainerEvent struct {
	Type        ContainerEventType
	ContainerID string
	ImageID     string
}

// ContainerWatcher streams container lifecycle events from the
// runtime. Both channels close when ctx is cancelled or the stream
// ends; a value on the error channel means the subscription failed
// and no further events will arrive.
type ContainerWatcher interface {
	Watch(ctx context.Context) (<-chan ContainerEvent, <-chan error)
}

// ImageRemover deletes an image blob from the runtime's local store.
// It is the physical half of eviction; the cache only selects.
type ImageRemover interface {
	RemoveImage(ctx context.Context, imageID string) error
}

// StorageUsage reports how many bytes of local storage image layers
// currently occupy. The reclaim loop compares this against its
// watermarks to decide when to evict.
type StorageUsage interface {
	LayerBytes(ctx context.Context) (int64, error)
}
