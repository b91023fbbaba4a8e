package docker

import (
	"context"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"

	"github.com/bucket-xv/ImageCache/internal/core"
)

// Watch subscribes to the daemon's container start/die events and
// translates them into domain ContainerEvents. Both returned channels
// close when ctx is cancelled or the underlying stream ends.
func (c *Client) Watch(ctx context.Context) (<-chan core.ContainerEvent, <-chan error) {
	out := make(chan core.ContainerEvent)
	errs := make(chan error, 1)

	msgs, streamErrs := c.api.Events(ctx, events.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("type", string(events.ContainerEventType)),
			filters.Arg("event", string(events.ActionStart)),
			filters.Arg("event", string(events.ActionDie)),
		),
	})

	go func() {
		defer close(out)
		defer close(errs)

		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-streamErrs:
				if !ok {
					return
				}
				if err != nil && ctx.Err() == nil {
					errs <- err
				}
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, ok := translate(msg)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errs
}

// translate maps a Docker event message onto a domain event. Messages
// without an image attribute (unexpected for container events) are
// dropped.
func translate(msg events.Message) (core.ContainerEvent, bool) {
	imageID := msg.Actor.Attributes["image"]
	if imageID == "" || msg.Actor.ID == "" {
		return core.ContainerEvent{}, false
	}

	switch msg.Action {
	case events.ActionStart:
		return core.ContainerEvent{
			Type:        core.ContainerStarted,
			ContainerID: msg.Actor.ID,
			ImageID:     imageID,
		}, true
	case events.ActionDie:
		return core.ContainerEvent{
			Type:        core.ContainerStopped,
			ContainerID: msg.Actor.ID,
			ImageID:     imageID,
		}, true
	default:
		return core.ContainerEvent{}, false
	}
}
