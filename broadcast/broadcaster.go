package broadcast

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Resized/todo-list/domain"
)

// Broadcaster pushes change events to every registered channel except the
// originator's. Delivery is best effort: a channel that cannot take a frame
// right away is dropped.
type Broadcaster struct {
	registry *Registry
	logger   *log.Logger

	// serializes fan-out so all channels see frames in call order
	mu sync.Mutex
}

func NewBroadcaster(registry *Registry, logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Broadcaster{registry: registry, logger: logger}
}

// Broadcast delivers ev to all channels but originator and returns the
// number of channels that accepted the frame.
func (b *Broadcaster) Broadcast(ev domain.ChangeEvent, originator string) int {
	frame, err := EncodeEvent(ev)
	if err != nil {
		b.logger.WithError(err).WithField("task", ev.Task.ID).Error("encode change event")
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.registry.Snapshot() {
		if originator != "" && ch.ID() == originator {
			continue
		}
		if ch.offer(frame) {
			delivered++
			continue
		}
		if b.registry.Unregister(ch.ID()) {
			b.logger.WithFields(log.Fields{
				"client": ch.ID(),
				"event":  ev.Kind.StreamName(),
			}).Warn("stream client fell behind, disconnecting")
		}
	}
	b.logger.WithFields(log.Fields{
		"event":      ev.Kind.StreamName(),
		"task":       ev.Task.ID,
		"originator": originator,
		"delivered":  delivered,
	}).Debug("change broadcast")
	return delivered
}

// Publish implements domain.Notifier.
func (b *Broadcaster) Publish(ev domain.ChangeEvent, originator string) {
	b.Broadcast(ev, originator)
}
