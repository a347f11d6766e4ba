package notify

import "go.uber.org/zap"

// Broker delivers typed events to a user's live connection through the
// registry. Delivery is best effort: the boolean result feeds logging only
// and a missing connection is the expected case for offline users.
type Broker struct {
	registry *Registry
	logger   *zap.Logger
}

// NewBroker constructs a broker over the provided registry.
func NewBroker(registry *Registry, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		registry: registry,
		logger:   logger,
	}
}

// Notify sends one event to the user's connection if present. It never fails;
// the return value reports whether a live connection accepted the event.
func (b *Broker) Notify(userID, eventType string, payload interface{}) bool {
	delivered := b.registry.Send(userID, Event{Type: eventType, Payload: payload})
	if delivered {
		b.logger.Debug("notification delivered",
			zap.String("user_id", userID),
			zap.String("event_type", eventType))
	} else {
		b.logger.Debug("notification missed, no live connection",
			zap.String("user_id", userID),
			zap.String("event_type", eventType))
	}
	return delivered
}
