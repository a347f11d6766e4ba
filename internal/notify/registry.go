package notify

import "sync"

const streamBufferSize = 16

// Event is one typed message written to a user's push stream.
type Event struct {
	Type    string
	Payload interface{}
}

// Recognized event types on the push stream.
const (
	EventConnectionSuccess = "connection_success"
	EventHabitReminder     = "habit_reminder"
)

// ReminderPayload is the body of a habit_reminder event.
type ReminderPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
}

// ConnectionPayload is the body of a connection_success event.
type ConnectionPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Registry maps a user identifier to at most one live push channel. It is the
// only owner of that map; all access goes through Register, Unregister and
// Send under the mutex.
type Registry struct {
	mu          sync.Mutex
	connections map[string]chan Event
}

// NewRegistry constructs an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]chan Event),
	}
}

// NewStream allocates a channel sized for the registry's delivery buffer.
func NewStream() chan Event {
	return make(chan Event, streamBufferSize)
}

// Register binds the stream as the user's delivery target. An existing stream
// for the same user is replaced, not closed; the handler that owns the old
// stream tears it down on its own disconnect path.
func (r *Registry) Register(userID string, stream chan Event) {
	if userID == "" || stream == nil {
		return
	}
	r.mu.Lock()
	r.connections[userID] = stream
	r.mu.Unlock()
}

// Unregister removes the user's mapping only when the registered stream is
// exactly the one passed in, so a stale disconnect handler cannot evict a
// newer connection.
func (r *Registry) Unregister(userID string, stream chan Event) {
	r.mu.Lock()
	if current, ok := r.connections[userID]; ok && current == stream {
		delete(r.connections, userID)
	}
	r.mu.Unlock()
}

// Send writes the event to the user's stream if one is registered and reports
// whether it was accepted. The write is non-blocking: a full buffer counts as
// a miss. There is no queuing or retry.
func (r *Registry) Send(userID string, event Event) bool {
	r.mu.Lock()
	stream, ok := r.connections[userID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case stream <- event:
		return true
	default:
		return false
	}
}
