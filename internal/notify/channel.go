package notify

import "sync"

// Event is a notification delivered to a rendering layer subscriber.
// Permanent events carry an ID so a later Dismissed event can be matched.
type Event struct {
	ID        int
	Key       string
	Severity  Severity
	Params    Params
	Permanent bool
	Dismissed bool
}

// ChannelNotifier publishes notifications on a buffered channel. Events are
// dropped rather than blocking the manager when the subscriber lags.
type ChannelNotifier struct {
	mu     sync.Mutex
	nextID int
	events chan Event
}

func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelNotifier{events: make(chan Event, buffer)}
}

// Events returns the stream consumed by the rendering layer.
func (n *ChannelNotifier) Events() <-chan Event {
	return n.events
}

func (n *ChannelNotifier) Temporary(key string, severity Severity, params Params) {
	n.send(Event{Key: key, Severity: severity, Params: params})
}

func (n *ChannelNotifier) Permanent(key string, severity Severity, params Params) DismissFunc {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.mu.Unlock()

	n.send(Event{ID: id, Key: key, Severity: severity, Params: params, Permanent: true})

	var once sync.Once
	return func() {
		once.Do(func() {
			n.send(Event{ID: id, Key: key, Permanent: true, Dismissed: true})
		})
	}
}

func (n *ChannelNotifier) send(ev Event) {
	select {
	case n.events <- ev:
	default:
	}
}
