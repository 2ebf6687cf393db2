package notify

import (
	"context"
	"log/slog"
	"sync"

	"taskherd/src/internal/directory"
)

// Notification is a delivery intent produced by the conversation commit
// or a reminder sweep. Business logic returns these instead of talking
// to a transport, so delivery failure stays isolated here.
type Notification struct {
	Broadcast bool   `json:"broadcast"`
	UserKey   string `json:"user_key,omitempty"`
	Text      string `json:"text"`
}

func ToBroadcast(text string) Notification {
	return Notification{Broadcast: true, Text: text}
}

func ToUser(key, text string) Notification {
	return Notification{UserKey: key, Text: text}
}

// Dispatcher is the narrow send contract the core depends on.
type Dispatcher interface {
	SendBroadcast(ctx context.Context, text string) error
	SendToUser(ctx context.Context, userKey string, text string) error
}

// SendAll delivers a batch through d in order. Dispatcher
// implementations absorb delivery failures themselves, so the returned
// errors carry nothing actionable here.
func SendAll(ctx context.Context, d Dispatcher, batch []Notification) {
	for _, n := range batch {
		if n.Broadcast {
			d.SendBroadcast(ctx, n.Text)
			continue
		}
		d.SendToUser(ctx, n.UserKey, n.Text)
	}
}

// Sender is the outbound half of a chat channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, target string, msg string) error
}

type sink struct {
	sender Sender
	// broadcastTarget is where team-wide messages go on this channel.
	// Empty means the channel carries no broadcast traffic.
	broadcastTarget string
	// private channels deliver per-user messages; broadcast-only sinks
	// (e.g. a WhatsApp group) leave this false.
	private bool
}

// Hub fans notifications out to the configured chat channels and to any
// registered observers (the admin event feed). Send failures are logged
// and swallowed; one unreachable recipient never blocks the rest of a
// batch.
type Hub struct {
	dir *directory.Directory

	mu        sync.RWMutex
	sinks     []sink
	observers []func(Notification)
}

func NewHub(dir *directory.Directory) *Hub {
	return &Hub{dir: dir}
}

// AddSink registers a chat channel. broadcastTarget may be empty;
// private enables per-user delivery through this channel using the
// directory address.
func (h *Hub) AddSink(s Sender, broadcastTarget string, private bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, sink{sender: s, broadcastTarget: broadcastTarget, private: private})
}

// AddObserver registers a callback invoked for every dispatched
// notification, after channel delivery is attempted.
func (h *Hub) AddObserver(fn func(Notification)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, fn)
}

func (h *Hub) SendBroadcast(ctx context.Context, text string) error {
	h.Dispatch(ctx, ToBroadcast(text))
	return nil
}

func (h *Hub) SendToUser(ctx context.Context, userKey string, text string) error {
	h.Dispatch(ctx, ToUser(userKey, text))
	return nil
}

// Dispatch delivers one notification to every matching sink.
func (h *Hub) Dispatch(ctx context.Context, n Notification) {
	h.mu.RLock()
	sinks := make([]sink, len(h.sinks))
	copy(sinks, h.sinks)
	observers := make([]func(Notification), len(h.observers))
	copy(observers, h.observers)
	h.mu.RUnlock()

	for _, s := range sinks {
		if n.Broadcast {
			if s.broadcastTarget == "" {
				continue
			}
			if err := s.sender.Send(ctx, s.broadcastTarget, n.Text); err != nil {
				slog.Error("broadcast send failed", "channel", s.sender.Name(), "error", err)
			}
			continue
		}
		if !s.private {
			continue
		}
		u, ok := h.dir.Resolve(n.UserKey)
		if !ok {
			slog.Warn("notification for unknown user", "user", n.UserKey)
			continue
		}
		if err := s.sender.Send(ctx, u.Address, n.Text); err != nil {
			slog.Error("user send failed", "channel", s.sender.Name(), "user", n.UserKey, "error", err)
		}
	}

	for _, fn := range observers {
		fn(n)
	}
}

// DispatchAll delivers a batch in order.
func (h *Hub) DispatchAll(ctx context.Context, batch []Notification) {
	for _, n := range batch {
		h.Dispatch(ctx, n)
	}
}
