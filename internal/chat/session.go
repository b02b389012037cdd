package chat

import (
	"context"
	"log/slog"
	"sync"

	"discussion-room/pkg/metrics"
)

// State is the lifecycle stage of a Session.
type State int

const (
	Connecting State = iota
	Joined
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Joined:
		return "joined"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport carries events to the client. Deliver must not block on I/O.
type Transport interface {
	Deliver(ev Event) error
}

// Session is one client's membership of a room.
type Session struct {
	id       string
	roomID   string
	username string

	log         *slog.Logger
	transport   Transport
	registry    *Registry
	broadcaster *Broadcaster

	mu         sync.Mutex
	state      State
	opening    bool
	pending    []Message            // live messages received before the backfill went out
	backfilled map[Message]struct{} // what the backfill carried, never re-sent live
}

// NewSession creates a session in the Connecting state.
func NewSession(id, roomID, username string, t Transport, registry *Registry, b *Broadcaster, log *slog.Logger) *Session {
	return &Session{
		id:          id,
		roomID:      roomID,
		username:    username,
		log:         log,
		transport:   t,
		registry:    registry,
		broadcaster: b,
		state:       Connecting,
	}
}

func (s *Session) ID() string       { return s.id }
func (s *Session) RoomID() string   { return s.roomID }
func (s *Session) Username() string { return s.username }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open joins the room and sends the backfill as the first event. Live
// messages that race the join are held back, flushed after the backfill and
// dropped when the backfill already carried them. On failure the session is
// Closed.
func (s *Session) Open(ctx context.Context) error {
	if err := s.broadcaster.Warm(ctx, s.roomID); err != nil {
		s.log.Warn("chat.warm.failed", "room", s.roomID, "conn", s.id, "err", err)
	}

	s.mu.Lock()
	switch {
	case s.state == Closed:
		s.mu.Unlock()
		return ErrConnectionClosed
	case s.state == Joined || s.opening:
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	if err := s.registry.Join(s.roomID, s); err != nil {
		s.state = Closed
		s.mu.Unlock()
		return err
	}
	s.opening = true
	s.mu.Unlock()

	// snapshot after Join: anything cached later reaches us through Deliver
	backlog := s.broadcaster.Backfill(s.roomID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opening = false

	if s.state == Closed {
		return ErrConnectionClosed
	}
	if err := s.transport.Deliver(BackfillEvent(backlog)); err != nil {
		s.closeLocked()
		return err
	}

	s.backfilled = make(map[Message]struct{}, len(backlog))
	for _, m := range backlog {
		s.backfilled[m] = struct{}{}
	}
	pending := s.pending
	s.pending = nil
	for _, m := range pending {
		if _, dup := s.backfilled[m]; dup {
			continue
		}
		if err := s.transport.Deliver(LiveMessageEvent(m)); err != nil {
			s.closeLocked()
			return err
		}
	}

	s.state = Joined
	metrics.ActiveSessions.Inc()
	s.log.Info("chat.join", "room", s.roomID, "conn", s.id, "user", s.username, "backfill", len(backlog))
	return nil
}

// Deliver is called by the broadcaster for every live message in the room.
func (s *Session) Deliver(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Connecting:
		if ev.Type == EventLive && ev.Message != nil {
			s.pending = append(s.pending, *ev.Message)
		}
		return nil
	case Joined:
		if ev.Type == EventLive && ev.Message != nil {
			if _, dup := s.backfilled[*ev.Message]; dup {
				return nil
			}
		}
		return s.transport.Deliver(ev)
	default:
		return ErrConnectionClosed
	}
}

// SendMessage publishes content to the session's room. An empty username
// falls back to the one the session was opened with.
func (s *Session) SendMessage(ctx context.Context, content, username string) (PublishResult, error) {
	switch s.State() {
	case Closed:
		return PublishResult{}, ErrConnectionClosed
	case Connecting:
		return PublishResult{}, ErrNotJoined
	}
	if username == "" {
		username = s.username
	}
	return s.broadcaster.Publish(ctx, s.roomID, username, content)
}

// Close leaves the room. Calling it again returns ErrConnectionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return ErrConnectionClosed
	}
	s.closeLocked()
	s.log.Info("chat.leave", "room", s.roomID, "conn", s.id)
	return nil
}

func (s *Session) closeLocked() {
	if s.state == Joined {
		metrics.ActiveSessions.Dec()
	}
	s.state = Closed
	s.pending = nil
	s.backfilled = nil
	s.registry.Leave(s.roomID, s)
}
