package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

var errSendFailed = errors.New("send buffer full")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockMember records every event it receives.
type mockMember struct {
	id      string
	mu      sync.Mutex
	events  []Event
	sendErr error
}

func (m *mockMember) ID() string { return m.id }

func (m *mockMember) Deliver(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockMember) received() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// mockTransport is the same recorder used as a session transport.
type mockTransport = mockMember

// memStore is an in-memory Persistence.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[string][]Message
	saveErr error
	loadErr error
	loads   int

	// when set, LoadRecent signals started and waits for release or ctx
	started chan struct{}
	release chan struct{}
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string][]Message)}
}

func (s *memStore) Save(_ context.Context, roomID, username, content string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return Message{}, s.saveErr
	}
	s.nextID++
	m := Message{
		RecordID:  s.nextID,
		RoomID:    roomID,
		Username:  username,
		Content:   content,
		CreatedAt: time.Unix(1700000000+s.nextID, 0).UTC(),
	}
	s.rows[roomID] = append(s.rows[roomID], m)
	return m, nil
}

func (s *memStore) LoadRecent(ctx context.Context, roomID string, limit int) ([]Message, error) {
	s.mu.Lock()
	started, release := s.started, s.release
	s.mu.Unlock()
	if release != nil {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	rows := s.rows[roomID]
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]Message, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *memStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func msg(i int) Message {
	return Message{RecordID: int64(i), RoomID: "r", Username: "u", Content: fmt.Sprintf("m%d", i)}
}

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
