package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"discussion-room/pkg/metrics"
)

// warmTimeout bounds a shared cold-start load of room history.
const warmTimeout = 5 * time.Second

// Persistence is the durable message store.
type Persistence interface {
	Save(ctx context.Context, roomID, username, content string) (Message, error)
	LoadRecent(ctx context.Context, roomID string, limit int) ([]Message, error)
}

// PublishResult describes a successful publish.
type PublishResult struct {
	Message   Message
	Delivered int
	Failed    int
}

// Broadcaster persists messages, records them for backfill and fans them out
// to the room's current members.
type Broadcaster struct {
	log      *slog.Logger
	registry *Registry
	cache    *Cache
	store    Persistence

	loads singleflight.Group // one cold-start load per room at a time
}

// NewBroadcaster wires a broadcaster over a registry, cache and store.
func NewBroadcaster(log *slog.Logger, registry *Registry, cache *Cache, store Persistence) *Broadcaster {
	return &Broadcaster{log: log, registry: registry, cache: cache, store: store}
}

// Publish stores the message, appends it to the room cache and delivers it to
// every member joined at fan-out time. Nothing is cached or delivered when the
// save fails. A failing member never aborts delivery to the others.
func (b *Broadcaster) Publish(ctx context.Context, roomID, username, content string) (PublishResult, error) {
	msg, err := b.store.Save(ctx, roomID, username, content)
	if err != nil {
		metrics.PersistenceFailures.Inc()
		b.log.Warn("chat.persist.failed", "room", roomID, "user", username, "err", err)
		return PublishResult{}, &PersistenceError{RoomID: roomID, Err: err}
	}
	if msg.RoomID == "" {
		msg.RoomID = roomID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	b.cache.Append(roomID, msg)

	res := PublishResult{Message: msg}
	ev := LiveMessageEvent(msg)
	for _, m := range b.registry.Members(roomID) {
		if err := m.Deliver(ev); err != nil {
			res.Failed++
			b.log.Warn("chat.deliver.failed", "room", roomID, "err", &DeliveryError{ConnID: m.ID(), Err: err})
			continue
		}
		res.Delivered++
	}

	metrics.MessagesPublished.Inc()
	metrics.Deliveries.WithLabelValues("ok").Add(float64(res.Delivered))
	metrics.Deliveries.WithLabelValues("failed").Add(float64(res.Failed))
	b.log.Debug("chat.publish", "room", roomID, "id", msg.RecordID, "delivered", res.Delivered, "failed", res.Failed)
	return res, nil
}

// Backfill returns the cached history of the room, oldest first.
// It never touches storage.
func (b *Broadcaster) Backfill(roomID string) []Message {
	return b.cache.Snapshot(roomID)
}

// Warm loads the room's recent history from storage the first time the room
// is seen by this process. Later calls return immediately.
// The load is shared by concurrent joiners, so it runs detached from ctx;
// ctx only bounds how long this caller waits for it.
func (b *Broadcaster) Warm(ctx context.Context, roomID string) error {
	if b.cache.Primed(roomID) {
		return nil
	}

	ch := b.loads.DoChan(roomID, func() (any, error) {
		if b.cache.Primed(roomID) {
			return nil, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), warmTimeout)
		defer cancel()

		msgs, err := b.store.LoadRecent(lctx, roomID, b.cache.Size())
		if err != nil {
			return nil, err
		}
		b.cache.Prime(roomID, msgs)
		return nil, nil
	})

	var err error
	select {
	case res := <-ch:
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		metrics.CacheWarmups.WithLabelValues("failed").Inc()
		return fmt.Errorf("load recent messages for room %q: %w", roomID, err)
	}
	metrics.CacheWarmups.WithLabelValues("ok").Inc()
	return nil
}
