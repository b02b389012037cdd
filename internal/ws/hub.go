package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"discussion-room/internal/chat"
	"discussion-room/internal/store"
	"discussion-room/pkg/auth"
	"discussion-room/pkg/metrics"
)

var errBadToken = errors.New("bad token")

// Options tune the websocket endpoint.
type Options struct {
	JWT            *auth.JWT // optional, enables ?token=
	MsgRate        float64   // inbound messages per second per connection
	MsgBurst       int
	OriginPatterns []string
}

// Hub serves chat sessions over websockets.
type Hub struct {
	log         *slog.Logger
	registry    *chat.Registry
	broadcaster *chat.Broadcaster
	opts        Options
}

// NewHub sets up the hub over a shared registry + broadcaster
func NewHub(logger *slog.Logger, registry *chat.Registry, b *chat.Broadcaster, opts Options) *Hub {
	if opts.MsgRate <= 0 {
		opts.MsgRate = 5
	}
	if opts.MsgBurst <= 0 {
		opts.MsgBurst = 10
	}
	if len(opts.OriginPatterns) == 0 {
		opts.OriginPatterns = []string{"*"}
	}
	return &Hub{log: logger, registry: registry, broadcaster: b, opts: opts}
}

// Stats reports live rooms and members
func (h *Hub) Stats() (rooms, members int) { return h.registry.Stats() }

// ServeWS handles /ws/chat/{room}
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("room"))
	if roomID == "" {
		http.Error(w, "room required", http.StatusBadRequest)
		return
	}

	username, verified, err := h.username(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBadToken) {
			status = http.StatusUnauthorized
		}
		http.Error(w, err.Error(), status)
		return
	}

	wsc, err := Accept(w, r, h.opts.OriginPatterns)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := NewConn(wsc)
	go conn.WriteLoop(ctx)

	sess := chat.NewSession(uuid.NewString(), roomID, username, conn, h.registry, h.broadcaster, h.log)
	if err := sess.Open(ctx); err != nil {
		h.log.Warn("ws.join", "room", roomID, "conn", sess.ID(), "err", err)
		conn.Close(websocket.StatusPolicyViolation, "join failed")
		return
	}
	defer func() {
		_ = sess.Close()
		conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	h.readLoop(ctx, conn, sess, verified)
}

// readLoop publishes every valid inbound frame until the client goes away.
// Token-authenticated sessions always publish under the token's username.
func (h *Hub) readLoop(ctx context.Context, conn *Conn, sess *chat.Session, verified bool) {
	limiter := rate.NewLimiter(rate.Limit(h.opts.MsgRate), h.opts.MsgBurst)

	for {
		raw, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.log.Debug("ws.read", "conn", sess.ID(), "err", err)
			}
			return
		}

		in, err := decodeInbound(raw)
		if err != nil {
			_ = conn.SendError("bad_request", err.Error())
			continue
		}
		if !limiter.Allow() {
			metrics.RateLimited.WithLabelValues("publish").Inc()
			_ = conn.SendError("rate_limited", "slow down")
			continue
		}

		name := in.Username
		if verified {
			name = ""
		}
		if _, err := sess.SendMessage(ctx, in.Content, name); err != nil {
			if errors.Is(err, chat.ErrConnectionClosed) {
				return
			}
			_ = conn.SendError(errorCode(err), "message was not saved")
		}
	}
}

// username prefers a verified token over the plain query parameter.
// verified is true when the name came from the token.
func (h *Hub) username(r *http.Request) (name string, verified bool, err error) {
	q := r.URL.Query()
	if tok := q.Get("token"); tok != "" && h.opts.JWT != nil {
		c, err := h.opts.JWT.Verify(tok)
		if err != nil {
			return "", false, errBadToken
		}
		if c.Username != "" {
			return c.Username, true, nil
		}
	}
	name = strings.TrimSpace(q.Get("username"))
	if err := validateUsername(name); err != nil {
		return "", false, err
	}
	if name == "" {
		name = "anonymous"
	}
	return name, false, nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrCommentingDisabled):
		return "commenting_disabled"
	default:
		var pe *chat.PersistenceError
		if errors.As(err, &pe) {
			return "persist_failed"
		}
		return "publish_failed"
	}
}
