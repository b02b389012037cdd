package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discussion-room/internal/app"
	"discussion-room/internal/chat"
	"discussion-room/internal/store"
	"discussion-room/internal/ws"
)

type fakeDB struct {
	mu      sync.Mutex
	users   map[string]string
	topics  map[int64]store.Topic
	msgs    []chat.Message
	nextID  int64
	pingErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{users: map[string]string{}, topics: map[int64]store.Topic{}}
}

func (f *fakeDB) CreateUser(_ context.Context, username, email, password string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return store.User{}, store.ErrUsernameTaken
	}
	f.users[username] = password
	f.nextID++
	return store.User{ID: f.nextID, Username: username, Email: email}, nil
}

func (f *fakeDB) VerifyUser(_ context.Context, username, password string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pw, ok := f.users[username]; !ok || pw != password {
		return store.User{}, store.ErrInvalidCredentials
	}
	return store.User{ID: 1, Username: username}, nil
}

func (f *fakeDB) CreateTopic(_ context.Context, title, description, username string) (store.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := store.Topic{
		ID: f.nextID, Title: title, Description: description, CreatedBy: username,
		IsActive: true, IsCommentingEnabled: true, CreatedAt: time.Now().UTC(),
	}
	f.topics[t.ID] = t
	return t, nil
}

func (f *fakeDB) ListTopics(context.Context, int, int) ([]store.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Topic{}
	for _, t := range f.topics {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeDB) GetTopic(_ context.Context, id int64) (store.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.topics[id]
	if !ok {
		return store.Topic{}, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeDB) ToggleCommenting(_ context.Context, id int64) (store.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.topics[id]
	if !ok {
		return store.Topic{}, store.ErrNotFound
	}
	t.IsCommentingEnabled = !t.IsCommentingEnabled
	f.topics[id] = t
	return t, nil
}

func (f *fakeDB) ListMessages(_ context.Context, roomID string, limit, offset int) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chat.Message
	for _, m := range f.msgs {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

type nopPersistence struct{}

func (nopPersistence) Save(_ context.Context, roomID, username, content string) (chat.Message, error) {
	return chat.Message{}, errors.New("unused")
}

func (nopPersistence) LoadRecent(context.Context, string, int) ([]chat.Message, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) (http.Handler, *fakeDB) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := app.Config{
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
		CORSAllow:      []string{"http://localhost:3000"},
		HTTPRatePerMin: 1000,
	}
	reg := chat.NewRegistry()
	b := chat.NewBroadcaster(log, reg, chat.NewCache(chat.MaxCacheSize), nopPersistence{})
	hub := ws.NewHub(log, reg, b, ws.Options{})
	db := newFakeDB()
	return NewRouter(cfg, log, hub, db), db
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, h http.Handler, name string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": name, "email": name + "@example.com",
		"password": "password123", "confirm_password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp tokenResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthAndReady(t *testing.T) {
	h, db := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "", nil).Code)

	db.pingErr = errors.New("down")
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/readyz", "", nil).Code)

	rec := do(t, h, http.MethodGet, "/stats", "", nil)
	assert.JSONEq(t, `{"rooms":0,"members":0}`, rec.Body.String())
}

func TestAuthFlow(t *testing.T) {
	h, _ := newTestRouter(t)
	tok := register(t, h, "alice")

	rec := do(t, h, http.MethodGet, "/api/auth/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me authUserDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "alice", me.Username)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/auth/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/auth/me", "garbage", nil).Code)

	rec = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "password123"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/auth/logout", "", nil).Code)
}

func TestRegisterValidation(t *testing.T) {
	h, _ := newTestRouter(t)
	register(t, h, "bob")

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"mismatch", map[string]string{"username": "x", "password": "password123", "confirm_password": "password124"}, http.StatusBadRequest},
		{"weak", map[string]string{"username": "x", "password": "short", "confirm_password": "short"}, http.StatusBadRequest},
		{"blank username", map[string]string{"username": "  ", "password": "password123", "confirm_password": "password123"}, http.StatusBadRequest},
		{"taken", map[string]string{"username": "bob", "password": "password123", "confirm_password": "password123"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, h, http.MethodPost, "/api/auth/register", "", tt.body).Code)
		})
	}
}

func TestTopics(t *testing.T) {
	h, db := newTestRouter(t)
	tok := register(t, h, "alice")

	assert.Equal(t, http.StatusUnauthorized,
		do(t, h, http.MethodPost, "/api/topics", "", map[string]string{"title": "Go"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/api/topics", tok, map[string]string{"title": ""}).Code)

	rec := do(t, h, http.MethodPost, "/api/topics", tok, map[string]string{"title": "Go", "description": "gophers"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var topic topicResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&topic))
	assert.Equal(t, "alice", topic.CreatedBy)
	assert.True(t, topic.IsCommentingEnabled)
	id := strconv.FormatInt(topic.ID, 10)

	rec = do(t, h, http.MethodGet, "/api/topics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []topicResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/topics/"+id, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/topics/999", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/topics/abc", "", nil).Code)

	rec = do(t, h, http.MethodPost, "/api/topics/"+id+"/toggle_commenting", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","is_commenting_enabled":false}`, rec.Body.String())

	db.msgs = []chat.Message{
		{RecordID: 1, RoomID: id, Username: "alice", Content: "a"},
		{RecordID: 2, RoomID: "other", Username: "bob", Content: "b"},
		{RecordID: 3, RoomID: id, Username: "bob", Content: "c"},
	}
	rec = do(t, h, http.MethodGet, "/api/topics/"+id+"/messages?limit=1&offset=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []chat.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "c", msgs[0].Content)

	rec = do(t, h, http.MethodGet, "/api/topics/"+id+"/messages?offset=10", "", nil)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())))
}

func TestRateLimit(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := app.Config{JWTSecret: "s", HTTPRatePerMin: 2}
	reg := chat.NewRegistry()
	b := chat.NewBroadcaster(log, reg, chat.NewCache(0), nopPersistence{})
	h := NewRouter(cfg, log, ws.NewHub(log, reg, b, ws.Options{}), newFakeDB())

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
}

func TestAuthMiddlewareHeaderParsing(t *testing.T) {
	h, _ := newTestRouter(t)
	tok := register(t, h, "erin")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"canonical", "Bearer " + tok, http.StatusOK},
		{"lowercase scheme", "bearer " + tok, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + tok, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}
