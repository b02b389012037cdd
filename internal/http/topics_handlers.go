package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"discussion-room/internal/chat"
	"discussion-room/internal/store"
	"discussion-room/pkg/auth"
)

// TopicStore is the slice of the store the topic endpoints need.
type TopicStore interface {
	CreateTopic(ctx context.Context, title, description, username string) (store.Topic, error)
	ListTopics(ctx context.Context, limit, offset int) ([]store.Topic, error)
	GetTopic(ctx context.Context, id int64) (store.Topic, error)
	ToggleCommenting(ctx context.Context, id int64) (store.Topic, error)
	ListMessages(ctx context.Context, roomID string, limit, offset int) ([]chat.Message, error)
}

type TopicsAPI struct{ DB TopicStore }

type createTopicReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type topicResponse struct {
	ID                  int64     `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	IsActive            bool      `json:"is_active"`
	IsCommentingEnabled bool      `json:"is_commenting_enabled"`
	CreatedBy           string    `json:"created_by"`
	CreatedAt           time.Time `json:"created_at"`
}

func toTopicResponse(t store.Topic) topicResponse {
	return topicResponse{
		ID: t.ID, Title: t.Title, Description: t.Description,
		IsActive: t.IsActive, IsCommentingEnabled: t.IsCommentingEnabled,
		CreatedBy: t.CreatedBy, CreatedAt: t.CreatedAt,
	}
}

// Create handles new topic creation for the authenticated user.
func (a *TopicsAPI) Create(w http.ResponseWriter, r *http.Request) {
	var req createTopicReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if len(req.Title) > 200 {
		http.Error(w, "title too long", http.StatusBadRequest)
		return
	}

	c, _ := auth.FromContext(r.Context())
	t, err := a.DB.CreateTopic(r.Context(), strings.TrimSpace(req.Title), req.Description, c.Username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toTopicResponse(t))
}

// List returns a page of topics, newest first
func (a *TopicsAPI) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r, 100)
	topics, err := a.DB.ListTopics(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]topicResponse, 0, len(topics))
	for _, t := range topics {
		resp = append(resp, toTopicResponse(t))
	}
	writeJSON(w, resp)
}

// Get returns a single topic
func (a *TopicsAPI) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(w, r)
	if !ok {
		return
	}
	t, err := a.DB.GetTopic(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, toTopicResponse(t))
}

// ToggleCommenting flips whether new messages are accepted in the topic's room
func (a *TopicsAPI) ToggleCommenting(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(w, r)
	if !ok {
		return
	}
	t, err := a.DB.ToggleCommenting(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"status":                "success",
		"is_commenting_enabled": t.IsCommentingEnabled,
	})
}

// Messages pages through the stored history of a topic's room, oldest first
func (a *TopicsAPI) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(w, r)
	if !ok {
		return
	}
	limit, offset := paging(r, chat.MaxCacheSize)
	msgs, err := a.DB.ListMessages(r.Context(), strconv.FormatInt(id, 10), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, msgs)
}

func topicID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid topic id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// paging reads ?limit=&offset= with limit capped at max
func paging(r *http.Request, max int) (limit, offset int) {
	limit = max
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v < max {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "topic not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
