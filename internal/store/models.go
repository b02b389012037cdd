package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrCommentingDisabled = errors.New("commenting is disabled for this topic")
	ErrUsernameTaken      = errors.New("username already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Topic is a discussion room. Its ID doubles as the chat room id.
type Topic struct {
	ID                  int64
	Title               string
	Description         string
	IsActive            bool
	IsCommentingEnabled bool
	CreatedBy           string
	CreatedAt           time.Time
}
