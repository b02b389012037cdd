package ws

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxUsernameLength = 50
	MaxMessageLength  = 5000
)

var (
	ErrMessageEmpty    = errors.New("message content cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrMessageInvalid  = errors.New("message contains invalid characters")
	ErrUsernameTooLong = errors.New("username exceeds maximum length")
)

// inbound is a publish request. "message" is accepted as an alias of
// "content" for older clients.
type inbound struct {
	Username string `json:"username"`
	Content  string `json:"content"`
	Message  string `json:"message"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func decodeInbound(b []byte) (inbound, error) {
	var in inbound
	if err := json.Unmarshal(b, &in); err != nil {
		return inbound{}, err
	}
	if in.Content == "" {
		in.Content = in.Message
	}
	in.Message = ""
	in.Username = strings.TrimSpace(in.Username)

	if err := validateUsername(in.Username); err != nil {
		return inbound{}, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return inbound{}, ErrMessageEmpty
	}
	if len(in.Content) > MaxMessageLength {
		return inbound{}, ErrMessageTooLong
	}
	if !utf8.ValidString(in.Content) {
		return inbound{}, ErrMessageInvalid
	}
	return in, nil
}

func validateUsername(name string) error {
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrMessageInvalid
	}
	return nil
}
