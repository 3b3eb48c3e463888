package session

import (
	"strings"
	"time"
)

// State is the lifecycle state of a session.
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateExpired   State = "expired"
	StateError     State = "error"
)

// Session is one USSD conversation, keyed by the gateway-assigned session id.
// All cross-turn state lives here; the HTTP handlers hold nothing in process.
type Session struct {
	ID             string            `json:"id"`
	MSISDN         string            `json:"msisdn"`
	Network        string            `json:"network"`
	CurrentMenu    string            `json:"current_menu"`
	Data           map[string]string `json:"data"` // keys namespaced "<flow>.<field>"
	Language       string            `json:"language"`
	State          State             `json:"state"`
	FailedAttempts int               `json:"failed_attempts"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
}

// Active reports whether the session may accept further input.
func (s *Session) Active(now time.Time) bool {
	return s.State == StateActive && now.Before(s.ExpiresAt)
}

// Set stores a collected, already-validated value under a flow-scoped key.
func (s *Session) Set(key, value string) {
	if s.Data == nil {
		s.Data = map[string]string{}
	}
	s.Data[key] = value
}

// Get returns a collected value, or "" if absent.
func (s *Session) Get(key string) string {
	return s.Data[key]
}

// ClearFlow drops every key collected under the given flow prefix. Called on
// backward navigation so an abandoned branch cannot leak stale values into a
// later one.
func (s *Session) ClearFlow(flow string) {
	prefix := flow + "."
	for k := range s.Data {
		if strings.HasPrefix(k, prefix) {
			delete(s.Data, k)
		}
	}
}
