package events

import (
	"encoding/json"
	"time"

	"log/slog"

	"github.com/spectcast/identity/internal/domain"
	"github.com/spectcast/identity/internal/ws"
)

// Topic under which public account events are broadcast. The stream carries
// one topic today; per-username topics can be added without changing the hub.
const TopicAccounts = "accounts"

// Service fans public account events out to realtime gateway subscribers.
// Only the public projection ever crosses this boundary; secrets never reach
// the stream.
type Service struct {
	hub    *ws.Hub
	logger *slog.Logger
}

// New constructs an event service over a hub.
func New(hub *ws.Hub, logger *slog.Logger) Service {
	return Service{hub: hub, logger: logger}
}

// AccountEvent broadcasts a lifecycle event for the given account.
func (s Service) AccountEvent(event string, account domain.PublicAccount) {
	payload, err := MarshalEvent(event, account, time.Now().UTC())
	if err != nil {
		s.logger.Warn("failed to marshal account event", "event", event, "error", err)
		return
	}
	s.hub.Broadcast(TopicAccounts, payload)
}

// Hub returns the underlying hub for HTTP handlers to register subscribers.
func (s Service) Hub() *ws.Hub {
	return s.hub
}

// MarshalEvent formats an account event for streaming payloads.
func MarshalEvent(event string, account domain.PublicAccount, at time.Time) ([]byte, error) {
	payload := map[string]any{
		"event":   event,
		"account": account,
		"at":      at.Format(time.RFC3339Nano),
	}
	return json.Marshal(payload)
}
