package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/provider"
)

// EventContentType is accepted by EventWebhook.
const EventContentType = "application/vnd.parley.event+json"

// EventPayload is a pushed message: either free text to recognize or the name
// of a bot event with its context values.
type EventPayload struct {
	SessionID string                    `json:"session_id"`
	Text      string                    `json:"text,omitempty"`
	Event     string                    `json:"event,omitempty"`
	Contexts  map[string]map[string]any `json:"contexts,omitempty"`
}

// EventWebhook turns pushed payloads into queued turns. It does not wait for
// the turns: replies are observable on the session's event stream.
type EventWebhook struct {
	sink   provider.Sink
	logger *slog.Logger
}

// NewEventWebhook creates a webhook provider feeding sink.
func NewEventWebhook(sink provider.Sink, logger *slog.Logger) *EventWebhook {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &EventWebhook{sink: sink, logger: logger}
}

// AcceptContentType implements WebhookProvider.
func (h *EventWebhook) AcceptContentType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == EventContentType
}

// HandleContent implements WebhookProvider.
func (h *EventWebhook) HandleContent(ctx context.Context, contentType string, body []byte, headers http.Header) error {
	var p EventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("%w: invalid event payload: %w", domain.ErrInvalidArgument, err)
	}
	if p.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", domain.ErrInvalidArgument)
	}
	// The request context ends with the response; the turn must outlive it.
	ctx = context.WithoutCancel(ctx)

	switch {
	case p.Event != "":
		_, err := provider.SendEvent(ctx, h.sink, p.SessionID, p.Event, p.Contexts)
		return err
	case p.Text != "":
		text, err := provider.SanitizeInput(p.Text)
		if err != nil {
			return err
		}
		_, err = h.sink.SendText(ctx, p.SessionID, text)
		return err
	default:
		return fmt.Errorf("%w: payload has neither text nor event", domain.ErrInvalidArgument)
	}
}
