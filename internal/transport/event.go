// Package transport adapts HTTP and NATS inbound messages to the dispatcher.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/msbot/internal/dispatch"
	"github.com/odyssey-erp/msbot/internal/platform/httpx"
)

const maxBodyBytes = 64 << 10

// Dispatcher is the core the transports feed.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev dispatch.Event) dispatch.Response
	Status(ctx context.Context) dispatch.Status
}

// MessageRequest is the inbound wire format shared by HTTP and NATS.
type MessageRequest struct {
	ID          string            `json:"id,omitempty" validate:"omitempty,max=128"`
	PrincipalID string            `json:"principal_id" validate:"max=256"`
	DisplayName string            `json:"display_name,omitempty" validate:"max=256"`
	Text        string            `json:"text" validate:"required,max=16000"`
	Metadata    map[string]string `json:"metadata,omitempty" validate:"max=32"`
}

// MessageResponse is the outbound wire format.
type MessageResponse struct {
	EventID string `json:"event_id"`
	Text    string `json:"text"`
	Outcome string `json:"outcome"`
}

func toEvent(req MessageRequest, now time.Time) dispatch.Event {
	return dispatch.Event{
		ID:          strings.TrimSpace(req.ID),
		PrincipalID: req.PrincipalID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Text:        req.Text,
		Metadata:    req.Metadata,
		ReceivedAt:  now,
	}
}

func toResponse(resp dispatch.Response) MessageResponse {
	return MessageResponse{EventID: resp.EventID, Text: resp.Text, Outcome: string(resp.Outcome)}
}

func validateRequest(v *validator.Validate, req MessageRequest) error {
	if err := v.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}
