package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/core"
)

type EventType string

const (
	EventItemCreated EventType = "created"
	EventItemUpdated EventType = "updated"
	EventItemDeleted EventType = "deleted"
)

// SpendingEvent announces a change to a user's spending items. It carries
// enough for consumers to decide whether to re-evaluate the user's month
// without reading the item back.
type SpendingEvent struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id"`
	ItemID     string    `json:"item_id"`
	CategoryID string    `json:"category_id,omitempty"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewSpendingEvent(t EventType, item core.SpendingItem) *SpendingEvent {
	return &SpendingEvent{
		Type:       t,
		UserID:     item.UserID,
		ItemID:     item.ID,
		CategoryID: item.CategoryID,
		Amount:     item.Amount,
		OccurredAt: item.CreatedAt,
		Timestamp:  time.Now(),
	}
}

func (e *SpendingEvent) Validate() error {
	switch e.Type {
	case EventItemCreated, EventItemUpdated, EventItemDeleted:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.UserID == "" {
		return fmt.Errorf("event has no user id")
	}
	return nil
}

func (e *SpendingEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func SpendingEventFromJSON(data []byte) (*SpendingEvent, error) {
	var evt SpendingEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return &evt, nil
}
