package paddle

import "encoding/json"

// Event types the credit pipeline reacts to.
const EventTransactionCompleted = "transaction.completed"

// Event is a Paddle webhook payload.
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      TransactionData `json:"data"`
}

// TransactionData is the slice of a transaction event the credit pipeline
// needs: who bought, and how many credits the checkout carried.
type TransactionData struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	CustomData CustomData `json:"custom_data"`
}

// CustomData is set at checkout time so the webhook can be attributed to a
// user without a vendor-side lookup.
type CustomData struct {
	UserID  string `json:"user_id"`
	Credits int    `json:"credits"`
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
