package amqp

import (
	"encoding/json"
	"time"
)

// Check reasons carried on queue messages, for logging only.
const (
	ReasonTransactionRecorded = "transaction_recorded"
	ReasonManualTrigger       = "manual_trigger"
)

// AlertCheckMessage asks the worker to run a budget check for one user.
// It carries only the user id and a reason; the worker fetches everything
// else from the database at processing time.
type AlertCheckMessage struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAlertCheckMessage creates a check message for the given user.
func NewAlertCheckMessage(userID, reason string) *AlertCheckMessage {
	return &AlertCheckMessage{
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *AlertCheckMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AlertCheckMessageFromJSON creates a message from JSON bytes.
func AlertCheckMessageFromJSON(data []byte) (*AlertCheckMessage, error) {
	var msg AlertCheckMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
