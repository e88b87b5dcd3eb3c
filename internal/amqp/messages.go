package amqp

import (
	"encoding/json"
	"time"
)

// EntryChangedMessage notifies consumers that the entries for (user, date)
// changed and their rollups were recomputed. It carries keys only; consumers
// re-read the day from the store, so stale deliveries are harmless.
type EntryChangedMessage struct {
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryChangedMessage(userID, date string) *EntryChangedMessage {
	return &EntryChangedMessage{
		UserID:    userID,
		Date:      date,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EntryChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryChangedMessageFromJSON creates a message from JSON bytes
func EntryChangedMessageFromJSON(data []byte) (*EntryChangedMessage, error) {
	var msg EntryChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
