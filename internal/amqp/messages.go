package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RollupAuditMessage asks the worker to recheck one user's rollups for a year.
// It carries no amounts: the worker recomputes from the store.
type RollupAuditMessage struct {
	UserID    string    `json:"user_id"`
	Year      int       `json:"year"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRollupAuditMessage(userID string, year int) *RollupAuditMessage {
	return &RollupAuditMessage{
		UserID:    userID,
		Year:      year,
		Timestamp: time.Now(),
	}
}

func (m *RollupAuditMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RollupAuditMessageFromJSON decodes and sanity-checks a message body.
func RollupAuditMessageFromJSON(data []byte) (*RollupAuditMessage, error) {
	var msg RollupAuditMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("rollup audit message: missing user_id")
	}
	if msg.Year < 1000 || msg.Year > 9999 {
		return nil, errors.New("rollup audit message: year out of range")
	}
	return &msg, nil
}
