package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// GroupChangedMessage announces that a group reached a new revision.
// Consumers reload the group themselves; the message carries no state.
type GroupChangedMessage struct {
	GroupID   string    `json:"group_id"`
	Revision  int64     `json:"revision"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewGroupChangedMessage(groupID string, revision int64, action string) GroupChangedMessage {
	return GroupChangedMessage{
		GroupID:   groupID,
		Revision:  revision,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

func (m GroupChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// GroupChangedMessageFromJSON decodes a message and rejects ones without a group.
func GroupChangedMessageFromJSON(data []byte) (GroupChangedMessage, error) {
	var msg GroupChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return GroupChangedMessage{}, err
	}
	if msg.GroupID == "" {
		return GroupChangedMessage{}, errors.New("message has no group_id")
	}
	return msg, nil
}
