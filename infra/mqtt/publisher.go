package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/haulage/core/model"
)

const defaultTopicPrefix = "haulage"

// Message is the payload relayed to a user's notification topic.
type Message struct {
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	JobID          string            `json:"job_id,omitempty"`
	Type           string            `json:"type"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Context        map[string]string `json:"context,omitempty"`
	Timestamp      int64             `json:"timestamp"`
}

// NewMessage converts a notification into its wire form.
func NewMessage(n model.Notification) Message {
	ts := n.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Message{
		NotificationID: n.ID,
		UserID:         n.UserID,
		JobID:          n.JobID,
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
		Context:        n.Context,
		Timestamp:      ts.UnixMilli(),
	}
}

// Encode marshals the message as JSON.
func (m Message) Encode() ([]byte, error) { return json.Marshal(m) }

// UserTopic returns <prefix>/users/<userID>/notifications.
func UserTopic(prefix, userID string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return fmt.Sprintf("%s/users/%s/notifications", prefix, userID)
}

// ReadReceipt is published by clients on the read topic once a user has
// opened a notification.
type ReadReceipt struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
}
