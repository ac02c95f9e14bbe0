package relay

import (
	"time"
)

// Status enumerates the delivery lifecycle of a chat message. Transitions are
// monotonic: SENT → DELIVERED → READ, never backward.
type Status string

const (
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
)

const maxContentLength = 4000

// Message is a persisted chat message between two users.
type Message struct {
	ID          string     `gorm:"column:id;primaryKey;size:36" json:"id"`
	SenderID    string     `gorm:"column:sender_id;size:190;not null;index:idx_conversation_status,priority:2" json:"sender_id"`
	ReceiverID  string     `gorm:"column:receiver_id;size:190;not null;index:idx_conversation_status,priority:1" json:"receiver_id"`
	Content     string     `gorm:"column:content;size:4000;not null" json:"content"`
	Status      Status     `gorm:"column:status;size:16;not null;index:idx_conversation_status,priority:3" json:"status"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	DeliveredAt *time.Time `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	ReadAt      *time.Time `gorm:"column:read_at" json:"read_at,omitempty"`
}

// TableName exposes the table backing chat messages.
func (Message) TableName() string {
	return "chat_messages"
}
