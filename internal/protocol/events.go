package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client-originated event names.
const (
	EventMessageSend      = "message:send"
	EventMessageDelivered = "message:delivered"
	EventMessageRead      = "message:read"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
)

// Server-originated event names.
const (
	EventMessageAck      = "message:ack"
	EventMessageReceived = "message:received"
	EventPresenceOnline  = "presence:online"
	EventPresenceOffline = "presence:offline"
	EventError           = "error"
)

// ErrInvalidEnvelope indicates a frame that could not be decoded into an envelope.
var ErrInvalidEnvelope = errors.New("protocol: invalid envelope")

// Envelope is the wire frame exchanged over a relay connection. Data carries
// the event-specific payload and stays opaque until the event name is known.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses a raw frame and validates the event name is present.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if strings.TrimSpace(envelope.Event) == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrInvalidEnvelope)
	}
	return envelope, nil
}

// NewEnvelope wraps an outbound payload, marshalling it eagerly so fan-out to
// multiple devices shares one encoded body.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("protocol: encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// SendPayload accompanies message:send.
type SendPayload struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// DeliveredPayload accompanies message:delivered from the client and the
// message:delivered notice routed back to the sender.
type DeliveredPayload struct {
	MessageID   string    `json:"message_id"`
	DeliveredAt time.Time `json:"delivered_at,omitempty"`
}

// ReadPayload accompanies message:read. Inbound it names the conversation
// partner whose messages were read; outbound it is the single aggregate
// receipt sent to that partner.
type ReadPayload struct {
	PartnerID string    `json:"partner_id"`
	ReaderID  string    `json:"reader_id,omitempty"`
	ReadAt    time.Time `json:"read_at,omitempty"`
	Count     int64     `json:"count,omitempty"`
}

// TypingPayload accompanies typing:start and typing:stop in both directions.
type TypingPayload struct {
	PartnerID string `json:"partner_id"`
	SenderID  string `json:"sender_id,omitempty"`
}

// PresencePayload accompanies presence:online and presence:offline.
type PresencePayload struct {
	UserID   string    `json:"user_id"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// ErrorPayload accompanies error frames surfaced to the initiating client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
