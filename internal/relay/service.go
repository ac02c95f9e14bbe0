package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/protocol"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/ratelimit"
	"go.uber.org/zap"
)

const defaultStoreTimeout = 3 * time.Second

var (
	ErrSelfMessage       = errors.New("relay: sender and receiver must differ")
	ErrEmptyContent      = errors.New("relay: message content required")
	ErrContentTooLong    = errors.New("relay: message content exceeds limit")
	ErrBlocked           = errors.New("relay: conversation is blocked")
	ErrRecipientNotFound = errors.New("relay: recipient not found")
	// ErrPersistence wraps store failures on send; the sender may retry.
	ErrPersistence = errors.New("relay: message could not be persisted")

	errMissingStore      = errors.New("relay: store dependency required")
	errMissingRouter     = errors.New("relay: router dependency required")
	errMissingIDProvider = errors.New("relay: id provider dependency required")
)

// Store is the persistence collaborator. Implementations must be safe for
// concurrent use; every call arrives with a bounded-timeout context.
type Store interface {
	SaveMessage(ctx context.Context, message Message) (Message, error)
	MessageByID(ctx context.Context, messageID string) (Message, error)
	UpdateMessageStatus(ctx context.Context, messageID string, status Status, at time.Time) error
	MarkConversationRead(ctx context.Context, receiverID, senderID string, at time.Time) (int64, error)
	IsBlocked(ctx context.Context, userA, userB string) (bool, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	SetLastSeen(ctx context.Context, userID string, at time.Time) error
	Contacts(ctx context.Context, userID string) ([]string, error)
}

// Router addresses all of a user's open connections as one target.
type Router interface {
	IsOnline(userID string) bool
	Publish(userID string, envelope protocol.Envelope)
}

// Notifier fans events out to offline users through the push collaborator.
type Notifier interface {
	Dispatch(ctx context.Context, targetUserID, eventType string, payload map[string]string)
}

// IDProvider mints message identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the message relay.
type ServiceConfig struct {
	Store        Store
	Router       Router
	Notifier     Notifier
	IDProvider   IDProvider
	Clock        func() time.Time
	Logger       *zap.Logger
	StoreTimeout time.Duration
}

// Service validates and routes send, delivery-confirm, and read-confirm events
// between connected users, persisting through the store collaborator.
type Service struct {
	store        Store
	router       Router
	notifier     Notifier
	idProvider   IDProvider
	clock        func() time.Time
	logger       *zap.Logger
	storeTimeout time.Duration
}

// NewService constructs the relay service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Router == nil {
		return nil, errMissingRouter
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Service{
		store:        cfg.Store,
		router:       cfg.Router,
		notifier:     cfg.Notifier,
		idProvider:   cfg.IDProvider,
		clock:        clock,
		logger:       logger,
		storeTimeout: timeout,
	}, nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Send persists a new message with status SENT and routes it to the receiver's
// connections when online. The returned message is the sender's acknowledgment
// and is independent of receiver presence; offline receivers are reached
// through the notification dispatcher instead.
func (s *Service) Send(ctx context.Context, senderID, receiverID, content string) (Message, error) {
	senderID = strings.TrimSpace(senderID)
	receiverID = strings.TrimSpace(receiverID)
	if senderID == receiverID {
		return Message{}, ErrSelfMessage
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyContent
	}
	if len(content) > maxContentLength {
		return Message{}, ErrContentTooLong
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	exists, err := s.store.UserExists(storeCtx, receiverID)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !exists {
		return Message{}, ErrRecipientNotFound
	}

	blocked, err := s.store.IsBlocked(storeCtx, senderID, receiverID)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if blocked {
		return Message{}, ErrBlocked
	}

	messageID, err := s.idProvider.NewID()
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	message := Message{
		ID:         messageID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Status:     StatusSent,
		CreatedAt:  s.clock().UTC(),
	}

	// Persist first: only a durably stored message is ever routed.
	saved, err := s.store.SaveMessage(storeCtx, message)
	if err != nil {
		s.logger.Error("message persistence failed",
			zap.String("sender_id", senderID),
			zap.String("receiver_id", receiverID),
			zap.Error(err))
		return Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if s.router.IsOnline(receiverID) {
		s.publish(receiverID, protocol.EventMessageReceived, saved)
	} else if s.notifier != nil {
		go s.notifier.Dispatch(context.WithoutCancel(ctx), receiverID, ratelimit.EventChatMessage, map[string]string{
			"title":      "New message",
			"body":       "You have a new message waiting",
			"message_id": saved.ID,
			"sender_id":  saved.SenderID,
		})
	}

	return saved, nil
}

// ConfirmDelivered transitions a message from SENT to DELIVERED on behalf of
// its true receiver and notifies the sender's connections. Confirmations from
// any other user are dropped without revealing whether the message exists;
// confirming an already delivered or read message is a no-op.
func (s *Service) ConfirmDelivered(ctx context.Context, messageID, confirmingUserID string) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	message, err := s.store.MessageByID(storeCtx, messageID)
	if err != nil {
		s.logger.Debug("delivery confirmation lookup failed",
			zap.String("message_id", messageID), zap.Error(err))
		return nil
	}
	if message.ReceiverID != confirmingUserID {
		s.logger.Warn("delivery confirmation rejected for foreign message",
			zap.String("message_id", messageID),
			zap.String("confirming_user_id", confirmingUserID))
		return nil
	}
	if message.Status != StatusSent {
		return nil
	}

	deliveredAt := s.clock().UTC()
	if err := s.store.UpdateMessageStatus(storeCtx, message.ID, StatusDelivered, deliveredAt); err != nil {
		s.logger.Error("delivery status update failed",
			zap.String("message_id", message.ID), zap.Error(err))
		return nil
	}

	if s.pairBlocked(storeCtx, message.SenderID, message.ReceiverID) {
		return nil
	}
	s.publish(message.SenderID, protocol.EventMessageDelivered, protocol.DeliveredPayload{
		MessageID:   message.ID,
		DeliveredAt: deliveredAt,
	})
	return nil
}

// MarkRead transitions every unread message from the other party to READ in
// one bulk operation and emits a single aggregate receipt to that party's
// connections, regardless of how many messages were pending.
func (s *Service) MarkRead(ctx context.Context, readerID, otherPartyID string) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	readAt := s.clock().UTC()
	count, err := s.store.MarkConversationRead(storeCtx, readerID, otherPartyID, readAt)
	if err != nil {
		s.logger.Error("bulk read transition failed",
			zap.String("reader_id", readerID),
			zap.String("other_party_id", otherPartyID),
			zap.Error(err))
		return err
	}
	if count == 0 {
		return nil
	}

	if s.pairBlocked(storeCtx, readerID, otherPartyID) {
		return nil
	}
	s.publish(otherPartyID, protocol.EventMessageRead, protocol.ReadPayload{
		PartnerID: otherPartyID,
		ReaderID:  readerID,
		ReadAt:    readAt,
		Count:     count,
	})
	return nil
}

// pairBlocked re-checks the block relation at call time; a block created
// mid-conversation stops routing immediately in both directions.
func (s *Service) pairBlocked(ctx context.Context, userA, userB string) bool {
	blocked, err := s.store.IsBlocked(ctx, userA, userB)
	if err != nil {
		s.logger.Warn("block lookup failed, suppressing routing",
			zap.String("user_a", userA), zap.String("user_b", userB), zap.Error(err))
		return true
	}
	return blocked
}

func (s *Service) publish(userID, event string, payload any) {
	envelope, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		s.logger.Error("event encoding failed", zap.String("event", event), zap.Error(err))
		return
	}
	s.router.Publish(userID, envelope)
}
