package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/relay"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("store: database handle required")
	// ErrMessageNotFound indicates no message row matched the identifier.
	ErrMessageNotFound = errors.New("store: message not found")
	// ErrInvalidStatus indicates a status value outside the lifecycle enum.
	ErrInvalidStatus = errors.New("store: invalid message status")
)

// SQLStore implements relay.Store on the relational schema shared with the
// main backend.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &SQLStore{db: db}, nil
}

// SaveMessage persists a new message row.
func (s *SQLStore) SaveMessage(ctx context.Context, message relay.Message) (relay.Message, error) {
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return relay.Message{}, fmt.Errorf("store: save message: %w", err)
	}
	return message, nil
}

// MessageByID loads one message row.
func (s *SQLStore) MessageByID(ctx context.Context, messageID string) (relay.Message, error) {
	var message relay.Message
	err := s.db.WithContext(ctx).Where("id = ?", messageID).First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return relay.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return relay.Message{}, fmt.Errorf("store: load message: %w", err)
	}
	return message, nil
}

// UpdateMessageStatus advances a message along the SENT → DELIVERED → READ
// lifecycle. The guarded predicates make backward transitions no-ops at the
// row level, so a racing confirmation can never regress status.
func (s *SQLStore) UpdateMessageStatus(ctx context.Context, messageID string, status relay.Status, at time.Time) error {
	query := s.db.WithContext(ctx).Model(&relay.Message{}).Where("id = ?", messageID)

	var err error
	switch status {
	case relay.StatusDelivered:
		err = query.Where("status = ?", relay.StatusSent).
			Updates(map[string]interface{}{"status": relay.StatusDelivered, "delivered_at": at}).Error
	case relay.StatusRead:
		err = query.Where("status <> ?", relay.StatusRead).
			Updates(map[string]interface{}{"status": relay.StatusRead, "read_at": at}).Error
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	if err != nil {
		return fmt.Errorf("store: update message status: %w", err)
	}
	return nil
}

// MarkConversationRead bulk-transitions every unread message of one
// conversation direction to READ and reports how many rows changed.
func (s *SQLStore) MarkConversationRead(ctx context.Context, receiverID, senderID string, at time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&relay.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND status <> ?", receiverID, senderID, relay.StatusRead).
		Updates(map[string]interface{}{"status": relay.StatusRead, "read_at": at})
	if result.Error != nil {
		return 0, fmt.Errorf("store: mark conversation read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// IsBlocked reports whether an unordered block relation exists for the pair.
func (s *SQLStore) IsBlocked(ctx context.Context, userA, userB string) (bool, error) {
	low, high := normalizePair(userA, userB)
	var count int64
	err := s.db.WithContext(ctx).Model(&Block{}).
		Where("user_low = ? AND user_high = ?", low, high).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: block lookup: %w", err)
	}
	return count > 0, nil
}

// UserExists reports whether the user exists and is not deactivated.
func (s *SQLStore) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND active = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: user lookup: %w", err)
	}
	return count > 0, nil
}

// SetLastSeen records when the user's last connection closed.
func (s *SQLStore) SetLastSeen(ctx context.Context, userID string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("last_seen_at", at).Error
	if err != nil {
		return fmt.Errorf("store: set last seen: %w", err)
	}
	return nil
}

// Contacts returns the ids of every user in an accepted match with the user.
func (s *SQLStore) Contacts(ctx context.Context, userID string) ([]string, error) {
	var rows []Contact
	err := s.db.WithContext(ctx).
		Where("user_low = ? OR user_high = ?", userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: contact lookup: %w", err)
	}
	contacts := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.UserLow == userID {
			contacts = append(contacts, row.UserHigh)
		} else {
			contacts = append(contacts, row.UserLow)
		}
	}
	return contacts, nil
}
