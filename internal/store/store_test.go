package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/relay"
	"gorm.io/gorm"
)

var memoryDatabaseSequence int

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	memoryDatabaseSequence++
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", memoryDatabaseSequence)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	sqlStore, err := NewSQLStore(db)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	seedUsers(t, db, "user-a", "user-b", "user-c")
	return sqlStore
}

func seedUsers(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := db.Create(&User{ID: id, Active: true}).Error; err != nil {
			t.Fatalf("failed to seed user %s: %v", id, err)
		}
	}
}

func saveTestMessage(t *testing.T, sqlStore *SQLStore, id, sender, receiver string) relay.Message {
	t.Helper()
	message, err := sqlStore.SaveMessage(context.Background(), relay.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    "test content",
		Status:     relay.StatusSent,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to save message: %v", err)
	}
	return message
}

func TestSaveAndLoadMessage(t *testing.T) {
	sqlStore := openTestStore(t)

	saved := saveTestMessage(t, sqlStore, "msg-1", "user-a", "user-b")

	loaded, err := sqlStore.MessageByID(context.Background(), saved.ID)
	if err != nil {
		t.Fatalf("failed to load message: %v", err)
	}
	if loaded.SenderID != "user-a" || loaded.ReceiverID != "user-b" || loaded.Status != relay.StatusSent {
		t.Fatalf("unexpected loaded message: %+v", loaded)
	}
}

func TestMessageByIDNotFound(t *testing.T) {
	sqlStore := openTestStore(t)
	if _, err := sqlStore.MessageByID(context.Background(), "msg-ghost"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestUpdateMessageStatusIsMonotonic(t *testing.T) {
	sqlStore := openTestStore(t)
	message := saveTestMessage(t, sqlStore, "msg-1", "user-a", "user-b")
	ctx := context.Background()

	deliveredAt := time.Now().UTC()
	if err := sqlStore.UpdateMessageStatus(ctx, message.ID, relay.StatusDelivered, deliveredAt); err != nil {
		t.Fatalf("failed to mark delivered: %v", err)
	}
	loaded, err := sqlStore.MessageByID(ctx, message.ID)
	if err != nil {
		t.Fatalf("failed to load message: %v", err)
	}
	if loaded.Status != relay.StatusDelivered || loaded.DeliveredAt == nil {
		t.Fatalf("expected DELIVERED with timestamp, got %+v", loaded)
	}

	readAt := time.Now().UTC()
	if err := sqlStore.UpdateMessageStatus(ctx, message.ID, relay.StatusRead, readAt); err != nil {
		t.Fatalf("failed to mark read: %v", err)
	}

	// A late delivery confirmation must not regress READ.
	if err := sqlStore.UpdateMessageStatus(ctx, message.ID, relay.StatusDelivered, time.Now().UTC()); err != nil {
		t.Fatalf("late delivery confirmation errored: %v", err)
	}
	loaded, err = sqlStore.MessageByID(ctx, message.ID)
	if err != nil {
		t.Fatalf("failed to load message: %v", err)
	}
	if loaded.Status != relay.StatusRead {
		t.Fatalf("status regressed to %s", loaded.Status)
	}
}

func TestUpdateMessageStatusRejectsSent(t *testing.T) {
	sqlStore := openTestStore(t)
	message := saveTestMessage(t, sqlStore, "msg-1", "user-a", "user-b")

	err := sqlStore.UpdateMessageStatus(context.Background(), message.ID, relay.StatusSent, time.Now().UTC())
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for SENT target, got %v", err)
	}
}

func TestMarkConversationReadCountsOnlyUnread(t *testing.T) {
	sqlStore := openTestStore(t)
	ctx := context.Background()

	saveTestMessage(t, sqlStore, "msg-1", "user-a", "user-b")
	saveTestMessage(t, sqlStore, "msg-2", "user-a", "user-b")
	saveTestMessage(t, sqlStore, "msg-3", "user-b", "user-a")
	saveTestMessage(t, sqlStore, "msg-4", "user-c", "user-b")

	count, err := sqlStore.MarkConversationRead(ctx, "user-b", "user-a", time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to mark conversation read: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 transitions, got %d", count)
	}

	// Second pass finds nothing pending.
	count, err = sqlStore.MarkConversationRead(ctx, "user-b", "user-a", time.Now().UTC())
	if err != nil {
		t.Fatalf("failed on repeat mark read: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 transitions on repeat, got %d", count)
	}

	// The reverse direction and other senders stay untouched.
	for _, id := range []string{"msg-3", "msg-4"} {
		loaded, err := sqlStore.MessageByID(ctx, id)
		if err != nil {
			t.Fatalf("failed to load %s: %v", id, err)
		}
		if loaded.Status != relay.StatusSent {
			t.Fatalf("message %s unexpectedly transitioned to %s", id, loaded.Status)
		}
	}
}

func TestIsBlockedIsDirectionless(t *testing.T) {
	sqlStore := openTestStore(t)
	ctx := context.Background()

	blocked, err := sqlStore.IsBlocked(ctx, "user-a", "user-b")
	if err != nil {
		t.Fatalf("block lookup failed: %v", err)
	}
	if blocked {
		t.Fatalf("expected no block before insertion")
	}

	low, high := normalizePair("user-b", "user-a")
	if err := sqlStore.db.Create(&Block{UserLow: low, UserHigh: high}).Error; err != nil {
		t.Fatalf("failed to seed block: %v", err)
	}

	for _, pair := range [][2]string{{"user-a", "user-b"}, {"user-b", "user-a"}} {
		blocked, err := sqlStore.IsBlocked(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("block lookup failed: %v", err)
		}
		if !blocked {
			t.Fatalf("expected block for pair %v in both directions", pair)
		}
	}
}

func TestUserExistsHonorsActiveFlag(t *testing.T) {
	sqlStore := openTestStore(t)
	ctx := context.Background()

	exists, err := sqlStore.UserExists(ctx, "user-a")
	if err != nil {
		t.Fatalf("user lookup failed: %v", err)
	}
	if !exists {
		t.Fatalf("expected seeded user to exist")
	}

	if err := sqlStore.db.Model(&User{}).Where("id = ?", "user-a").Update("active", false).Error; err != nil {
		t.Fatalf("failed to deactivate user: %v", err)
	}
	exists, err = sqlStore.UserExists(ctx, "user-a")
	if err != nil {
		t.Fatalf("user lookup failed: %v", err)
	}
	if exists {
		t.Fatalf("deactivated users must not count as existing")
	}

	exists, err = sqlStore.UserExists(ctx, "user-ghost")
	if err != nil {
		t.Fatalf("user lookup failed: %v", err)
	}
	if exists {
		t.Fatalf("unknown users must not exist")
	}
}

func TestSetLastSeenUpdatesUserRow(t *testing.T) {
	sqlStore := openTestStore(t)
	ctx := context.Background()

	lastSeen := time.Date(2026, 5, 11, 10, 30, 0, 0, time.UTC)
	if err := sqlStore.SetLastSeen(ctx, "user-a", lastSeen); err != nil {
		t.Fatalf("failed to set last seen: %v", err)
	}

	var user User
	if err := sqlStore.db.Where("id = ?", "user-a").First(&user).Error; err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if !user.LastSeenAt.Equal(lastSeen) {
		t.Fatalf("expected last seen %v, got %v", lastSeen, user.LastSeenAt)
	}
}

func TestContactsReturnsBothSidesOfPairs(t *testing.T) {
	sqlStore := openTestStore(t)
	ctx := context.Background()

	for _, pair := range [][2]string{{"user-a", "user-b"}, {"user-c", "user-a"}} {
		low, high := normalizePair(pair[0], pair[1])
		if err := sqlStore.db.Create(&Contact{UserLow: low, UserHigh: high}).Error; err != nil {
			t.Fatalf("failed to seed contact: %v", err)
		}
	}

	contacts, err := sqlStore.Contacts(ctx, "user-a")
	if err != nil {
		t.Fatalf("contact lookup failed: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %v", contacts)
	}
	found := map[string]bool{}
	for _, id := range contacts {
		found[id] = true
	}
	if !found["user-b"] || !found["user-c"] {
		t.Fatalf("expected user-b and user-c, got %v", contacts)
	}
}
