package store

import (
	"strings"
	"time"
)

// User mirrors the account rows owned by the main backend. The relay only
// reads existence/active flags and writes last-seen timestamps.
type User struct {
	ID         string    `gorm:"column:id;primaryKey;size:190"`
	Active     bool      `gorm:"column:active;not null;default:true"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// Block is an unordered blocked pair, stored with the lexicographically lower
// id first so one row covers both directions. The relay never writes blocks;
// the main backend owns them.
type Block struct {
	UserLow   string    `gorm:"column:user_low;primaryKey;size:190"`
	UserHigh  string    `gorm:"column:user_high;primaryKey;size:190"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing block relations.
func (Block) TableName() string {
	return "user_blocks"
}

// Contact is an accepted match pair, normalized like Block. Contacts receive
// presence transition broadcasts.
type Contact struct {
	UserLow   string    `gorm:"column:user_low;primaryKey;size:190"`
	UserHigh  string    `gorm:"column:user_high;primaryKey;size:190"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing contact relations.
func (Contact) TableName() string {
	return "user_contacts"
}

// normalizePair orders two user ids so unordered relations store consistently.
func normalizePair(userA, userB string) (string, string) {
	if strings.Compare(userA, userB) <= 0 {
		return userA, userB
	}
	return userB, userA
}
