package store

import (
	"errors"
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/relay"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeMessageStatus = "2026-05-11_normalize_message_status_case"

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Migrate ensures the relay schema is present and applies named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&relay.Message{}, &User{}, &Block{}, &Contact{}, &migrationRecord{}); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeMessageStatus, apply: normalizeMessageStatusCase},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeMessageStatusCase repairs rows written by the legacy relay, which
// stored lifecycle values in lowercase.
func normalizeMessageStatusCase(db *gorm.DB) error {
	return db.Exec("UPDATE chat_messages SET status = upper(status) WHERE status <> upper(status);").Error
}
