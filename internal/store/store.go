// Package store persists the tracker's durable state: pending retry items
// and the bounded audit event log. Sqlite is the default driver; postgres
// is available for shared deployments.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-logr/logr"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/dispatch"
	apperrors "github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/errors"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/event"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/retry"
)

const eventLogCap = 100

type retryItemModel struct {
	ID             uint   `gorm:"primaryKey"`
	Position       int    `gorm:"index"`
	EventID        string `gorm:"uniqueIndex"`
	ContextID      string
	Kind           string
	Data           string
	EventCreatedAt time.Time
	RetryCount     int
	NextAttemptAt  time.Time
}

func (retryItemModel) TableName() string { return "retry_items" }

type eventLogModel struct {
	ID        uint   `gorm:"primaryKey"`
	EventID   string `gorm:"uniqueIndex"`
	ContextID string
	Kind      string
	Status    string
	Detail    string
	At        time.Time
}

func (eventLogModel) TableName() string { return "event_log" }

// Store wraps the database handle. It satisfies retry.Persister and
// dispatch.Sink.
type Store struct {
	db  *gorm.DB
	log logr.Logger
}

// Open connects to the configured database and runs migrations.
func Open(cfg config.StorageConfig, log logr.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, apperrors.New(apperrors.ErrCodeStorage,
			fmt.Sprintf("unsupported storage driver %q", cfg.Driver), nil)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStorage, "failed to open database", err)
	}

	if err := db.AutoMigrate(&retryItemModel{}, &eventLogModel{}); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStorage, "failed to migrate schema", err)
	}

	return &Store{db: db, log: log.WithName("store")}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveItems replaces the persisted retry queue with the given items,
// preserving queue order.
func (s *Store) SaveItems(items []retry.Item) error {
	models := make([]retryItemModel, 0, len(items))
	for i, it := range items {
		data, err := json.Marshal(it.Event.Data)
		if err != nil {
			return apperrors.New(apperrors.ErrCodeStorage, "failed to encode event data", err)
		}
		models = append(models, retryItemModel{
			Position:       i,
			EventID:        it.Event.ID,
			ContextID:      it.Event.ContextID,
			Kind:           string(it.Event.Kind),
			Data:           string(data),
			EventCreatedAt: it.Event.CreatedAt,
			RetryCount:     it.RetryCount,
			NextAttemptAt:  it.NextAttemptAt,
		})
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&retryItemModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Create(&models).Error
	})
	if err != nil {
		return apperrors.New(apperrors.ErrCodeStorage, "failed to persist retry queue", err)
	}
	return nil
}

// LoadItems restores the retry queue in its persisted order.
func (s *Store) LoadItems() ([]retry.Item, error) {
	var models []retryItemModel
	if err := s.db.Order("position asc").Find(&models).Error; err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStorage, "failed to load retry queue", err)
	}

	items := make([]retry.Item, 0, len(models))
	for _, m := range models {
		var data map[string]any
		if err := json.Unmarshal([]byte(m.Data), &data); err != nil {
			// A corrupt row is dropped rather than wedging startup.
			s.log.Error(err, "skipping unreadable retry item", "eventId", m.EventID)
			continue
		}
		items = append(items, retry.Item{
			Event: event.Event{
				ID:        m.EventID,
				Kind:      event.Kind(m.Kind),
				ContextID: m.ContextID,
				Data:      data,
				CreatedAt: m.EventCreatedAt,
			},
			RetryCount:    m.RetryCount,
			NextAttemptAt: m.NextAttemptAt,
		})
	}
	return items, nil
}

// AppendEntry upserts one audit entry by event id and trims the log to its
// cap, oldest first.
func (s *Store) AppendEntry(entry dispatch.Entry) error {
	model := eventLogModel{
		EventID:   entry.EventID,
		ContextID: entry.ContextID,
		Kind:      string(entry.Kind),
		Status:    string(entry.Status),
		Detail:    entry.Detail,
		At:        entry.At,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "detail", "at"}),
	}).Create(&model).Error
	if err != nil {
		return apperrors.New(apperrors.ErrCodeStorage, "failed to append audit entry", err)
	}

	return s.trimEventLog()
}

func (s *Store) trimEventLog() error {
	var ids []uint
	if err := s.db.Model(&eventLogModel{}).Order("id desc").Limit(eventLogCap).Pluck("id", &ids).Error; err != nil {
		return apperrors.New(apperrors.ErrCodeStorage, "failed to trim audit log", err)
	}
	if len(ids) < eventLogCap {
		return nil
	}
	cutoff := ids[len(ids)-1]
	if err := s.db.Where("id < ?", cutoff).Delete(&eventLogModel{}).Error; err != nil {
		return apperrors.New(apperrors.ErrCodeStorage, "failed to trim audit log", err)
	}
	return nil
}

// RecentEntries returns up to n audit entries, newest first.
func (s *Store) RecentEntries(n int) ([]dispatch.Entry, error) {
	if n <= 0 || n > eventLogCap {
		n = eventLogCap
	}
	var models []eventLogModel
	if err := s.db.Order("id desc").Limit(n).Find(&models).Error; err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStorage, "failed to load audit log", err)
	}

	entries := make([]dispatch.Entry, 0, len(models))
	for _, m := range models {
		entries = append(entries, dispatch.Entry{
			EventID:   m.EventID,
			ContextID: m.ContextID,
			Kind:      event.Kind(m.Kind),
			Status:    dispatch.Status(m.Status),
			Detail:    m.Detail,
			At:        m.At,
		})
	}
	return entries, nil
}
