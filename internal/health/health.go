// Package health records connection lifecycle entries for the realtime
// channel and summarises them into an hourly history for the admin dashboard.
package health

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	ServiceRealtime = "portal:realtime"

	StatusConnected    = "CONNECTED"
	StatusDisconnected = "DISCONNECTED"

	HistoryHours = 12
)

// Log is one persisted health entry.
type Log struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  string    `gorm:"index;size:64" json:"tenantId"`
	Service   string    `gorm:"index;size:128" json:"service"`
	Status    string    `gorm:"size:32" json:"status"`
	Message   string    `json:"message"`
	CheckedAt time.Time `gorm:"index" json:"checkedAt"`
}

func (Log) TableName() string { return "health_logs" }

// Entry is one hourly bucket of the health history.
type Entry struct {
	Timestamp            string  `json:"timestamp"`
	DatabaseResponseTime int     `json:"databaseResponseTime"`
	APIErrorRate         float64 `json:"apiErrorRate"`
}

// Recorder is the write side used by stream handlers.
type Recorder interface {
	Record(ctx context.Context, l Log) error
}

// Store persists health logs through gorm. A nil *Store is valid: Record is a
// no-op and History returns the synthetic fallback series.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects using driver "postgres" or "sqlite" and migrates the table.
// An empty driver returns a nil store.
func Open(driver, dsn string, log *zap.Logger) (*Store, error) {
	var dial gorm.Dialector
	switch driver {
	case "":
		return nil, nil
	case "postgres":
		dial = postgres.Open(dsn)
	case "sqlite":
		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("health: unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("health: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Log{}); err != nil {
		return nil, fmt.Errorf("health: migrate: %w", err)
	}
	return &Store{db: db, log: log.With(zap.String("component", "health"))}, nil
}

func (s *Store) Record(ctx context.Context, l Log) error {
	if s == nil {
		return nil
	}
	if l.CheckedAt.IsZero() {
		l.CheckedAt = time.Now()
	}
	l.CheckedAt = l.CheckedAt.UTC()
	return s.db.WithContext(ctx).Create(&l).Error
}

// History returns HistoryHours hourly entries ending at the hour of now.
func (s *Store) History(ctx context.Context, now time.Time) ([]Entry, error) {
	if s == nil {
		return Fallback(now), nil
	}
	since := hourStart(now).Add(-(HistoryHours - 1) * time.Hour)
	var logs []Log
	err := s.db.WithContext(ctx).
		Where("checked_at >= ?", since).
		Order("checked_at asc").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return Bucket(logs, now), nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Bucket groups logs by UTC hour over the HistoryHours ending at now. Logs
// outside the window are ignored.
func Bucket(logs []Log, now time.Time) []Entry {
	type counts struct{ total, errors int }
	first := hourStart(now).Add(-(HistoryHours - 1) * time.Hour)
	buckets := make([]counts, HistoryHours)
	for _, l := range logs {
		i := int(l.CheckedAt.UTC().Sub(first) / time.Hour)
		if l.CheckedAt.Before(first) || i >= HistoryHours {
			continue
		}
		buckets[i].total++
		if isError(l.Status) {
			buckets[i].errors++
		}
	}
	out := make([]Entry, HistoryHours)
	for i, b := range buckets {
		rate := 0.0
		if b.total > 0 {
			rate = math.Round(float64(b.errors)/float64(b.total)*100) / 100
		}
		out[i] = Entry{
			Timestamp:            first.Add(time.Duration(i) * time.Hour).Format("2006-01-02T15:04:05.000Z"),
			DatabaseResponseTime: 50 + b.errors*10,
			APIErrorRate:         rate,
		}
	}
	return out
}

// Fallback is served when no database is configured.
func Fallback(now time.Time) []Entry {
	out := make([]Entry, HistoryHours)
	for i := range out {
		ts := now.UTC().Add(-time.Duration(HistoryHours-1-i) * time.Hour)
		out[i] = Entry{
			Timestamp:            ts.Format("2006-01-02T15:04:05.000Z"),
			DatabaseResponseTime: 80,
			APIErrorRate:         0.5,
		}
	}
	return out
}

func isError(status string) bool {
	s := strings.ToLower(status)
	return s == "error" || s == "critical"
}

func hourStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
