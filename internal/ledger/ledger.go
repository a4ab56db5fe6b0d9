// Package ledger records every declaration a run produced and keeps the
// durable registration sequence, on sqlite or postgres through gorm.
package ledger

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/declaration"
	"github.com/ginjaninja78/asycuda-export/internal/reference"
	"github.com/ginjaninja78/asycuda-export/internal/validation"
)

// Record statuses.
const (
	StatusExported = "EXPORTED"
	StatusPartial  = "PARTIAL"
	StatusInvalid  = "INVALID"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("declaration not found")

// StringList is stored as a JSON array in a text column.
type StringList []string

// Value implements the driver.Valuer interface
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (s *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("failed to unmarshal StringList value: %v", value)
	}
}

// DeclarationRecord is one produced declaration.
type DeclarationRecord struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	RunID         string          `gorm:"type:varchar(64);index"`
	Registration  string          `gorm:"type:varchar(20);uniqueIndex;not null"`
	MappingCode   string          `gorm:"type:varchar(64);index"`
	SourceFile    string          `gorm:"type:varchar(512)"`
	Type          string          `gorm:"type:varchar(3)"`
	CustomsOffice string          `gorm:"type:varchar(10)"`
	Currency      string          `gorm:"type:varchar(3)"`
	ItemCount     int             `gorm:"not null"`
	TotalPackages int             `gorm:"not null"`
	TotalValue    decimal.Decimal `gorm:"type:numeric(18,2)"`
	ErrorCount    int             `gorm:"not null;default:0"`
	WarningCount  int             `gorm:"not null;default:0"`
	SkippedRows   int             `gorm:"not null;default:0"`
	Artifacts     StringList      `gorm:"type:text"`
	Status        string          `gorm:"type:varchar(20);not null;index"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for DeclarationRecord
func (DeclarationRecord) TableName() string {
	return "declarations"
}

// SequenceRecord holds the last issued sequence of one prefix and day.
type SequenceRecord struct {
	Scope     string    `gorm:"type:varchar(64);primaryKey"`
	Value     int       `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for SequenceRecord
func (SequenceRecord) TableName() string {
	return "registration_sequences"
}

// NewRecord summarises d and its validation result. Artifacts and status are
// filled in by the caller once export has run.
func NewRecord(d *declaration.Declaration, vr *validation.Result) DeclarationRecord {
	rec := DeclarationRecord{
		ID:            uuid.New(),
		Registration:  d.RegistrationNumber,
		Type:          string(d.Type),
		CustomsOffice: d.CustomsOffice,
		Currency:      d.Currency,
		ItemCount:     len(d.Items),
		TotalPackages: d.TotalPackages(),
		TotalValue:    d.TotalValue(),
		Status:        StatusInvalid,
	}
	if vr != nil {
		rec.ErrorCount = vr.ErrorCount
		rec.WarningCount = vr.WarningCount
	}
	return rec
}

// Ledger stores declaration records and sequences.
type Ledger struct {
	db *gorm.DB
}

// Open connects to the ledger database selected by cfg and migrates the
// schema. Driver "none" is an error; callers check it first.
func Open(cfg config.LedgerConfig) (*Ledger, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported ledger driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// One writer keeps sqlite from reporting "database is locked" and
		// keeps ":memory:" databases on a single connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&DeclarationRecord{}, &SequenceRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("ledger connection established", "driver", cfg.Driver)
	return &Ledger{db: db}, nil
}

// Record stores rec, replacing an earlier record with the same registration.
func (l *Ledger) Record(ctx context.Context, rec *DeclarationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "registration"}},
		UpdateAll: true,
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to record declaration %s: %w", rec.Registration, err)
	}
	return nil
}

// Get returns the record of a registration number.
func (l *Ledger) Get(ctx context.Context, registration string) (*DeclarationRecord, error) {
	var rec DeclarationRecord
	err := l.db.WithContext(ctx).First(&rec, "registration = ?", registration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load declaration %s: %w", registration, err)
	}
	return &rec, nil
}

// ListByRun returns the records of a run, oldest first.
func (l *Ledger) ListByRun(ctx context.Context, runID string) ([]DeclarationRecord, error) {
	var recs []DeclarationRecord
	if err := l.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list run %s: %w", runID, err)
	}
	return recs, nil
}

// Recent returns up to limit records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]DeclarationRecord, error) {
	var recs []DeclarationRecord
	if err := l.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list declarations: %w", err)
	}
	return recs, nil
}

// Next implements reference.Sequencer. Sequences survive restarts and are
// shared by every process using the same database.
func (l *Ledger) Next(ctx context.Context, prefix string, runDate time.Time) (int, error) {
	scope := reference.SequenceKey(prefix, runDate)
	var next int

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&SequenceRecord{Scope: scope}).Error; err != nil {
			return err
		}

		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var rec SequenceRecord
		if err := q.First(&rec, "scope = ?", scope).Error; err != nil {
			return err
		}
		if rec.Value >= reference.MaxSequence {
			return fmt.Errorf("sequence exhausted for %s", scope)
		}

		next = rec.Value + 1
		return tx.Model(&SequenceRecord{}).Where("scope = ?", scope).Update("value", next).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to draw sequence for %s: %w", scope, err)
	}
	return next, nil
}

// Ping checks the database connection.
func (l *Ledger) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
