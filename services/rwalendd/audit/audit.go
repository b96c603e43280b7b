// Package audit persists every committed protocol event to a SQL database so
// operators can reconstruct position history outside the state store.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rwalend/core/events"
)

var errNilDB = errors.New("audit: database required")

// Record is one persisted event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"index"`
	Subject    string    `gorm:"index"`
	Height     string
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (Record) TableName() string { return "audit_events" }

// subjectKeys are the attributes naming the account an event is about, in
// lookup order.
var subjectKeys = []string{"id", "staker", "to", "from"}

// Open connects to dsn. "sqlite:<path>" selects the embedded driver; anything
// starting with postgres:// or postgresql:// goes to Postgres.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), cfg)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return nil, fmt.Errorf("audit: unsupported dsn %q", dsn)
}

// Sink writes events as Records. It implements events.Emitter; write
// failures are logged and never reach the protocol call.
type Sink struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSink(db *gorm.DB, log *slog.Logger) (*Sink, error) {
	if db == nil {
		return nil, errNilDB
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sink{db: db, logger: log, now: time.Now}, nil
}

func (s *Sink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	rec, err := s.record(evt)
	if err != nil {
		s.logger.Warn("audit encode failed", slog.String("type", evt.EventType()), slog.String("error", err.Error()))
		return
	}
	if err := s.db.Create(&rec).Error; err != nil {
		s.logger.Warn("audit write failed", slog.String("type", rec.Type), slog.String("error", err.Error()))
	}
}

func (s *Sink) record(evt events.Event) (Record, error) {
	payload := evt.Event()
	attrs := map[string]string{}
	if payload != nil && payload.Attributes != nil {
		attrs = payload.Attributes
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:         uuid.New(),
		Type:       evt.EventType(),
		Height:     attrs["height"],
		Attributes: string(encoded),
		CreatedAt:  s.now().UTC(),
	}
	for _, key := range subjectKeys {
		if v := attrs[key]; v != "" {
			rec.Subject = v
			break
		}
	}
	return rec, nil
}

// Query filters Recent. Empty fields match everything.
type Query struct {
	Type    string
	Subject string
	Limit   int
}

// Recent returns matching records, newest first.
func (s *Sink) Recent(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	tx := s.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.Subject != "" {
		tx = tx.Where("subject = ?", q.Subject)
	}
	var out []Record
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Decode returns the event attributes stored in rec.
func (rec Record) Decode() (map[string]string, error) {
	out := map[string]string{}
	if rec.Attributes == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(rec.Attributes), &out)
	return out, err
}
