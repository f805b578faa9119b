// Package store keeps an audit trail of flow invocations. Records hold
// metadata only: no prompts, inputs or outputs.
package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/equilix-backend/internal/config"
)

// ErrDisabled is returned by Open when the store is turned off.
var ErrDisabled = errors.New("invocation store disabled")

type InvocationRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Flow       string    `gorm:"size:64;not null;index:idx_invocation_flow_created,priority:1" json:"flow"`
	Model      string    `gorm:"size:128" json:"model"`
	Mode       string    `gorm:"size:16" json:"mode"`
	Status     string    `gorm:"size:16;not null;index" json:"status"`
	ErrorKind  string    `gorm:"size:32" json:"errorKind,omitempty"`
	Fallback   bool      `gorm:"not null;default:false" json:"fallback"`
	DurationMS int64     `gorm:"not null" json:"durationMs"`
	RequestID  string    `gorm:"size:64" json:"requestId,omitempty"`
	CreatedAt  time.Time `gorm:"not null;index:idx_invocation_flow_created,priority:2" json:"createdAt"`
}

func (InvocationRecord) TableName() string { return "flow_invocations" }

// Open connects to the configured database and migrates the schema.
func Open(cfg config.StoreConfig) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var dialector gorm.Dialector
	switch driver {
	case "", "disabled":
		return nil, ErrDisabled
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "equilix.db"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		if cfg.DSN == "" {
			return nil, errors.New("postgres store requires a dsn")
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s store: %w", driver, err)
	}
	if driver == "sqlite" && (strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory")) {
		// every new connection would otherwise see an empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&InvocationRecord{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
