package localstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	SQLDriverSQLite   = "sqlite"
	SQLDriverPostgres = "postgres"
)

type document struct {
	StorageKey string `gorm:"column:storage_key;primaryKey;size:255"`
	Payload    []byte `gorm:"column:payload;not null"`
	UpdatedAt  time.Time
}

func (document) TableName() string { return "storefront_documents" }

// SQLBackend keeps documents in a single table through gorm, on sqlite or postgres.
type SQLBackend struct {
	conn *gorm.DB
}

// OpenSQL connects with the named driver and ensures the documents table exists.
func OpenSQL(driver, dsn string) (*SQLBackend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case SQLDriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case SQLDriverPostgres:
		dialector = postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}
	return NewSQLBackend(conn)
}

// NewSQLBackend wraps an existing gorm connection.
func NewSQLBackend(conn *gorm.DB) (*SQLBackend, error) {
	if conn == nil {
		return nil, errors.New("gorm connection required")
	}
	if err := conn.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &SQLBackend{conn: conn}, nil
}

// Close shuts down the pooled connections.
func (b *SQLBackend) Close() error {
	sqlDB, err := b.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row document
	err := b.conn.WithContext(ctx).
		Where("storage_key = ?", key).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return row.Payload, true, nil
}

func (b *SQLBackend) Set(ctx context.Context, key string, value []byte) error {
	row := document{StorageKey: key, Payload: value, UpdatedAt: time.Now().UTC()}
	return b.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&row).Error
}

func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	return b.conn.WithContext(ctx).
		Where("storage_key = ?", key).
		Delete(&document{}).Error
}

func (b *SQLBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.conn.WithContext(ctx).
		Model(&document{}).
		Where(`storage_key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Order("storage_key ASC").
		Pluck("storage_key", &keys).Error
	return keys, err
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return replacer.Replace(value)
}
