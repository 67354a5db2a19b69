package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"zkrent/internal/config"
)

const defaultSQLiteDSN = "file:zkrent?mode=memory&cache=shared"

type Store struct {
	DB *gorm.DB

	Applications *ApplicationRepository
	Properties   *PropertyRepository
	Subjects     *SubjectRepository
	Revocations  *RevocationRepository
	Epochs       *RevocationEpochRepository
	Audit        *AuditLogRepository
}

// NewStore connects to PostgreSQL when POSTGRES_DSN is set and falls back to
// SQLite otherwise. The schema is migrated on open.
func NewStore(cfg config.Config, log zerolog.Logger) (*Store, error) {
	var (
		dialector gorm.Dialector
		sqliteDB  bool
	)
	switch {
	case cfg.PostgresDSN != "":
		dialector = postgres.Open(cfg.PostgresDSN)
		log.Info().Str("driver", "postgres").Msg("opening database")
	case cfg.SQLitePath != "":
		dialector = sqlite.Open(cfg.SQLitePath)
		sqliteDB = true
		log.Info().Str("driver", "sqlite").Str("path", cfg.SQLitePath).Msg("opening database")
	default:
		dialector = sqlite.Open(defaultSQLiteDSN)
		sqliteDB = true
		log.Warn().Msg("POSTGRES_DSN and SQLITE_PATH not set; using in-memory sqlite, data is lost on restart")
	}
	return Open(dialector, sqliteDB)
}

// Open wraps an already chosen dialector. SQLite is limited to one
// connection so writers serialize instead of failing with SQLITE_BUSY.
func Open(dialector gorm.Dialector, singleConn bool) (*Store, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if singleConn {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return NewStoreFromDB(gdb), nil
}

func NewStoreFromDB(gdb *gorm.DB) *Store {
	return &Store{
		DB:           gdb,
		Applications: NewApplicationRepository(gdb),
		Properties:   NewPropertyRepository(gdb),
		Subjects:     NewSubjectRepository(gdb),
		Revocations:  NewRevocationRepository(gdb),
		Epochs:       NewRevocationEpochRepository(gdb),
		Audit:        NewAuditLogRepository(gdb),
	}
}

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&ApplicationModel{},
		&PropertyModel{},
		&SubjectModel{},
		&AttestationRecordModel{},
		&RevocationModel{},
		&RevocationEpochModel{},
		&AuditEventModel{},
		&AuditStreamModel{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
