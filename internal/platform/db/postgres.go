package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// pingTimeout bounds the startup connectivity probe.
const pingTimeout = 5 * time.Second

// ErrMissingDSN is returned when Connect is called with an empty address.
var ErrMissingDSN = errors.New("postgres dsn is required")

// Postgres owns the shared gorm handle. Adapters borrow it for their own
// transactions; schema management lives in schema.go.
type Postgres struct {
	DB *gorm.DB
}

// Connect opens the pool described by dsn and verifies it answers a ping
// before handing it out, so a bad address fails the boot instead of the
// first request.
func Connect(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, ErrMissingDSN
	}

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pg := &Postgres{DB: gormDB}
	if err := pg.ping(); err != nil {
		_ = pg.Close()
		return nil, err
	}
	return pg, nil
}

func (p *Postgres) ping() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("unwrap postgres sql handle: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool. Safe to call on a nil receiver or a
// value that never connected.
func (p *Postgres) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
