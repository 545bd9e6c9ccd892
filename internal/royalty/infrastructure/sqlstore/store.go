package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"royalty-engine/internal/platform/sqldb"
)

//go:embed schema/*.sql
var schemaFS embed.FS

var errNilDB = errors.New("royalty store: nil db")

// Migrate creates every table used by the engine for the db dialect.
func Migrate(ctx context.Context, db *sqldb.DB) error {
	if db == nil {
		return errNilDB
	}
	name := "schema/postgres.sql"
	if db.Dialect == sqldb.SQLite {
		name = "schema/sqlite.sql"
	}
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(data), ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("royalty store: migrate: %w", err)
		}
	}
	return nil
}

// Repositories bundles every SQL repository over one connection.
type Repositories struct {
	Rates         *RateRepository
	ExchangeRates *ExchangeRateRepository
	Catalog       *CatalogRepository
	Partners      *PartnerRepository
	Distributions *DistributionRepository
	Usage         *UsageRepository
	Cycles        *CycleRepository
	Settlements   *SettlementRepository
}

// NewRepositories constructs all repositories.
func NewRepositories(db *sqldb.DB) *Repositories {
	return &Repositories{
		Rates:         NewRateRepository(db),
		ExchangeRates: NewExchangeRateRepository(db),
		Catalog:       NewCatalogRepository(db),
		Partners:      NewPartnerRepository(db),
		Distributions: NewDistributionRepository(db),
		Usage:         NewUsageRepository(db),
		Cycles:        NewCycleRepository(db),
		Settlements:   NewSettlementRepository(db),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time.UTC()
	return &value
}
