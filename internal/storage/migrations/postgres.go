package migrations

import (
	"context"
	"fmt"
	"strings"

	"eth-tax-ledger/internal/logger"
	"eth-tax-ledger/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Every file uses IF NOT EXISTS so reruns are safe.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := Files(DialectPostgres)
	if err != nil {
		return err
	}

	log := logger.Get().WithComponent("migrations").WithField("database", "postgres")
	for _, file := range files {
		sql, err := Read(DialectPostgres, file)
		if err != nil {
			return err
		}
		if strings.TrimSpace(sql) == "" {
			continue
		}
		// pgx runs a multi-statement string in one simple-protocol Exec.
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		log.WithField("file", file).Debug("Applied migration")
	}

	return nil
}
