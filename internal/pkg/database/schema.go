package database

import (
	"context"
	_ "embed"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var Schema string

// EnsureSchema creates missing tables and seeds default settings and withdrawal methods.
// Statements are idempotent so it is safe to run on every start.
func EnsureSchema(db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return err
	}

	log.Info().Msg("Database schema ensured")
	return nil
}
