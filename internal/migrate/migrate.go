// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/and161185/passvault/migrations"
)

// Up runs all pending migrations from the embedded filesystem.
func Up(ctx context.Context, dsn string, log *zap.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(NewGooseLogger(log))
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

// GooseLogger routes goose output through zap.
type GooseLogger struct{ s *zap.SugaredLogger }

// NewGooseLogger wraps log for goose. A nil logger discards output.
func NewGooseLogger(log *zap.Logger) *GooseLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &GooseLogger{s: log.Named("migrate").Sugar()}
}

// Printf logs an informational goose message.
func (g *GooseLogger) Printf(format string, v ...any) { g.s.Infof(format, v...) }

// Fatalf logs a goose failure. Goose calls it before aborting the migration.
func (g *GooseLogger) Fatalf(format string, v ...any) { g.s.Errorf(format, v...) }
