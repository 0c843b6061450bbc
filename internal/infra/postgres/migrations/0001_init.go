// Package migrations registers the bun migration set for ropequiz's schema,
// grounded on the teacher's migrations package shape
// (internal/infra/postgres/migrations/2024112201_create_quizzes.go):
// a go:embed'd SQL file registered with migrate.NewMigrations.
package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_init.sql
var initSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, initSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
				DROP TABLE IF EXISTS strength_events;
				DROP TABLE IF EXISTS attempts;
				DROP TABLE IF EXISTS question_instances;
				DROP TABLE IF EXISTS students;
				DROP TABLE IF EXISTS teams;
				DROP TABLE IF EXISTS sessions;
				DROP TABLE IF EXISTS questions;
				DROP TABLE IF EXISTS rulesets;
			`)
			return err
		},
	)
}
