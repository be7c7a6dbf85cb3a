package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// kv_nodes holds one row per leaf of the key-path tree. The C collation keeps
// byte order, so a subtree is a contiguous primary key range.
//
//go:embed create_kv_nodes.sql
var createKVNodesSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createKVNodesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS kv_nodes`)
			return err
		},
	)
}
