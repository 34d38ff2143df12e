package main

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/campusworks/campus-sdk/pkg/configuration"
	"github.com/campusworks/campus-sdk/pkg/schema"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return schema.Migrate(cmd.Context(), db)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return schema.Rollback(cmd.Context(), db)
		},
	})
	return cmd
}

func openDB() (*sql.DB, error) {
	db, err := sql.Open("pgx", configuration.Use().Database.Opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	return db, nil
}
