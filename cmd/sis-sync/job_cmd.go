package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/campusworks/campus-sdk/modules/connectors/infrastructure/persistence"
	"github.com/campusworks/campus-sdk/pkg/composables"
	"github.com/campusworks/campus-sdk/pkg/configuration"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect stored import jobs",
	}
	cmd.AddCommand(newJobShowCmd())
	return cmd
}

func newJobShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print one job's configuration and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return errors.Wrap(err, "invalid job id")
			}

			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, configuration.Use().Database.Opts)
			if err != nil {
				return errors.Wrap(err, "connecting to database")
			}
			defer pool.Close()
			ctx = composables.WithPool(ctx, pool)

			j, err := persistence.NewJobRepository().GetByID(ctx, id)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(map[string]any{
				"id":          j.ID,
				"connector":   j.Connector,
				"status":      j.Status,
				"config":      j.Config,
				"results":     j.Results,
				"createdAt":   j.CreatedAt,
				"completedAt": j.CompletedAt,
			}, "", "  ")
			if err != nil {
				return errors.Wrap(err, "rendering job")
			}
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}
}
