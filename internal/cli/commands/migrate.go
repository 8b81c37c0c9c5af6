package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprecord/internal/catalog"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	var to int64

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the catalog schema",
		Long: `Apply pending catalog migrations to the configured database.

With --to the schema is rolled back to the given version instead.`,
		Example: `  # Bring the schema up to date
  leaprecord migrate

  # Roll back to the first version
  leaprecord migrate --to 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			if cmd.Flags().Changed("to") {
				err = catalog.MigrateDown(ctx, cc.DB, to, cc.Logger)
			} else {
				err = catalog.Migrate(ctx, cc.DB, cc.Logger)
			}
			if err != nil {
				return err
			}

			version, err := catalog.MigrationVersion(ctx, cc.DB)
			if err != nil {
				return err
			}
			cc.Output.Printf("Schema at version %d\n", version)
			return nil
		},
	}

	cmd.Flags().Int64Var(&to, "to", 0, "Roll the schema back to this version")
	return cmd
}
