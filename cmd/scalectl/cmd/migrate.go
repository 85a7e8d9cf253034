package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tao-j/helvetic/internal/db"
	"github.com/tao-j/helvetic/internal/db/migrate"
)

func newMigrateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Options{Path: v.GetString("sqlite.path")})
			if err != nil {
				return err
			}
			defer db.Close(conn)

			applied, err := migrate.Run(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "up to date")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied: %s\n", strings.Join(applied, ", "))
			return nil
		},
	}
}
