package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer st.Close()
		color.Green("Database schema is up to date")
		return nil
	},
}
