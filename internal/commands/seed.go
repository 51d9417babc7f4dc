package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devconnect/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo users, projects and tasks into an empty database",
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

		res, err := st.Seed(cmd.Context())
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		if res.Skipped {
			color.Yellow("Database already has users, nothing seeded")
			return nil
		}
		printSeed(res)
		return nil
	},
}

func printSeed(res store.SeedResult) {
	bold := color.New(color.Bold)
	color.Green("Seeded %d users and %d projects", len(res.Users), len(res.Projects))
	fmt.Println()
	bold.Println("Demo accounts")
	for _, u := range res.Users {
		fmt.Printf("  %s  %s\n", color.CyanString(u.Email), store.DemoPassword)
	}
	fmt.Println()
	bold.Println("Projects")
	for _, p := range res.Projects {
		fmt.Printf("  #%d %s\n", p.ID, p.Name)
	}
}
