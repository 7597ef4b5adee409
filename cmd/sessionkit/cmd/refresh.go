package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a token refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.manager.Initialize(ctx); err != nil {
			return err
		}
		if err := a.manager.Refresh(ctx); err != nil {
			return err
		}
		fmt.Println("Session refreshed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
