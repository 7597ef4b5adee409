package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
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
		snap := a.manager.Snapshot()
		if !snap.State.SignedIn() {
			fmt.Println("Not signed in.")
			return nil
		}
		fmt.Printf("%s <%s>\n", snap.User.Name, snap.User.Email)
		fmt.Printf("Role: %s  Verified: %t\n", snap.User.Role, snap.User.Verified)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
