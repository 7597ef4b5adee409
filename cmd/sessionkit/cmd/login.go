package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var intendedPath string

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in and store the session in the local vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		password, err := prompt("Password: ")
		if err != nil {
			return err
		}

		redirect, err := a.manager.Login(ctx, args[0], password, intendedPath)
		if err != nil {
			return err
		}
		snap := a.manager.Snapshot()
		fmt.Printf("Signed in as %s (%s)\n", snap.User.Name, snap.User.Role)
		fmt.Printf("Landing page: %s\n", redirect)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&intendedPath, "path", "", "Page to land on after login")
}
