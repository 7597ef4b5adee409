package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tekriderz/sessionkit/account"
	"github.com/tekriderz/sessionkit/session"
)

var signupRole string

var signupCmd = &cobra.Command{
	Use:   "signup <email>",
	Short: "Register a new account and verify it with a one-time code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		role := account.Role(signupRole)
		if !role.Valid() {
			return fmt.Errorf("unknown role %q (want learner, tutor or admin)", signupRole)
		}

		name, err := prompt("Name: ")
		if err != nil {
			return err
		}
		password, err := prompt("Password: ")
		if err != nil {
			return err
		}

		reg := &account.TempRegistration{
			Name:     name,
			Email:    args[0],
			Password: password,
			Role:     role,
		}
		if err := a.manager.Signup(ctx, reg); err != nil {
			return err
		}
		fmt.Println("A verification code has been sent to your email.")

		for {
			code, err := prompt("Code (or \"resend\"): ")
			if err != nil {
				return err
			}
			if code == "resend" {
				if err := a.manager.ResendOTP(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("A new code has been sent.")
				continue
			}
			redirect, err := a.manager.VerifyOTP(ctx, args[0], code)
			if errors.Is(err, session.ErrInvalidOTPSession) {
				return err
			}
			if err != nil {
				fmt.Printf("Verification failed: %v\n", err)
				continue
			}
			fmt.Printf("Account verified. Landing page: %s\n", redirect)
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(signupCmd)
	signupCmd.Flags().StringVar(&signupRole, "role", "learner", "Account role (learner, tutor, admin)")
}
