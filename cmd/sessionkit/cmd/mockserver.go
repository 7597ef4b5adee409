package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/tekriderz/sessionkit/account"
	"github.com/tekriderz/sessionkit/devserver"
)

var (
	mockPort int
	mockSeed bool
)

var mockserverCmd = &cobra.Command{
	Use:   "mockserver",
	Short: "Run an in-memory auth backend for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := devserver.New()
		if err != nil {
			return err
		}
		if mockSeed {
			srv.Seed("Admin", "admin@example.com", "admin123", account.RoleAdmin)
			srv.Seed("Tutor", "tutor@example.com", "tutor123", account.RoleTutor)
			srv.Seed("Learner", "learner@example.com", "learner123", account.RoleLearner)
		}

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Mount("/", srv.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", mockPort),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		fmt.Printf("Mock auth server listening on port %d...\n", mockPort)
		if mockSeed {
			fmt.Println("Seeded accounts: admin@example.com/admin123, tutor@example.com/tutor123, learner@example.com/learner123")
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(mockserverCmd)
	mockserverCmd.Flags().IntVarP(&mockPort, "port", "p", 8080, "Port to listen on")
	mockserverCmd.Flags().BoolVar(&mockSeed, "seed", true, "Seed demo accounts")
}
