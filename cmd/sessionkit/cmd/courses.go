package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tekriderz/sessionkit/cache"
)

const coursesNamespace = "admin-courses-data"

var coursesFresh bool

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List courses, served from the local cache when fresh",
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

		content := cache.New(a.store)
		if coursesFresh {
			if err := content.Invalidate(ctx, coursesNamespace); err != nil {
				return err
			}
		}

		payload, fromCache, err := content.GetOrFetch(ctx, coursesNamespace, a.cfg.CacheTTL,
			func(ctx context.Context) (json.RawMessage, error) {
				return a.api.GetJSON(ctx, "/courses")
			})
		if err != nil {
			return err
		}

		var list struct {
			Courses []struct {
				ID       string `json:"id"`
				Title    string `json:"title"`
				Tutor    string `json:"tutor"`
				Students int    `json:"students"`
			} `json:"courses"`
			Total int `json:"total"`
		}
		if err := json.Unmarshal(payload, &list); err != nil {
			return fmt.Errorf("decoding course list: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tTUTOR\tSTUDENTS")
		for _, c := range list.Courses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", c.ID, c.Title, c.Tutor, c.Students)
		}
		w.Flush()
		if fromCache {
			fmt.Printf("(%d courses, from cache)\n", list.Total)
		} else {
			fmt.Printf("(%d courses)\n", list.Total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(coursesCmd)
	coursesCmd.Flags().BoolVar(&coursesFresh, "fresh", false, "Bypass the cache and fetch from the server")
}
