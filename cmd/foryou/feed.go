package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/ranking"
	"github.com/TobiSchelling/foryou/internal/session"
)

var (
	rankLimit int
	rankJSON  bool
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Print the ranked feed with a reason for each post",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.sess.Rank(cmd.Context())
		if err != nil {
			return err
		}
		items := res.Items
		if rankLimit > 0 && len(items) > rankLimit {
			items = items[:rankLimit]
		}

		if rankJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		if len(items) == 0 {
			fmt.Println("Nothing to rank. Run 'foryou collect' first.")
			return nil
		}
		for i, it := range items {
			fmt.Printf("%2d. [%d] %s #%s  %s  (%s)\n", i+1, it.Score, it.Post.Handle(), it.Features.Topic,
				age(res.RankedAt, it.Post.CreatedAt), it.Post.ID)
			fmt.Printf("    %s\n", it.Reason)
			if body := snippet(it.Post.Body, 100); body != "" {
				fmt.Printf("    %s\n", body)
			}
		}
		printExclusions(res)
		return nil
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain [post-id]",
	Short: "Show every score term for one post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.sess.Rank(cmd.Context())
		if err != nil {
			return err
		}
		id := args[0]
		it, ok := res.Find(id)
		if !ok {
			for _, e := range res.Excluded {
				if e.PostID == id {
					fmt.Printf("%s was left out: %s", id, e.Cause)
					if e.Detail != "" {
						fmt.Printf(" (%s)", e.Detail)
					}
					fmt.Println()
					return nil
				}
			}
			return fmt.Errorf("post %s is not in the current candidate set", id)
		}

		position := 0
		for i, r := range res.Items {
			if r.Post.ID == id {
				position = i + 1
				break
			}
		}
		fmt.Printf("%s by %s, #%s, position %d of %d\n", id, it.Post.Handle(), it.Features.Topic, position, len(res.Items))
		fmt.Printf("%s\n\n", it.Reason)

		b := it.Breakdown
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Recency\t%d\t%d minutes old\n", b.Recency, it.Features.AgeMinutes)
		fmt.Fprintf(tw, "Relationship\t%d\tmix %s, followed=%t\n", b.Relationship, res.Config.EffectiveMix(), it.Features.IsFollowedAuthor)
		fmt.Fprintf(tw, "Recent interaction\t%d\t\n", b.Interaction)
		fmt.Fprintf(tw, "Active discussion\t%d\t\n", b.Discussion)
		fmt.Fprintf(tw, "Preferred topic\t%d\t\n", b.Topic)
		fmt.Fprintf(tw, "Replies\t%d\t\n", b.Engagement)
		fmt.Fprintf(tw, "Muted topic\t%d\t\n", b.Mute)
		fmt.Fprintf(tw, "Total\t%d\t\n", b.Total())
		return tw.Flush()
	},
}

var engageCmd = &cobra.Command{
	Use:   "engage [post-id] [view|reply|like|share]",
	Short: "Record an interaction with a post",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		kind := feed.EngagementView
		if len(args) > 1 {
			kind = feed.EngagementKind(args[1])
		}
		e, err := a.sess.Engage(cmd.Context(), args[0], kind)
		if errors.Is(err, session.ErrPostNotFound) {
			return fmt.Errorf("no post with ID %s", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("Recorded %s on %s (#%s)\n", e.Kind, e.PostID, e.Topic)
		return nil
	},
}

func authorCmd(use, short, done string, apply func(a *app, cmd *cobra.Command, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [author-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := apply(a, cmd, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", done, args[0])
			return nil
		},
	}
}

var authorsCmd = &cobra.Command{
	Use:   "authors",
	Short: "List known authors and your relationship with them",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		authors, err := db.ListAuthors(cmd.Context())
		if err != nil {
			return err
		}
		if len(authors) == 0 {
			fmt.Println("No authors yet. Run 'foryou collect' first.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tHANDLE\tFOLLOWED\tBLOCKED\tLAST INTERACTION")
		for _, au := range authors {
			last := "-"
			if au.LastInteractionAt != nil {
				last = au.LastInteractionAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", au.ID, au.Handle, au.Followed, au.Blocked, last)
		}
		return tw.Flush()
	},
}

func init() {
	rankCmd.Flags().IntVarP(&rankLimit, "limit", "n", 20, "Number of posts to show (0 for all)")
	rankCmd.Flags().BoolVar(&rankJSON, "json", false, "Print ranked items as JSON")

	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(engageCmd)
	rootCmd.AddCommand(authorsCmd)
	rootCmd.AddCommand(authorCmd("follow", "Follow an author", "Now following", func(a *app, cmd *cobra.Command, id string) error {
		return a.db.SetFollowed(cmd.Context(), id, true)
	}))
	rootCmd.AddCommand(authorCmd("unfollow", "Stop following an author", "No longer following", func(a *app, cmd *cobra.Command, id string) error {
		return a.db.SetFollowed(cmd.Context(), id, false)
	}))
	rootCmd.AddCommand(authorCmd("block", "Block an author; their posts never appear", "Blocked", func(a *app, cmd *cobra.Command, id string) error {
		return a.db.SetBlocked(cmd.Context(), id, true)
	}))
	rootCmd.AddCommand(authorCmd("unblock", "Unblock an author", "Unblocked", func(a *app, cmd *cobra.Command, id string) error {
		return a.db.SetBlocked(cmd.Context(), id, false)
	}))
}

func printExclusions(res *ranking.Result) {
	for _, cause := range []ranking.Cause{ranking.CauseBlocked, ranking.CauseMuted, ranking.CauseMalformed} {
		if n := res.ExcludedCount(cause); n > 0 {
			fmt.Printf("\n%d post(s) left out: %s", n, cause)
		}
	}
	if len(res.Excluded) > 0 {
		fmt.Println()
	}
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
}

func age(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
