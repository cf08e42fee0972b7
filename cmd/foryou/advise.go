package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/foryou/internal/advisor"
)

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Run one tuning analysis now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result := a.advisor.Tick(cmd.Context())
		switch result {
		case advisor.ResultGated:
			s := a.advisor.Settings()
			fmt.Printf("Not enough engagement yet: need %d in the last %s, with %d new since the last analysis.\n",
				s.MinSamples, s.Window, s.MinNewSamples)
		case advisor.ResultLowConfidence:
			fmt.Println("Nothing confident enough to suggest right now.")
		case advisor.ResultFailed:
			return errors.New("analysis failed; see the log for details")
		case advisor.ResultSuggested:
			sg, _ := a.advisor.Pending()
			printSuggestion(sg)
		default:
			fmt.Printf("Advisor: %s\n", result)
		}
		return nil
	},
}

var suggestionCmd = &cobra.Command{
	Use:   "suggestion",
	Short: "Review the pending tuning suggestion",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sg, ok := a.advisor.Pending()
		if !ok {
			fmt.Println("No pending suggestion.")
			return nil
		}
		printSuggestion(sg)
		return nil
	},
}

var suggestionAcceptCmd = &cobra.Command{
	Use:   "accept [id]",
	Short: "Apply the pending suggestion",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := pendingID(a, args)
		if err != nil {
			return err
		}
		_, sg, err := a.sess.AcceptSuggestion(cmd.Context(), id)
		if errors.Is(err, advisor.ErrNoSuggestion) {
			return fmt.Errorf("suggestion %s is no longer pending", id)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Applied: %s\n", sg.Delta.Describe())
		return nil
	},
}

var suggestionDismissCmd = &cobra.Command{
	Use:   "dismiss [id]",
	Short: "Dismiss the pending suggestion; it will not be offered again",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := pendingID(a, args)
		if err != nil {
			return err
		}
		if a.sess.DismissSuggestion(cmd.Context(), id) {
			fmt.Println("Dismissed.")
		} else {
			fmt.Println("Nothing to dismiss.")
		}
		return nil
	},
}

var suggestionLogLimit int

var suggestionLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List past suggestions and what happened to them",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.ListSuggestions(cmd.Context(), suggestionLogLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No suggestions yet.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "GENERATED\tOUTCOME\tCONFIDENCE\tCHANGE")
		for _, r := range records {
			outcome := "pending"
			if r.Outcome != nil {
				outcome = *r.Outcome
			}
			fmt.Fprintf(tw, "%s\t%s\t%.0f%%\t%s\n", r.GeneratedAt.Local().Format("2006-01-02 15:04"),
				outcome, r.Confidence*100, r.Delta.Describe())
		}
		return tw.Flush()
	},
}

func init() {
	suggestionLogCmd.Flags().IntVarP(&suggestionLogLimit, "limit", "n", 20, "Number of suggestions to show")

	suggestionCmd.AddCommand(suggestionAcceptCmd)
	suggestionCmd.AddCommand(suggestionDismissCmd)
	suggestionCmd.AddCommand(suggestionLogCmd)
	rootCmd.AddCommand(adviseCmd)
	rootCmd.AddCommand(suggestionCmd)
}

// pendingID returns the explicit ID, or the pending suggestion's ID when
// none was given.
func pendingID(a *app, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	sg, ok := a.advisor.Pending()
	if !ok {
		return "", errors.New("no pending suggestion")
	}
	return sg.ID, nil
}

func printSuggestion(sg advisor.Suggestion) {
	fmt.Printf("Suggestion %s (%.0f%% confident)\n", sg.ID, sg.Confidence*100)
	fmt.Printf("  %s\n", sg.Delta.Describe())
	if sg.Rationale != "" {
		fmt.Printf("  %s\n", sg.Rationale)
	}
	fmt.Println("\nRun 'foryou suggestion accept' or 'foryou suggestion dismiss'.")
}
