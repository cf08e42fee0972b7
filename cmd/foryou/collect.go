package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/foryou/internal/collect"
	"github.com/TobiSchelling/foryou/internal/database"
	"github.com/TobiSchelling/foryou/internal/fetch"
	"github.com/TobiSchelling/foryou/internal/pipeline"
)

var fetchBodies bool

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect posts from configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("Collecting posts from sources...")
		pipe := newPipeline(db, fetchBodies || cfg.Collect.FetchBodies)
		result := pipe.Run(cmd.Context())

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if last := result.Collected; last != nil && len(last.Sources) > 0 {
			fmt.Println("\nPosts by source:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range last.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return result.Err()
	},
}

func init() {
	collectCmd.Flags().BoolVar(&fetchBodies, "fetch-bodies", false, "Fetch article text for posts with an empty body")
	rootCmd.AddCommand(collectCmd)
}

func newPipeline(db *database.DB, withBodies bool) *pipeline.Pipeline {
	collector := collect.NewCollector(cfg, db, logger)
	var fetcher *fetch.BodyFetcher
	if withBodies {
		fetcher = fetch.NewBodyFetcher(db, cfg.Collect.Timeout, logger)
	}
	return pipeline.New(collector, fetcher, logger)
}
