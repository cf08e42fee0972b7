package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/foryou/internal/advisor"
	"github.com/TobiSchelling/foryou/internal/config"
	"github.com/TobiSchelling/foryou/internal/database"
	"github.com/TobiSchelling/foryou/internal/logging"
	"github.com/TobiSchelling/foryou/internal/session"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zerolog.Nop()
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "foryou",
	Short:        "A rule-based, explainable For You feed",
	Long:         "foryou collects posts from your sources and ranks them with fixed, disclosed rules. Every post says why it is where it is.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger = initLogging(config.Default())
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger = initLogging(cfg)
		logger.Debug().Str("config", path).Msg("configuration loaded")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}

func initLogging(c *config.Config) zerolog.Logger {
	level := c.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.Init(logging.Config{Level: level, Format: c.Logging.Format})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("foryou", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/foryou/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources and your starting mix.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and advisor status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", a.db.Path())
		fmt.Println("Posts:")
		fmt.Printf("  Total collected: %d\n", stats.Posts)
		if stats.NewestPost != nil {
			fmt.Printf("  Newest: %s\n", stats.NewestPost.Local().Format("2006-01-02 15:04"))
		}
		fmt.Println("\nAuthors:")
		fmt.Printf("  Known: %d\n", stats.Authors)
		fmt.Printf("  Followed: %d\n", stats.FollowedAuthors)
		fmt.Printf("  Blocked: %d\n", stats.BlockedAuthors)
		fmt.Println("\nTuning:")
		fmt.Printf("  Engagements recorded: %d\n", stats.Engagements)
		fmt.Printf("  Suggestions: %d (%d applied, %d dismissed, %d expired)\n",
			stats.Suggestions, stats.Applied, stats.Dismissed, stats.Expired)
		fmt.Printf("  Advisor: %s\n", a.advisor.State())

		fc := a.sess.Config()
		fmt.Println("\nFeed:")
		fmt.Printf("  Mix: %s\n", fc.Mix)
		if fc.Drifted() {
			fmt.Printf("  (unrecognised, ranking as %s)\n", fc.EffectiveMix())
		}
		return nil
	},
}

// app bundles what most commands need: the store, the live session and an
// advisor restored from the suggestion log.
type app struct {
	db      *database.DB
	sess    *session.Session
	advisor *advisor.Advisor
}

func openApp(ctx context.Context) (*app, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}

	sess, err := session.New(ctx, db, cfg.InitialFeedConfig(), sessionOptions(cfg), logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	adv := advisor.New(db, sess, cfg.AdvisorSettings(), logger, advisor.WithRecorder(db))
	if err := adv.Restore(ctx); err != nil {
		db.Close()
		return nil, err
	}
	sess.AttachAdvisor(adv)
	return &app{db: db, sess: sess, advisor: adv}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func sessionOptions(c *config.Config) session.Options {
	return session.Options{
		CandidateWindow:   c.Ranking.CandidateWindow,
		CandidateLimit:    c.Ranking.CandidateLimit,
		InteractionWindow: c.Ranking.InteractionWindow,
	}
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "foryou.db")
	return database.Open(dbPath)
}
