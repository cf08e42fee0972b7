package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/foryou/internal/advisor"
	"github.com/TobiSchelling/foryou/internal/feed"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Ranking Ranking `yaml:"ranking"`
	Advisor Advisor `yaml:"advisor"`
	Sources Sources `yaml:"sources"`
	Collect Collect `yaml:"collect"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

// Ranking is the viewer's starting configuration plus candidate limits.
// Once the viewer changes anything, the saved configuration wins.
type Ranking struct {
	Mix                     string        `yaml:"mix" validate:"omitempty,oneof=favor-following balanced favor-everyone"`
	BoostRecentInteractions bool          `yaml:"boost_recent_interactions"`
	BoostActiveDiscussions  bool          `yaml:"boost_active_discussions"`
	PreferredTopics         []string      `yaml:"preferred_topics" validate:"dive,required"`
	MutedTopics             []string      `yaml:"muted_topics" validate:"dive,required"`
	MutePolicy              string        `yaml:"mute_policy" validate:"omitempty,oneof=suppress remove"`
	CandidateWindow         time.Duration `yaml:"candidate_window" validate:"gt=0"`
	CandidateLimit          int           `yaml:"candidate_limit" validate:"min=1,max=10000"`
	InteractionWindow       time.Duration `yaml:"interaction_window" validate:"gt=0"`
}

type Advisor struct {
	Enabled               bool          `yaml:"enabled"`
	Interval              time.Duration `yaml:"interval" validate:"gte=1m"`
	InitialDelay          time.Duration `yaml:"initial_delay" validate:"gte=0"`
	Window                time.Duration `yaml:"window" validate:"gt=0"`
	MinSamples            int           `yaml:"min_samples" validate:"min=1"`
	MinNewSamples         int           `yaml:"min_new_samples" validate:"min=0"`
	FullConfidenceSamples int           `yaml:"full_confidence_samples" validate:"gtefield=MinSamples"`
	MaxHistory            int           `yaml:"max_history" validate:"gtefield=MinSamples"`
}

type Sources struct {
	Feeds []Feed       `yaml:"feeds" validate:"dive"`
	JSON  []JSONSource `yaml:"json" validate:"dive"`
}

type Feed struct {
	URL  string `yaml:"url" validate:"required,url"`
	Name string `yaml:"name"`
	// Topic is used for items that carry no category.
	Topic string `yaml:"topic"`
}

// JSONSource is an HTTP endpoint returning an array of posts.
type JSONSource struct {
	URL       string `yaml:"url" validate:"required,url"`
	Name      string `yaml:"name"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Collect struct {
	MaxPerSource            int           `yaml:"max_per_source" validate:"min=1"`
	ActiveDiscussionReplies int           `yaml:"active_discussion_replies" validate:"min=1"`
	FetchBodies             bool          `yaml:"fetch_bodies"`
	Timeout                 time.Duration `yaml:"timeout" validate:"gt=0"`
	// Interval is how often `serve` refreshes sources. Zero disables it.
	Interval                time.Duration `yaml:"interval" validate:"omitempty,gte=1m"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error disabled TRACE DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// ConfigDir returns the XDG config directory for foryou.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "foryou")
}

// DataDir returns the XDG data directory for foryou.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "foryou")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/foryou/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'foryou init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults, then validates it.
func parse(data []byte) (*Config, error) {
	d := advisor.DefaultSettings()
	cfg := &Config{
		Ranking: Ranking{
			Mix:               string(feed.MixBalanced),
			MutePolicy:        string(feed.MuteSuppress),
			CandidateWindow:   48 * time.Hour,
			CandidateLimit:    500,
			InteractionWindow: 7 * 24 * time.Hour,
		},
		Advisor: Advisor{
			Enabled:               true,
			Interval:              d.Interval,
			InitialDelay:          d.InitialDelay,
			Window:                d.Window,
			MinSamples:            d.MinSamples,
			MinNewSamples:         d.MinNewSamples,
			FullConfidenceSamples: d.FullConfidenceSamples,
			MaxHistory:            d.MaxHistory,
		},
		Collect: Collect{
			MaxPerSource:            50,
			ActiveDiscussionReplies: 10,
			Timeout:                 30 * time.Second,
			Interval:                30 * time.Minute,
		},
		Server:  Server{Host: "127.0.0.1", Port: 8000},
		Logging: Logging{Level: "info", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// InitialFeedConfig returns the viewer configuration to use until the
// viewer saves one of their own.
func (c *Config) InitialFeedConfig() feed.Config {
	return feed.Config{
		Mix:                     feed.Mix(c.Ranking.Mix),
		BoostRecentInteractions: c.Ranking.BoostRecentInteractions,
		BoostActiveDiscussions:  c.Ranking.BoostActiveDiscussions,
		PreferredTopics:         c.Ranking.PreferredTopics,
		MutedTopics:             c.Ranking.MutedTopics,
		MutePolicy:              feed.MutePolicy(c.Ranking.MutePolicy),
	}.Normalize()
}

// AdvisorSettings converts the advisor section.
func (c *Config) AdvisorSettings() advisor.Settings {
	return advisor.Settings{
		Interval:              c.Advisor.Interval,
		InitialDelay:          c.Advisor.InitialDelay,
		Window:                c.Advisor.Window,
		MinSamples:            c.Advisor.MinSamples,
		MinNewSamples:         c.Advisor.MinNewSamples,
		FullConfidenceSamples: c.Advisor.FullConfidenceSamples,
		MaxHistory:            c.Advisor.MaxHistory,
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
