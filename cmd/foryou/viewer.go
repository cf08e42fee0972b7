package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/ranking"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change how your feed is ranked",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the live ranking configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return writeViewerConfig(os.Stdout, a.sess.Config())
	},
}

var configHowCmd = &cobra.Command{
	Use:   "how",
	Short: "Explain the ranking rules with your current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Print(ranking.Disclosure(a.sess.Config()))
		return nil
	},
}

// editCmd builds a config subcommand that edits the live configuration
// through the session.
func editCmd(use, short string, args cobra.PositionalArgs, edit func(c *feed.Config, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var editErr error
			next, err := a.sess.Update(cmd.Context(), func(c *feed.Config) {
				editErr = edit(c, argv)
			})
			if editErr != nil {
				return editErr
			}
			if err != nil {
				return err
			}
			return writeViewerConfig(os.Stdout, next)
		},
	}
}

var configExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the ranking configuration as YAML (stdout if no file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			return writeViewerConfig(os.Stdout, a.sess.Config())
		}
		var buf bytes.Buffer
		if err := writeViewerConfig(&buf, a.sess.Config()); err != nil {
			return err
		}
		if err := os.WriteFile(args[0], buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", args[0], err)
		}
		fmt.Printf("Exported configuration to %s\n", args[0])
		return nil
	},
}

var configImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Replace the ranking configuration from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		imported, err := readViewerConfig(data)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		saved, err := a.sess.Replace(cmd.Context(), imported)
		if err != nil {
			return err
		}
		fmt.Printf("Imported configuration from %s\n", args[0])
		return writeViewerConfig(os.Stdout, saved)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configHowCmd)
	configCmd.AddCommand(configExportCmd)
	configCmd.AddCommand(configImportCmd)

	configCmd.AddCommand(editCmd("mix [favor-following|balanced|favor-everyone]", "Set the following/everyone mix",
		cobra.ExactArgs(1), func(c *feed.Config, args []string) error {
			m := feed.Mix(args[0])
			if !m.Valid() {
				return fmt.Errorf("unknown mix %q", args[0])
			}
			c.Mix = m
			return nil
		}))
	configCmd.AddCommand(editCmd("boost [interactions|discussions] [on|off]", "Turn a boost on or off",
		cobra.ExactArgs(2), func(c *feed.Config, args []string) error {
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			switch args[0] {
			case "interactions":
				c.BoostRecentInteractions = on
			case "discussions":
				c.BoostActiveDiscussions = on
			default:
				return fmt.Errorf("unknown boost %q (want interactions or discussions)", args[0])
			}
			return nil
		}))
	configCmd.AddCommand(editCmd("prefer [topic...]", "Add preferred topics",
		cobra.MinimumNArgs(1), func(c *feed.Config, args []string) error {
			c.PreferredTopics = append(c.PreferredTopics, args...)
			return nil
		}))
	configCmd.AddCommand(editCmd("unprefer [topic...]", "Remove preferred topics",
		cobra.MinimumNArgs(1), func(c *feed.Config, args []string) error {
			c.PreferredTopics = withoutTopics(c.PreferredTopics, args)
			return nil
		}))
	configCmd.AddCommand(editCmd("mute [topic...]", "Mute topics",
		cobra.MinimumNArgs(1), func(c *feed.Config, args []string) error {
			c.MutedTopics = append(c.MutedTopics, args...)
			return nil
		}))
	configCmd.AddCommand(editCmd("unmute [topic...]", "Unmute topics",
		cobra.MinimumNArgs(1), func(c *feed.Config, args []string) error {
			c.MutedTopics = withoutTopics(c.MutedTopics, args)
			return nil
		}))
	configCmd.AddCommand(editCmd("policy [suppress|remove]", "Choose whether muted posts sink or disappear",
		cobra.ExactArgs(1), func(c *feed.Config, args []string) error {
			p := feed.MutePolicy(args[0])
			if p != feed.MuteSuppress && p != feed.MuteRemove {
				return fmt.Errorf("unknown mute policy %q", args[0])
			}
			c.MutePolicy = p
			return nil
		}))

	rootCmd.AddCommand(configCmd)
}

func writeViewerConfig(w io.Writer, c feed.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Normalize()); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return enc.Close()
}

// readViewerConfig decodes an exported configuration. Missing fields keep
// their defaults; an unknown mix or policy is rejected.
func readViewerConfig(data []byte) (feed.Config, error) {
	c := feed.DefaultConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return feed.Config{}, fmt.Errorf("parsing configuration: %w", err)
	}
	if c.MutePolicy != "" && c.MutePolicy != feed.MuteSuppress && c.MutePolicy != feed.MuteRemove {
		return feed.Config{}, fmt.Errorf("unknown mute policy %q", c.MutePolicy)
	}
	c = c.Normalize()
	if !c.Mix.Valid() {
		return feed.Config{}, fmt.Errorf("unknown mix %q", c.Mix)
	}
	return c, nil
}

func withoutTopics(set, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, t := range remove {
		drop[feed.NormalizeTopic(t)] = true
	}
	out := make([]string, 0, len(set))
	for _, t := range set {
		if !drop[feed.NormalizeTopic(t)] {
			out = append(out, t)
		}
	}
	return out
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}
