package feed

import (
	"fmt"
	"slices"

	"github.com/goccy/go-json"
)

// Mix is the relative weighting between followed authors and everyone else.
type Mix string

const (
	MixFavorFollowing Mix = "favor-following"
	MixBalanced       Mix = "balanced"
	MixFavorEveryone  Mix = "favor-everyone"
)

// Mixes lists the recognised mix values in display order.
var Mixes = []Mix{MixFavorFollowing, MixBalanced, MixFavorEveryone}

// Valid reports whether m is one of the recognised mix values.
func (m Mix) Valid() bool {
	return slices.Contains(Mixes, m)
}

// MutePolicy selects what muting a topic does to matching posts.
type MutePolicy string

const (
	// MuteSuppress keeps muted posts rankable but applies the mute penalty.
	MuteSuppress MutePolicy = "suppress"
	// MuteRemove drops muted posts from the candidate set before scoring.
	MuteRemove MutePolicy = "remove"
)

// Config is the viewer's ranking configuration. It is a plain value: pass it
// into ranking and reason generation, never share it mutably.
type Config struct {
	Mix                     Mix        `json:"mix" yaml:"mix"`
	BoostRecentInteractions bool       `json:"boostRecentInteractions" yaml:"boostRecentInteractions"`
	BoostActiveDiscussions  bool       `json:"boostActiveDiscussions" yaml:"boostActiveDiscussions"`
	PreferredTopics         []string   `json:"preferredTopics" yaml:"preferredTopics"`
	MutedTopics             []string   `json:"mutedTopics" yaml:"mutedTopics"`
	MutePolicy              MutePolicy `json:"mutePolicy,omitempty" yaml:"mutePolicy,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is specified:
// balanced mix, boosts off, empty topic sets, suppress-on-mute.
func DefaultConfig() Config {
	return Config{
		Mix:             MixBalanced,
		PreferredTopics: []string{},
		MutedTopics:     []string{},
		MutePolicy:      MuteSuppress,
	}
}

// ParseConfig decodes the external configuration record. Unknown fields are
// ignored and missing fields keep their defaults. An unknown mix value is
// kept as-is so the ranking pass can report the drift.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing ranking config: %w", err)
	}
	return cfg.Normalize(), nil
}

// Marshal encodes the configuration in its external JSON shape.
func (c Config) Marshal() ([]byte, error) {
	return json.Marshal(c.Normalize())
}

// EffectiveMix returns the mix to rank with. Unknown values fall back to
// balanced.
func (c Config) EffectiveMix() Mix {
	if c.Mix.Valid() {
		return c.Mix
	}
	return MixBalanced
}

// Drifted reports whether the mix holds a value this version does not know.
func (c Config) Drifted() bool {
	return c.Mix != "" && !c.Mix.Valid()
}

// EffectiveMutePolicy returns the mute policy, defaulting to suppress.
func (c Config) EffectiveMutePolicy() MutePolicy {
	if c.MutePolicy == MuteRemove {
		return MuteRemove
	}
	return MuteSuppress
}

// Prefers reports whether topic is in the preferred set.
func (c Config) Prefers(topic string) bool {
	return containsTopic(c.PreferredTopics, topic)
}

// Mutes reports whether topic is in the muted set.
func (c Config) Mutes(topic string) bool {
	return containsTopic(c.MutedTopics, topic)
}

// Normalize returns a copy with canonical topic sets (normalized, deduped,
// sorted), an empty mix replaced by balanced, and an explicit mute policy.
func (c Config) Normalize() Config {
	out := c
	if out.Mix == "" {
		out.Mix = MixBalanced
	}
	out.MutePolicy = c.EffectiveMutePolicy()
	out.PreferredTopics = normalizeTopics(c.PreferredTopics)
	out.MutedTopics = normalizeTopics(c.MutedTopics)
	return out
}

// Equal reports whether two configurations rank identically.
func (c Config) Equal(o Config) bool {
	a, b := c.Normalize(), o.Normalize()
	return a.Mix == b.Mix &&
		a.BoostRecentInteractions == b.BoostRecentInteractions &&
		a.BoostActiveDiscussions == b.BoostActiveDiscussions &&
		a.MutePolicy == b.MutePolicy &&
		slices.Equal(a.PreferredTopics, b.PreferredTopics) &&
		slices.Equal(a.MutedTopics, b.MutedTopics)
}

func containsTopic(set []string, topic string) bool {
	t := NormalizeTopic(topic)
	if t == "" {
		return false
	}
	for _, s := range set {
		if NormalizeTopic(s) == t {
			return true
		}
	}
	return false
}

func normalizeTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if n := NormalizeTopic(t); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
