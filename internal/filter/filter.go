// Package filter decides which candidates are removed before scoring.
// Blocked authors are always removed; muted topics are removed only under
// the remove policy; otherwise the engine applies the mute penalty inline.
package filter

import (
	"github.com/TobiSchelling/foryou/internal/feed"
	"github.com/TobiSchelling/foryou/internal/signals"
)

// Decision is the filter verdict for one candidate.
type Decision int

const (
	Keep Decision = iota
	ExcludeBlocked
	ExcludeMuted
)

func (d Decision) String() string {
	switch d {
	case ExcludeBlocked:
		return "blocked"
	case ExcludeMuted:
		return "muted"
	default:
		return "keep"
	}
}

// Decide returns the verdict for a post's features under cfg. Block is
// checked first: it is stronger than mute.
func Decide(f signals.Features, cfg feed.Config) Decision {
	if f.IsBlocked {
		return ExcludeBlocked
	}
	if f.IsMuted && cfg.EffectiveMutePolicy() == feed.MuteRemove {
		return ExcludeMuted
	}
	return Keep
}
