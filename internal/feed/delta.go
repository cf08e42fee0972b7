package feed

import (
	"fmt"
	"slices"
	"strings"
)

// Delta is a partial configuration proposed by the tuning advisor. Nil
// fields leave the live value untouched; topics are added, never replaced.
type Delta struct {
	Mix                     *Mix     `json:"mix,omitempty"`
	BoostRecentInteractions *bool    `json:"boostRecentInteractions,omitempty"`
	BoostActiveDiscussions  *bool    `json:"boostActiveDiscussions,omitempty"`
	AddPreferredTopics      []string `json:"addPreferredTopics,omitempty"`
}

// IsEmpty reports whether the delta changes nothing.
func (d Delta) IsEmpty() bool {
	return d.Mix == nil && d.BoostRecentInteractions == nil &&
		d.BoostActiveDiscussions == nil && len(d.AddPreferredTopics) == 0
}

// Apply merges the delta into a copy of c. The receiver is never modified,
// so a caller swapping in the result gets all of the delta or none of it.
func (c Config) Apply(d Delta) Config {
	out := c
	out.PreferredTopics = slices.Clone(c.PreferredTopics)
	out.MutedTopics = slices.Clone(c.MutedTopics)

	if d.Mix != nil {
		out.Mix = *d.Mix
	}
	if d.BoostRecentInteractions != nil {
		out.BoostRecentInteractions = *d.BoostRecentInteractions
	}
	if d.BoostActiveDiscussions != nil {
		out.BoostActiveDiscussions = *d.BoostActiveDiscussions
	}
	out.PreferredTopics = append(out.PreferredTopics, d.AddPreferredTopics...)
	return out.Normalize()
}

// Fingerprint returns a canonical form of the delta. Two deltas with the
// same fingerprint propose the same change.
func (d Delta) Fingerprint() string {
	var parts []string
	if d.Mix != nil {
		parts = append(parts, "mix="+string(*d.Mix))
	}
	if d.BoostRecentInteractions != nil {
		parts = append(parts, fmt.Sprintf("boostRecentInteractions=%t", *d.BoostRecentInteractions))
	}
	if d.BoostActiveDiscussions != nil {
		parts = append(parts, fmt.Sprintf("boostActiveDiscussions=%t", *d.BoostActiveDiscussions))
	}
	if topics := normalizeTopics(d.AddPreferredTopics); len(topics) > 0 {
		parts = append(parts, "addPreferredTopics="+strings.Join(topics, ","))
	}
	return strings.Join(parts, ";")
}

// Describe renders the delta as a short sentence for the viewer.
func (d Delta) Describe() string {
	var parts []string
	if d.Mix != nil {
		parts = append(parts, "switch mix to "+string(*d.Mix))
	}
	if d.BoostRecentInteractions != nil {
		parts = append(parts, "turn "+onOff(*d.BoostRecentInteractions)+" the recent-interaction boost")
	}
	if d.BoostActiveDiscussions != nil {
		parts = append(parts, "turn "+onOff(*d.BoostActiveDiscussions)+" the active-discussion boost")
	}
	for _, t := range normalizeTopics(d.AddPreferredTopics) {
		parts = append(parts, "prefer topic #"+t)
	}
	if len(parts) == 0 {
		return "no change"
	}
	return strings.Join(parts, ", ")
}

// MixPtr and BoolPtr build delta fields.
func MixPtr(m Mix) *Mix { return &m }

func BoolPtr(b bool) *bool { return &b }

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
