package database

import (
	"time"

	"github.com/TobiSchelling/foryou/internal/feed"
)

// Author is the viewer's standing relationship with one author.
type Author struct {
	ID                string
	Handle            string
	Followed          bool
	Blocked           bool
	LastInteractionAt *time.Time
	UpdatedAt         time.Time
}

// PostMeta is where a stored post came from.
type PostMeta struct {
	Link   string
	Source string
}

// CandidateQuery selects the candidate set for a ranking pass.
type CandidateQuery struct {
	// Since drops posts created before it. Zero means no lower bound.
	Since time.Time
	// InteractedSince is the cutoff for an author to count as recently
	// interacted with.
	InteractedSince time.Time
	// Limit caps the number of posts, newest first. Zero means no cap.
	Limit int
}

// SuggestionRecord is one row of the suggestion log.
type SuggestionRecord struct {
	ID          string
	Fingerprint string
	Delta       feed.Delta
	Confidence  float64
	Rationale   string
	GeneratedAt time.Time
	Outcome     *string
	ResolvedAt  *time.Time
}

// Stats contains aggregate database statistics.
type Stats struct {
	Posts           int
	Authors         int
	FollowedAuthors int
	BlockedAuthors  int
	Engagements     int
	Suggestions     int
	Applied         int
	Dismissed       int
	Expired         int
	NewestPost      *time.Time
}

// BodyTarget is a post whose body is empty and whose link has not been
// fetched yet.
type BodyTarget struct {
	ID   string
	Link string
}
