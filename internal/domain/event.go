package domain

import (
	"strings"
	"time"
)

// EventStatus is the normalized lifecycle state of a sports event. Every
// provider-specific status string is mapped into this set by the adapter
// decoders.
type EventStatus string

const (
	EventStatusScheduled EventStatus = "scheduled"
	EventStatusLive      EventStatus = "live"
	EventStatusFinal     EventStatus = "final"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCanceled  EventStatus = "canceled"
	EventStatusUnknown   EventStatus = "unknown"
)

// statusRank orders statuses by trustworthiness for consensus: a provider
// reporting "final" outranks one still reporting "live", and so on.
var statusRank = map[EventStatus]int{
	EventStatusFinal:     0,
	EventStatusCompleted: 1,
	EventStatusLive:      2,
	EventStatusScheduled: 3,
	EventStatusCanceled:  4,
	EventStatusUnknown:   5,
}

// Rank returns the consensus ordering of the status; lower is more
// authoritative. Unrecognized statuses rank with unknown.
func (s EventStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return statusRank[EventStatusUnknown]
}

// Terminal reports whether the status represents a concluded event.
func (s EventStatus) Terminal() bool {
	return s == EventStatusFinal || s == EventStatusCompleted || s == EventStatusCanceled
}

// Score holds a fully numeric home/away score. A provider that could not
// parse both sides as numbers emits no Score at all rather than a partial
// one. Final marks scores the provider reported as a settled result.
type Score struct {
	Home   int
	Away   int
	Period string // e.g. "FT", "OT", "SO"
	Final  bool
}

// Equal compares only the numeric result, not period or finality.
func (s Score) Equal(other Score) bool {
	return s.Home == other.Home && s.Away == other.Away
}

// Overtime reports whether the period label indicates the event went past
// regulation time.
func (s Score) Overtime() bool {
	switch p := strings.ToLower(s.Period); p {
	case "ot", "so", "aot", "aet", "pen":
		return true
	default:
		// Substring match is restricted to full words; "not started"
		// contains "ot" but is not overtime.
		return strings.Contains(p, "overtime") || strings.Contains(p, "shootout")
	}
}

// PlayerStat is a per-player box-score line. Numeric stats are keyed by
// name (points, rebounds, assists, ...) so that merging across providers is
// field-by-field.
type PlayerStat struct {
	PlayerID     string
	PlayerName   string
	TeamID       string
	TeamName     string
	Position     string
	JerseyNumber string
	Stats        map[string]float64
}

// CanonicalEvent is a single provider's view of a sports event, normalized
// into the shared shape. Fields the provider did not report stay zero.
type CanonicalEvent struct {
	EventID  string
	Source   string // provider name that produced this view
	Status   EventStatus
	Sport    string
	League   string
	StartsAt *time.Time
	Headline string
	Score    *Score
	Players  []PlayerStat
	Metadata map[string]any
}

// SourceReport records one provider's contribution inside a consensus
// event, kept for auditability and disagreement diagnostics.
type SourceReport struct {
	Provider string
	Status   EventStatus
	Score    *Score
	Metadata map[string]any
}

// ConsensusEvent is the reconciled view across all answering providers.
// The embedded CanonicalEvent is the primary view (most authoritative
// status) with the consensus score and merged player stats applied.
type ConsensusEvent struct {
	CanonicalEvent
	Sources            []SourceReport
	StatusDisagreement bool
	ScoreDisagreement  bool
}

// Overtime reports whether any contributing provider signals the event went
// past regulation. The consensus score carries only the primary provider's
// period, so every source's score period and period/status metadata strings
// are checked too: a secondary provider's "OT" must not be lost to numeric
// score unanimity.
func (e *ConsensusEvent) Overtime() bool {
	if e.Score != nil && e.Score.Overtime() {
		return true
	}
	for _, src := range e.Sources {
		if src.Score != nil && src.Score.Overtime() {
			return true
		}
		for _, key := range []string{"period", "status"} {
			if v, ok := src.Metadata[key].(string); ok && (Score{Period: v}).Overtime() {
				return true
			}
		}
	}
	return false
}
