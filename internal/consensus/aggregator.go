// Package consensus reconciles the same sports event as seen by multiple
// providers into a single authoritative view.
package consensus

import (
	"errors"
	"sort"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// ErrNoReports is returned when Aggregate is called with no provider views.
// Callers must treat "no providers answered" before aggregating.
var ErrNoReports = errors.New("consensus: no provider reports")

// Aggregate merges provider views of one event.
//
// The primary view is the one with the most authoritative status
// (final > completed > live > scheduled > canceled > unknown; ties keep the
// given provider order). The consensus score is the unanimous score when
// every reporting provider agrees, otherwise the first finalized score in
// primary order, otherwise absent. Player stats merge across providers by
// player ID in the given order, so later providers win per stat field.
func Aggregate(reports []domain.CanonicalEvent) (*domain.ConsensusEvent, error) {
	if len(reports) == 0 {
		return nil, ErrNoReports
	}

	// Stable sort keeps the caller's provider ordering within equal ranks.
	ordered := make([]domain.CanonicalEvent, len(reports))
	copy(ordered, reports)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Status.Rank() < ordered[j].Status.Rank()
	})

	primary := ordered[0]
	out := &domain.ConsensusEvent{
		CanonicalEvent: primary,
		Sources:        make([]domain.SourceReport, 0, len(reports)),
	}
	// The merged view belongs to the engine, not to any one provider.
	out.Source = ""
	out.Metadata = cloneMetadata(primary.Metadata)

	for _, rep := range reports {
		out.Sources = append(out.Sources, domain.SourceReport{
			Provider: rep.Source,
			Status:   rep.Status,
			Score:    rep.Score,
			Metadata: rep.Metadata,
		})
		if rep.Status != primary.Status {
			out.StatusDisagreement = true
		}
	}

	out.Score = consensusScore(ordered, out)
	fillGaps(out, ordered)
	out.Players = mergePlayers(reports)

	return out, nil
}

// consensusScore applies the unanimity-then-finalized rule and sets the
// score disagreement flag.
func consensusScore(ordered []domain.CanonicalEvent, out *domain.ConsensusEvent) *domain.Score {
	var reported []*domain.Score
	for i := range ordered {
		if ordered[i].Score != nil {
			reported = append(reported, ordered[i].Score)
		}
	}
	if len(reported) == 0 {
		return nil
	}

	unanimous := true
	for _, sc := range reported[1:] {
		if !sc.Equal(*reported[0]) {
			unanimous = false
			break
		}
	}
	if unanimous {
		return reported[0]
	}

	out.ScoreDisagreement = true
	for _, sc := range reported {
		if sc.Final {
			return sc
		}
	}
	return nil
}

// fillGaps copies descriptive fields the primary left empty from the next
// most authoritative provider that has them.
func fillGaps(out *domain.ConsensusEvent, ordered []domain.CanonicalEvent) {
	for _, rep := range ordered[1:] {
		if out.Sport == "" {
			out.Sport = rep.Sport
		}
		if out.League == "" {
			out.League = rep.League
		}
		if out.Headline == "" {
			out.Headline = rep.Headline
		}
		if out.StartsAt == nil {
			out.StartsAt = rep.StartsAt
		}
		for key, value := range rep.Metadata {
			if _, exists := out.Metadata[key]; !exists {
				out.Metadata[key] = value
			}
		}
	}
}

// mergePlayers merges box scores by player ID in report order. A later
// provider overrides a stat field only when it actually reports it, so one
// provider's partial line never erases another's.
func mergePlayers(reports []domain.CanonicalEvent) []domain.PlayerStat {
	merged := map[string]*domain.PlayerStat{}
	var order []string

	for _, rep := range reports {
		for _, player := range rep.Players {
			existing, ok := merged[player.PlayerID]
			if !ok {
				clone := player
				clone.Stats = map[string]float64{}
				for k, v := range player.Stats {
					clone.Stats[k] = v
				}
				merged[player.PlayerID] = &clone
				order = append(order, player.PlayerID)
				continue
			}
			if existing.PlayerName == "" {
				existing.PlayerName = player.PlayerName
			}
			if existing.TeamID == "" {
				existing.TeamID = player.TeamID
			}
			if existing.TeamName == "" {
				existing.TeamName = player.TeamName
			}
			if existing.Position == "" {
				existing.Position = player.Position
			}
			if existing.JerseyNumber == "" {
				existing.JerseyNumber = player.JerseyNumber
			}
			for k, v := range player.Stats {
				existing.Stats[k] = v
			}
		}
	}

	if len(order) == 0 {
		return nil
	}
	out := make([]domain.PlayerStat, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	return out
}

func cloneMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
