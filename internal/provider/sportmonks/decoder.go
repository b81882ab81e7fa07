package sportmonks

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// decodeFixture maps the Sportmonks fixture wire shape into a canonical
// event. The wire format mixes numbers and strings freely, so decoding goes
// through a generic tree with defensive coercion helpers.
func decodeFixture(raw json.RawMessage) (*domain.CanonicalEvent, error) {
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", domain.ErrDecode)
	}

	id := str(entry["id"])
	if id == "" {
		return nil, fmt.Errorf("fixture missing id: %w", domain.ErrDecode)
	}

	score := extractScore(entry)
	status := mapStatus(str(entry["status"]), score != nil)
	if score != nil {
		score.Final = status == domain.EventStatusFinal
	}

	ev := &domain.CanonicalEvent{
		EventID:  id,
		Source:   "sportmonks",
		Status:   status,
		Sport:    strings.ToLower(nested(entry, "sport", "data", "name")),
		League:   nested(entry, "league", "data", "name"),
		StartsAt: parseStartsAt(entry),
		Headline: str(entry["name"]),
		Score:    score,
		Players:  extractPlayerStats(entry),
		Metadata: map[string]any{},
	}

	putIfSet(ev.Metadata, "season", nested(entry, "season", "data", "name"))
	putIfSet(ev.Metadata, "venue", nested(entry, "venue", "data", "name"))
	putIfSet(ev.Metadata, "leagueId", str(entry["league_id"]))
	putIfSet(ev.Metadata, "round", str(entry["round"]))
	putIfSet(ev.Metadata, "status", str(entry["status"]))

	home, away := participants(entry)
	putIfSet(ev.Metadata, "homeTeam", str(home["name"]))
	putIfSet(ev.Metadata, "homeTeamId", str(home["id"]))
	putIfSet(ev.Metadata, "awayTeam", str(away["name"]))
	putIfSet(ev.Metadata, "awayTeamId", str(away["id"]))

	return ev, nil
}

// mapStatus normalizes the Sportmonks status vocabulary. A finished fixture
// without a numeric score is completed rather than final, so settlement
// keeps waiting for the score.
func mapStatus(raw string, hasScore bool) domain.EventStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case normalized == "canceled" || normalized == "cancelled":
		return domain.EventStatusCanceled
	case normalized == "" || normalized == "ns" || normalized == "not started" || normalized == "postponed":
		return domain.EventStatusScheduled
	case strings.Contains(normalized, "live") || normalized == "inplay":
		return domain.EventStatusLive
	case normalized == "ft" || normalized == "aet" || strings.Contains(normalized, "ended") || strings.Contains(normalized, "finished"):
		if hasScore {
			return domain.EventStatusFinal
		}
		return domain.EventStatusCompleted
	default:
		return domain.EventStatusUnknown
	}
}

// extractScore reads the scores include, which reports one entry per side
// keyed by description. Both sides must be numeric for a score to exist.
func extractScore(entry map[string]any) *domain.Score {
	scores, ok := entry["scores"].([]any)
	if !ok {
		return nil
	}

	var home, away *float64
	var period string
	for _, item := range scores {
		sc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		side := strings.ToLower(str(sc["description"]))
		value, ok := num(sc["score"])
		if !ok {
			continue
		}
		switch side {
		case "home":
			home = &value
		case "away":
			away = &value
		}
		if p := str(sc["scoreboard"]); p != "" {
			period = p
		}
	}
	if home == nil || away == nil {
		return nil
	}
	return &domain.Score{Home: int(*home), Away: int(*away), Period: period}
}

// participants resolves the home and away team objects by their meta tag.
func participants(entry map[string]any) (home, away map[string]any) {
	home, away = map[string]any{}, map[string]any{}
	list, ok := entry["participants"].([]any)
	if !ok {
		return home, away
	}
	for _, item := range list {
		team, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch strings.ToLower(str(team["meta"])) {
		case "home":
			home = team
		case "away":
			away = team
		}
	}
	return home, away
}

// extractPlayerStats flattens the statistics include into per-player
// numeric stat maps. Entries without a player ID are skipped.
func extractPlayerStats(entry map[string]any) []domain.PlayerStat {
	stats, ok := entry["statistics"].(map[string]any)
	if !ok {
		return nil
	}
	rows, ok := stats["data"].([]any)
	if !ok {
		return nil
	}

	var out []domain.PlayerStat
	for _, item := range rows {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		player, _ := row["player"].(map[string]any)
		team, _ := row["team"].(map[string]any)

		playerID := str(player["id"])
		if playerID == "" {
			playerID = str(row["player_id"])
		}
		if playerID == "" {
			continue
		}

		details, ok := row["details"].(map[string]any)
		if !ok {
			details = row
		}

		stat := domain.PlayerStat{
			PlayerID:     playerID,
			PlayerName:   firstStr(player["full_name"], player["name"]),
			TeamID:       firstStr(team["id"], row["team_id"]),
			TeamName:     str(team["name"]),
			Position:     firstStr(player["position"], player["position_id"]),
			JerseyNumber: firstStr(player["jersey_number"], player["shirt_number"]),
			Stats:        map[string]float64{},
		}

		putStat(stat.Stats, "points", details, "points", "pts")
		putStat(stat.Stats, "rebounds", details, "rebounds", "reb")
		putStat(stat.Stats, "assists", details, "assists", "ast")
		putStat(stat.Stats, "steals", details, "steals", "stl")
		putStat(stat.Stats, "blocks", details, "blocks", "blk")
		putStat(stat.Stats, "turnovers", details, "turnovers", "to")
		putStat(stat.Stats, "fouls", details, "personal_fouls", "pf")
		putStat(stat.Stats, "plusMinus", details, "plus_minus", "plusMinus")
		if minutes, ok := parseMinutes(firstStr(details["minutes"], details["min"], details["played"])); ok {
			stat.Stats["minutes"] = minutes
		}

		out = append(out, stat)
	}
	return out
}

// putStat stores the first key that coerces to a finite number.
func putStat(dst map[string]float64, name string, details map[string]any, keys ...string) {
	for _, key := range keys {
		if v, ok := num(details[key]); ok {
			dst[name] = v
			return
		}
	}
}

// parseMinutes accepts "34", "34.5", or "34:30".
func parseMinutes(raw string) (float64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return v, true
	}
	if mins, secs, ok := strings.Cut(trimmed, ":"); ok {
		m, errM := strconv.ParseFloat(mins, 64)
		s, errS := strconv.ParseFloat(secs, 64)
		if errM == nil && errS == nil {
			return m + s/60, true
		}
	}
	return 0, false
}

func parseStartsAt(entry map[string]any) *time.Time {
	raw := str(entry["starting_at"])
	if raw == "" {
		if ts, ok := num(entry["starting_at_timestamp"]); ok {
			t := time.Unix(int64(ts), 0).UTC()
			return &t
		}
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ---- Coercion helpers ----

// str renders strings and finite numbers as trimmed strings; everything
// else is "".
func str(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

func firstStr(values ...any) string {
	for _, v := range values {
		if s := str(v); s != "" {
			return s
		}
	}
	return ""
}

// nested walks the generic tree through the given keys and renders the
// leaf via str; any missing or non-object step yields "".
func nested(entry map[string]any, keys ...string) string {
	current := any(entry)
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = m[key]
	}
	return str(current)
}

// num coerces numbers and numeric strings.
func num(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func putIfSet(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
