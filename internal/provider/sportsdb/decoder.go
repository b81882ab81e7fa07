package sportsdb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

// apiEvent is the TheSportsDB wire shape. Everything is a string or null.
type apiEvent struct {
	IDEvent       string `json:"idEvent"`
	StrEvent      string `json:"strEvent"`
	StrSport      string `json:"strSport"`
	StrLeague     string `json:"strLeague"`
	StrHomeTeam   string `json:"strHomeTeam"`
	StrAwayTeam   string `json:"strAwayTeam"`
	IntHomeScore  string `json:"intHomeScore"`
	IntAwayScore  string `json:"intAwayScore"`
	StrStatus     string `json:"strStatus"`
	StrPostponed  string `json:"strPostponed"`
	DateEvent     string `json:"dateEvent"`
	StrTime       string `json:"strTime"`
	StrTimestamp  string `json:"strTimestamp"`
	StrVenue      string `json:"strVenue"`
	StrSeason     string `json:"strSeason"`
	IDLeague      string `json:"idLeague"`
	IDHomeTeam    string `json:"idHomeTeam"`
	IDAwayTeam    string `json:"idAwayTeam"`
}

type eventsEnvelope struct {
	Events []json.RawMessage `json:"events"`
}

// decodeEventsPayload decodes a TheSportsDB events envelope into canonical
// events. A null events list means "no results" and is not an error; a body
// that is not the expected envelope is.
func decodeEventsPayload(body []byte) ([]domain.CanonicalEvent, error) {
	var envelope eventsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", domain.ErrDecode)
	}

	events := make([]domain.CanonicalEvent, 0, len(envelope.Events))
	for _, raw := range envelope.Events {
		var entry apiEvent
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode event: %w", domain.ErrDecode)
		}
		ev, err := entry.toCanonical()
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, nil
}

// toCanonical maps one wire event into the canonical shape. An event with
// no ID is structurally invalid.
func (e apiEvent) toCanonical() (*domain.CanonicalEvent, error) {
	if strings.TrimSpace(e.IDEvent) == "" {
		return nil, fmt.Errorf("event missing idEvent: %w", domain.ErrDecode)
	}

	score := e.score()
	status := e.status(score != nil)
	if score != nil {
		score.Final = status == domain.EventStatusFinal
	}

	ev := &domain.CanonicalEvent{
		EventID:  strings.TrimSpace(e.IDEvent),
		Source:   "thesportsdb",
		Status:   status,
		Sport:    strings.ToLower(strings.TrimSpace(e.StrSport)),
		League:   strings.TrimSpace(e.StrLeague),
		StartsAt: e.startsAt(),
		Headline: strings.TrimSpace(e.StrEvent),
		Score:    score,
		Metadata: map[string]any{
			"status": strings.TrimSpace(e.StrStatus),
		},
	}
	putIfSet(ev.Metadata, "homeTeam", e.StrHomeTeam)
	putIfSet(ev.Metadata, "homeTeamId", e.IDHomeTeam)
	putIfSet(ev.Metadata, "awayTeam", e.StrAwayTeam)
	putIfSet(ev.Metadata, "awayTeamId", e.IDAwayTeam)
	putIfSet(ev.Metadata, "venue", e.StrVenue)
	putIfSet(ev.Metadata, "season", e.StrSeason)
	putIfSet(ev.Metadata, "leagueId", e.IDLeague)
	return ev, nil
}

// score returns both sides as a Score only when both parse as integers;
// partial scores are treated as absent.
func (e apiEvent) score() *domain.Score {
	home, errH := strconv.Atoi(strings.TrimSpace(e.IntHomeScore))
	away, errA := strconv.Atoi(strings.TrimSpace(e.IntAwayScore))
	if errH != nil || errA != nil {
		return nil
	}
	return &domain.Score{Home: home, Away: away, Period: e.period()}
}

// period derives a period label from the raw status for overtime and
// shootout finishes ("AOT" = after overtime, "AP"/"PEN" = after penalties).
func (e apiEvent) period() string {
	switch strings.ToUpper(strings.TrimSpace(e.StrStatus)) {
	case "AOT", "AET":
		return "OT"
	case "AP", "PEN":
		return "SO"
	}
	return ""
}

func (e apiEvent) status(hasScore bool) domain.EventStatus {
	if strings.EqualFold(strings.TrimSpace(e.StrPostponed), "yes") {
		return domain.EventStatusScheduled
	}
	normalized := strings.ToLower(strings.TrimSpace(e.StrStatus))
	switch {
	case normalized == "" || normalized == "ns" || normalized == "not started" || normalized == "postponed":
		return domain.EventStatusScheduled
	case strings.Contains(normalized, "canc"):
		return domain.EventStatusCanceled
	case normalized == "1h" || normalized == "2h" || normalized == "ht" ||
		strings.Contains(normalized, "live") || strings.Contains(normalized, "in progress"):
		return domain.EventStatusLive
	case normalized == "ft" || normalized == "aot" || normalized == "aet" || normalized == "ap" || normalized == "pen" ||
		strings.Contains(normalized, "finished") || strings.Contains(normalized, "ended"):
		if hasScore {
			return domain.EventStatusFinal
		}
		return domain.EventStatusCompleted
	default:
		return domain.EventStatusUnknown
	}
}

// startsAt prefers the combined timestamp, falling back to date + time.
// TheSportsDB reports times in UTC.
func (e apiEvent) startsAt() *time.Time {
	ts := strings.TrimSpace(e.StrTimestamp)
	if ts != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.ParseInLocation(layout, ts, time.UTC); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	date := strings.TrimSpace(e.DateEvent)
	if date == "" {
		return nil
	}
	clock := strings.TrimSpace(e.StrTime)
	if clock == "" {
		clock = "00:00:00"
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+clock, time.UTC); err == nil {
		return &t
	}
	if t, err := time.ParseInLocation("2006-01-02", date, time.UTC); err == nil {
		return &t
	}
	return nil
}

func putIfSet(m map[string]any, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		m[key] = v
	}
}
