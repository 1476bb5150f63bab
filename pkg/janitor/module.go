package janitor

import (
	"context"
	"time"

	"github.com/cfoust/avalon/pkg/config"
	"github.com/cfoust/avalon/pkg/rooms"
	"github.com/cfoust/avalon/pkg/state"
	"github.com/cfoust/avalon/pkg/utils"

	"github.com/rs/zerolog/log"
)

// Policy decides whether a room has been idle for too long.
type Policy struct {
	Ended          time.Duration
	WaitingEmpty   time.Duration
	WaitingStalled time.Duration
	PlayingStalled time.Duration
}

func PolicyFromConfig(settings config.JanitorSettings) Policy {
	return Policy{
		Ended:          time.Duration(settings.EndedHours) * time.Hour,
		WaitingEmpty:   time.Duration(settings.WaitingEmptyHours) * time.Hour,
		WaitingStalled: time.Duration(settings.WaitingStalledHours) * time.Hour,
		PlayingStalled: time.Duration(settings.PlayingStalledHours) * time.Hour,
	}
}

func (p Policy) maxIdle(room *state.Room) time.Duration {
	switch room.Status {
	case state.StatusEnded:
		return p.Ended
	case state.StatusWaiting:
		if room.State == nil || len(room.State.Players) == 0 {
			return p.WaitingEmpty
		}
		return p.WaitingStalled
	case state.StatusPlaying:
		return p.PlayingStalled
	}
	return 0
}

func (p Policy) Stale(room *state.Room, now time.Time) bool {
	maxIdle := p.maxIdle(room)
	if maxIdle <= 0 {
		return false
	}
	return now.Sub(room.UpdatedAt) > maxIdle
}

// Report counts the rooms removed by one sweep, by status.
type Report map[state.Status]int

func (r Report) Total() int {
	total := 0
	for _, count := range r {
		total += count
	}
	return total
}

var statuses = []state.Status{
	state.StatusEnded,
	state.StatusWaiting,
	state.StatusPlaying,
}

// Janitor deletes rooms nobody will come back to.
type Janitor struct {
	rooms    *rooms.Service
	policy   Policy
	interval time.Duration
	session  *utils.Session
}

func New(service *rooms.Service, settings config.JanitorSettings) *Janitor {
	return &Janitor{
		rooms:    service,
		policy:   PolicyFromConfig(settings),
		interval: time.Duration(settings.IntervalMinutes) * time.Minute,
	}
}

func (j *Janitor) Start(ctx context.Context) {
	session := utils.NewSession(ctx)
	j.session = &session

	session.Poll(j.interval, func(ctx context.Context) {
		j.Sweep(ctx)
	})
}

func (j *Janitor) Stop() {
	if j.session == nil {
		return
	}

	j.session.Cancel()
	j.session.Wait()
	j.session = nil
}

func (j *Janitor) Sweep(ctx context.Context) Report {
	report := make(Report)
	now := j.rooms.Engine().Now()
	store := j.rooms.Store()

	for _, status := range statuses {
		candidates, err := store.ListByStatus(ctx, status)
		if err != nil {
			log.Error().Err(err).Str("status", string(status)).Msg("could not list rooms")
			continue
		}

		for _, room := range candidates {
			if !j.policy.Stale(room, now) {
				continue
			}

			deleted, err := j.rooms.Reap(ctx, room.ID, func(room *state.Room) bool {
				return j.policy.Stale(room, now)
			})
			if err != nil {
				log.Warn().Err(err).Str("room", room.ID).Msg("failed to delete room")
				continue
			}

			if deleted {
				log.Debug().
					Str("room", room.ID).
					Str("status", string(room.Status)).
					Time("updated", room.UpdatedAt).
					Msg("deleted stale room")
				report[status]++
			}
		}
	}

	if report.Total() > 0 {
		log.Info().
			Int("ended", report[state.StatusEnded]).
			Int("waiting", report[state.StatusWaiting]).
			Int("playing", report[state.StatusPlaying]).
			Msg("cleaned up stale rooms")
	}

	return report
}

// Counts is how many rooms are currently in each status.
func (j *Janitor) Counts(ctx context.Context) (map[state.Status]int, error) {
	counts := make(map[state.Status]int)
	for _, status := range statuses {
		list, err := j.rooms.Store().ListByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		counts[status] = len(list)
	}
	return counts, nil
}
