package main

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

/*
 * Collection schedule per episode:
 *   6-week  - due day 42,  window days 35-56
 *   3-month - due day 90,  window days 75-120
 *   1-year  - due day 365, window days 335-395
 * Each window carries the joint-specific instrument (HOOS-Jr for hip
 * procedures, KOOS-Jr otherwise) plus PROMIS-10. All offsets are
 * calendar days from the surgery date.
 */

type scheduleWindow struct {
	name     string
	dueDay   int
	openDay  int
	closeDay int
}

var proWindows = []scheduleWindow{
	{name: Window6Week, dueDay: 42, openDay: 35, closeDay: 56},
	{name: Window3Month, dueDay: 90, openDay: 75, closeDay: 120},
	{name: Window1Year, dueDay: 365, openDay: 335, closeDay: 395},
}

func jointInstrument(procedureType string) string {
	if strings.Contains(procedureType, "THA") {
		return InstrumentHoosJr
	}
	return InstrumentKoosJr
}

type obligationKey struct {
	episodeId  string
	window     string
	instrument string
}

// generateSchedule produces the obligations an episode still lacks.
// Keyed by (episode, window, instrument), so calling it again with the
// obligations it already produced yields nothing. An episode without a
// surgery date is simply not yet schedulable and returns an empty set.
func generateSchedule(episode *Episode, existing []Obligation) []Obligation {
	if episode == nil || episode.SurgeryDate == nil || episode.SurgeryDate.IsZero() {
		return []Obligation{}
	}

	seen := map[obligationKey]bool{}
	for _, o := range existing {
		seen[obligationKey{o.EpisodeId, o.Window, o.Instrument}] = true
	}

	surgery := episode.SurgeryDate.Time
	instruments := []string{jointInstrument(episode.ProcedureType), InstrumentPromis10}

	created := []Obligation{}
	for _, window := range proWindows {
		for _, instrument := range instruments {
			key := obligationKey{episode.Id, window.name, instrument}
			if seen[key] {
				continue
			}
			seen[key] = true

			created = append(created, Obligation{
				Id:          uuid.NewString(),
				EpisodeId:   episode.Id,
				Instrument:  instrument,
				Window:      window.name,
				DueDate:     Date{addDays(surgery, window.dueDay)},
				WindowOpen:  Date{addDays(surgery, window.openDay)},
				WindowClose: Date{addDays(surgery, window.closeDay)},
				Status:      ObligationPending,
			})
		}
	}

	return created
}

// fulfillObligations links open obligations to the assessments that
// satisfy them: same episode, same instrument, collection date inside
// the window. The earliest in-window assessment wins so a repeat
// administration never relinks a completed obligation.
func fulfillObligations(obligations []Obligation, assessments []*Assessment) int {
	fulfilled := 0

	for i := range obligations {
		o := &obligations[i]
		if o.Status == ObligationCompleted || o.Status == ObligationSkipped {
			continue
		}

		var match *Assessment
		for _, a := range assessments {
			if a.EpisodeId != o.EpisodeId || a.Instrument != o.Instrument {
				continue
			}
			if a.CollectionDate == nil || a.CollectionDate.IsZero() {
				continue
			}
			if !withinDayWindow(a.CollectionDate.Time, o.WindowOpen.Time, o.WindowClose.Time) {
				continue
			}
			if match == nil || isBeforeDay(a.CollectionDate.Time, match.CollectionDate.Time) {
				match = a
			}
		}

		if match != nil {
			o.Status = ObligationCompleted
			o.AssessmentId = match.Id
			fulfilled++
		}
	}

	return fulfilled
}

// sweepOverdue transitions every pending obligation whose window closed
// before asOf. The whole batch is judged against the single frozen asOf
// so a report's "now" is consistent across obligations. Re-running the
// sweep is a no-op: overdue stays overdue, and completed or skipped
// obligations are never reverted.
func sweepOverdue(obligations []Obligation, asOf time.Time) ([]Obligation, int) {
	transitioned := 0

	for i := range obligations {
		o := &obligations[i]
		if o.Status != ObligationPending {
			continue
		}
		if isAfterDay(asOf, o.WindowClose.Time) {
			o.Status = ObligationOverdue
			transitioned++
		}
	}

	return obligations, transitioned
}
