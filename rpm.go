package main

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
)

/*
 * Remote-monitoring billing gates, per patient per calendar month:
 *   total review time >= 20 full minutes  -> base code (99457)
 *   total review time >= 40 full minutes  -> add-on code (99458)
 *   distinct check-in days >= 16          -> required for either code
 * The gates compare raw seconds; the rounded minute total is for
 * display only and never feeds a billing decision. A day-count
 * shortfall in the current month is projected forward (can the
 * remaining days still reach 16?); a closed month is simply not
 * qualified.
 */
const (
	rpmBaseCodeSeconds  = 20 * 60
	rpmAddOnCodeSeconds = 40 * 60
	rpmMinCheckinDays   = 16
)

const (
	RPMStatusQualified    = "qualified"
	RPMStatusOnTrack      = "on track"
	RPMStatusInfeasible   = "infeasible this month"
	RPMStatusNotQualified = "not qualified"
)

type RPMEvaluation struct {
	PatientId         string `json:"patientId"`
	BillingMonth      string `json:"billingMonth"`
	TotalSeconds      int    `json:"totalSeconds"`
	TotalMinutes      int    `json:"totalMinutes"`
	CheckinDays       int    `json:"checkinDays"`
	NeededCheckins    int    `json:"neededCheckins"`
	DaysLeftInMonth   int    `json:"daysLeftInMonth"`
	IsCurrentMonth    bool   `json:"isCurrentMonth"`
	DaysStatus        string `json:"daysStatus"`
	BaseCodeEligible  bool   `json:"cpt99457Eligible"`
	AddOnCodeEligible bool   `json:"cpt99458Eligible"`
}

type RPMRequestBody struct {
	BillingMonth string         `json:"billingMonth"`
	AsOf         *Date          `json:"asOf"`
	Entries      []TimeLogEntry `json:"entries"`
	Checkins     []Checkin      `json:"checkins"`
}

// evaluateRPMMonth computes billing-code eligibility for one patient
// and one billing month. Entries outside the month or belonging to
// another patient are ignored; a negative duration fails the whole
// evaluation since the minutes feed billing claims.
func evaluateRPMMonth(patientId, month string, asOf time.Time, entries []TimeLogEntry, checkins []Checkin) (RPMEvaluation, error) {
	eval := RPMEvaluation{PatientId: patientId, BillingMonth: month}

	first, last, err := monthBounds(month)
	if err != nil {
		return eval, err
	}

	for _, entry := range entries {
		if entry.PatientId != patientId {
			continue
		}
		entryMonth := entry.BillingMonth
		if entryMonth == "" && !entry.StartedAt.IsZero() {
			entryMonth = entry.StartedAt.Format("2006-01")
		}
		if entryMonth != month {
			continue
		}
		if entry.DurationSeconds < 0 {
			return eval, fmt.Errorf("negative duration on time log %s (%d seconds)", entry.Id, entry.DurationSeconds)
		}
		eval.TotalSeconds += entry.DurationSeconds
	}

	// Round to whole minutes the way the billing report displays them
	eval.TotalMinutes = (eval.TotalSeconds + 30) / 60

	// Count distinct calendar days with at least one check-in
	days := map[string]bool{}
	for _, checkin := range checkins {
		if checkin.PatientId != patientId || checkin.Date.IsZero() {
			continue
		}
		if !withinDayWindow(checkin.Date.Time, first, last) {
			continue
		}
		days[checkin.Date.Format("2006-01-02")] = true
	}
	eval.CheckinDays = len(days)

	eval.NeededCheckins = rpmMinCheckinDays - eval.CheckinDays
	if eval.NeededCheckins < 0 {
		eval.NeededCheckins = 0
	}

	eval.IsCurrentMonth = asOf.Format("2006-01") == month
	if eval.IsCurrentMonth {
		eval.DaysLeftInMonth = daysLeftInMonth(asOf)
	}

	switch {
	case eval.IsCurrentMonth && eval.NeededCheckins <= eval.DaysLeftInMonth:
		// Covers an already-met day gate too; the month can still
		// change, so the verdict stays a projection
		eval.DaysStatus = RPMStatusOnTrack
	case eval.IsCurrentMonth:
		eval.DaysStatus = RPMStatusInfeasible
	case eval.CheckinDays >= rpmMinCheckinDays:
		eval.DaysStatus = RPMStatusQualified
	default:
		// Closed month; no forward projection is meaningful
		eval.DaysStatus = RPMStatusNotQualified
	}

	eval.BaseCodeEligible = eval.TotalSeconds >= rpmBaseCodeSeconds && eval.CheckinDays >= rpmMinCheckinDays
	eval.AddOnCodeEligible = eval.TotalSeconds >= rpmAddOnCodeSeconds && eval.CheckinDays >= rpmMinCheckinDays

	return eval, nil
}

// evaluateRPMBatch evaluates every patient present in the supplied
// entries or check-ins for one billing month.
func evaluateRPMBatch(month string, asOf time.Time, entries []TimeLogEntry, checkins []Checkin) ([]RPMEvaluation, error) {
	patients := map[string]bool{}
	for _, entry := range entries {
		patients[entry.PatientId] = true
	}
	for _, checkin := range checkins {
		patients[checkin.PatientId] = true
	}

	ids := make([]string, 0, len(patients))
	for id := range patients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	evaluations := make([]RPMEvaluation, 0, len(ids))
	for _, id := range ids {
		eval, err := evaluateRPMMonth(id, month, asOf, entries, checkins)
		if err != nil {
			return nil, err
		}
		evaluations = append(evaluations, eval)
	}

	return evaluations, nil
}

func rpmSummary(c echo.Context) error {
	r := c.Request()
	ctx := r.Context()

	var body RPMRequestBody
	if err := c.Bind(&body); err != nil {
		logger(ctx, err)
		return c.NoContent(http.StatusBadRequest)
	}

	if body.BillingMonth == "" {
		logger(ctx, fmt.Errorf("rpm summary requested without billing month"))
		return c.NoContent(http.StatusBadRequest)
	}

	asOf := time.Now()
	if body.AsOf != nil && !body.AsOf.IsZero() {
		asOf = body.AsOf.Time
	}

	evaluations, err := evaluateRPMBatch(body.BillingMonth, asOf, body.Entries, body.Checkins)
	if err != nil {
		logger(ctx, err)
		return c.NoContent(http.StatusUnprocessableEntity)
	}

	return c.JSON(http.StatusOK, evaluations)
}
