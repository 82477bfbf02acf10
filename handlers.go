package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	appVersion string
)

func engineServices(c echo.Context) error {
	// Build discovery response listing the engine operations
	serviceResponse := ServiceResponse{
		Services: []Service{
			{
				Title:       "Score Conversion",
				Description: "Converts a KOOS-Jr or HOOS-Jr raw sum to the 0-100 interval scale",
				Id:          "score",
				Path:        "/engine/score",
			},
			{
				Title:       "PRO Collection Schedule",
				Description: "Generates the required collection obligations for a surgical episode",
				Id:          "schedule",
				Path:        "/engine/schedule",
			},
			{
				Title:       "Overdue Sweep",
				Description: "Transitions pending obligations whose windows have closed",
				Id:          "overdue-sweep",
				Path:        "/engine/overdue-sweep",
			},
			{
				Title:       "Substantial Clinical Benefit",
				Description: "Evaluates clinical benefit for a matched pre-op/post-op score pair",
				Id:          "scb",
				Path:        "/engine/scb",
			},
			{
				Title:             "Program Eligibility Report",
				Description:       "Classifies episodes against the outcome-measure and episode-payment programs",
				Id:                "eligibility",
				Path:              "/engine/eligibility",
				UsageRequirements: "OpenID bearer token; records server reachable from the engine",
			},
			{
				Title:       "RPM Billing Summary",
				Description: "Computes remote-monitoring billing eligibility per patient and month",
				Id:          "rpm",
				Path:        "/engine/rpm",
			},
		},
	}

	// Return response
	return c.JSON(http.StatusOK, serviceResponse)
}

func heartbeat(c echo.Context) error {
	// Heartbeat function to assess service status. Immediately return 200
	return c.NoContent(http.StatusOK)
}

/**************************
 **** Score conversion ****
 **************************/

type ScoreRequestBody struct {
	Instrument string `json:"instrument"`
	RawSum     int    `json:"rawSum"`
}

type ScoreResponse struct {
	Instrument    string  `json:"instrument"`
	RawSum        int     `json:"rawSum"`
	IntervalScore float64 `json:"intervalScore"`
}

func scoreConvert(c echo.Context) error {
	var body ScoreRequestBody
	if err := c.Bind(&body); err != nil {
		logger(c.Request().Context(), err)
		return c.NoContent(http.StatusBadRequest)
	}

	score, err := convertScore(body.Instrument, body.RawSum)
	if err != nil {
		var oor *OutOfRangeError
		if errors.As(err, &oor) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, ScoreResponse{
		Instrument:    body.Instrument,
		RawSum:        body.RawSum,
		IntervalScore: score,
	})
}

/**************************
 ****** Scheduling ********
 **************************/

type ScheduleRequestBody struct {
	Episode  *Episode     `json:"episode"`
	Existing []Obligation `json:"existing"`
}

func scheduleGenerate(c echo.Context) error {
	var body ScheduleRequestBody
	if err := c.Bind(&body); err != nil {
		logger(c.Request().Context(), err)
		return c.NoContent(http.StatusBadRequest)
	}

	// An episode without a surgery date yields an empty set, not an
	// error; "not yet scheduled" is a valid state
	obligations := generateSchedule(body.Episode, body.Existing)
	return c.JSON(http.StatusOK, obligations)
}

type SweepRequestBody struct {
	AsOf        *Date        `json:"asOf"`
	Obligations []Obligation `json:"obligations"`
}

type SweepResponse struct {
	Obligations  []Obligation `json:"obligations"`
	Transitioned int          `json:"transitioned"`
}

func overdueSweep(c echo.Context) error {
	var body SweepRequestBody
	if err := c.Bind(&body); err != nil {
		logger(c.Request().Context(), err)
		return c.NoContent(http.StatusBadRequest)
	}

	// The whole batch shares one frozen "now"
	asOf := time.Now()
	if body.AsOf != nil && !body.AsOf.IsZero() {
		asOf = body.AsOf.Time
	}

	obligations, transitioned := sweepOverdue(body.Obligations, asOf)
	return c.JSON(http.StatusOK, SweepResponse{
		Obligations:  obligations,
		Transitioned: transitioned,
	})
}

/**************************
 ********** SCB ***********
 **************************/

type SCBRequestBody struct {
	Instrument  string   `json:"instrument"`
	PreopScore  *float64 `json:"preopScore"`
	PostopScore *float64 `json:"postopScore"`
}

func scbEvaluate(c echo.Context) error {
	var body SCBRequestBody
	if err := c.Bind(&body); err != nil {
		logger(c.Request().Context(), err)
		return c.NoContent(http.StatusBadRequest)
	}

	// A missing score yields a non-evaluable verdict with a 200, never
	// a zero delta
	verdict := evaluateSCB(body.Instrument, body.PreopScore, body.PostopScore)
	return c.JSON(http.StatusOK, verdict)
}
