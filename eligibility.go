package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.elastic.co/apm"
)

type ComplianceReportRequest struct {
	Host    string
	Context ReportContext
	Headers map[string]string
	mu      sync.Mutex
	Data    *ReportData
	Params  ReportParams
}

type ReportContext struct {
	RequestContext context.Context
	ClinicId       string
	AsOf           time.Time
	Body           string
}

type ReportData struct {
	Episodes    []*Episode
	Assessments []*Assessment
	RiskFacts   map[string]*RiskFacts
}

type ReportParams struct {
	AnnualVolume   int
	AvgEpisodeCost float64
	MaxPenaltyPct  float64
}

/**************************
 **** Request payload *****
 **************************/
type ReportRequestBody struct {
	RecordsServer string `json:"recordsServer"`
	Authorization struct {
		AccessToken string `json:"access_token"`
	} `json:"authorization"`
	ClinicId       string  `json:"clinicId"`
	AsOf           *Date   `json:"asOf"`
	AnnualVolume   int     `json:"annualVolume"`
	AvgEpisodeCost float64 `json:"avgEpisodeCost"`
	MaxPenaltyPct  float64 `json:"maxPenaltyPct"`

	// Inline snapshot, used when no records server is named
	Episodes    []*Episode    `json:"episodes"`
	Assessments []*Assessment `json:"assessments"`
	RiskFacts   []*RiskFacts  `json:"riskFacts"`
}

type ComplianceReport struct {
	ClinicId        string                  `json:"clinicId"`
	AsOf            Date                    `json:"asOf"`
	Classifications []EpisodeClassification `json:"classifications"`
	Aggregate       PopulationAggregate     `json:"aggregate"`
}

/*************************************
 ***** Per-episode classification ****
 *************************************/

// Itemized exclusion reasons, reported for transparency alongside the
// program booleans.
const (
	ExclusionRevision      = "Revision procedure"
	ExclusionTrauma        = "Trauma/fracture case"
	ExclusionPartial       = "Partial/unicompartmental"
	ExclusionMalignancy    = "Malignancy at surgical site"
	ExclusionDeath         = "Death during stay"
	ExclusionTransferAcute = "Transfer to acute care"
	ExclusionDeviceRemoval = "Simultaneous device removal"
)

type ClinicalExclusions struct {
	Revision      bool
	Trauma        bool
	Partial       bool
	Malignancy    bool
	Death         bool
	TransferAcute bool
	DeviceRemoval bool
	Reasons       []string
	Any           bool
}

type ProgramACriteria struct {
	MedicareFFS      bool
	AgeFloor         bool
	Elective         bool
	Primary          bool
	CoveredProcedure bool
	NoExclusions     bool
	Evaluation       bool
}

type ProgramBCriteria struct {
	MedicareFFS      bool
	CoveredProcedure bool
	NoExclusions     bool
	Evaluation       bool
}

type EpisodeClassification struct {
	EpisodeId        string            `json:"episodeId"`
	ProgramAEligible bool              `json:"programAEligible"`
	ProgramBEligible bool              `json:"programBEligible"`
	Exclusions       []string          `json:"exclusions"`
	Matched          bool              `json:"matched"`
	SCB              *SCBVerdict       `json:"scb,omitempty"`
	ProgramA         *ProgramACriteria `json:"programA"`
	ProgramB         *ProgramBCriteria `json:"programB"`
}

// clinicalExclusions evaluates the exclusion set both regulatory
// programs share. Any single exclusion removes an episode from both
// programs regardless of payer or age, so this predicate exists once
// and both evaluators consume it.
func clinicalExclusions(e *Episode) *ClinicalExclusions {
	ce := ClinicalExclusions{}

	ce.Revision = e.ProcedureCategory == CategoryRevision ||
		e.ProcedureType == ProcedureRevisionTKA || e.ProcedureType == ProcedureRevisionTHA
	ce.Trauma = e.CaseType == CaseTrauma
	ce.Partial = e.IsPartial
	ce.Malignancy = e.Malignancy
	ce.Death = e.DischargeStatus == DischargeDeath
	ce.TransferAcute = e.DischargeStatus == DischargeTransferAcute
	ce.DeviceRemoval = e.DeviceRemoval

	ce.Reasons = []string{}
	if ce.Revision {
		ce.Reasons = append(ce.Reasons, ExclusionRevision)
	}
	if ce.Trauma {
		ce.Reasons = append(ce.Reasons, ExclusionTrauma)
	}
	if ce.Partial {
		ce.Reasons = append(ce.Reasons, ExclusionPartial)
	}
	if ce.Malignancy {
		ce.Reasons = append(ce.Reasons, ExclusionMalignancy)
	}
	if ce.Death {
		ce.Reasons = append(ce.Reasons, ExclusionDeath)
	}
	if ce.TransferAcute {
		ce.Reasons = append(ce.Reasons, ExclusionTransferAcute)
	}
	if ce.DeviceRemoval {
		ce.Reasons = append(ce.Reasons, ExclusionDeviceRemoval)
	}
	ce.Any = len(ce.Reasons) > 0

	return &ce
}

func ageAtSurgery(e *Episode) int {
	if e.DateOfBirth != nil && !e.DateOfBirth.IsZero() &&
		e.SurgeryDate != nil && !e.SurgeryDate.IsZero() {
		return yearsBetween(e.DateOfBirth.Time, e.SurgeryDate.Time)
	}
	return e.AgeAtSurgery
}

func programA(e *Episode, exclusions *ClinicalExclusions) *ProgramACriteria {
	/*
	 * Outcome-measure program:
	 *   Medicare fee-for-service payer
	 *   AND age >= 65 at surgery
	 *   AND elective, primary joint replacement (TKA or THA)
	 *   AND no clinical exclusion present
	 */
	pac := ProgramACriteria{}

	pac.MedicareFFS = e.Payer == PayerMedicareFFS
	pac.AgeFloor = ageAtSurgery(e) >= 65
	pac.Elective = e.CaseType == CaseElective
	pac.Primary = e.ProcedureCategory == CategoryPrimary
	pac.CoveredProcedure = e.ProcedureType == ProcedureTKA || e.ProcedureType == ProcedureTHA
	pac.NoExclusions = !exclusions.Any

	pac.Evaluation = pac.MedicareFFS && pac.AgeFloor && pac.Elective && pac.Primary &&
		pac.CoveredProcedure && pac.NoExclusions

	return &pac
}

func programB(e *Episode, exclusions *ClinicalExclusions) *ProgramBCriteria {
	/*
	 * Episode-payment program:
	 *   Medicare fee-for-service payer
	 *   AND covered lower-extremity procedure (TKA, THA, or TAA)
	 *   AND no clinical exclusion present
	 *
	 * No age floor. The exclusion set is identical to the
	 * outcome-measure program by definition.
	 */
	pbc := ProgramBCriteria{}

	pbc.MedicareFFS = e.Payer == PayerMedicareFFS
	pbc.CoveredProcedure = e.ProcedureType == ProcedureTKA || e.ProcedureType == ProcedureTHA ||
		e.ProcedureType == ProcedureTAA
	pbc.NoExclusions = !exclusions.Any

	pbc.Evaluation = pbc.MedicareFFS && pbc.CoveredProcedure && pbc.NoExclusions

	return &pbc
}

/**************************
 ******* Matching *********
 **************************/

// Matched-pair day windows around the surgery date.
const (
	preopLookbackDays = 90
	postopOpenDay     = 300
	postopCloseDay    = 425
	postopTargetDay   = 365
)

// matchEpisode finds the matched pre-op/post-op pair for an episode:
// one joint-instrument assessment in [surgery-90d, surgery] and one in
// [surgery+300d, surgery+425d], same instrument. Tie-breaks: the
// latest in-window pre-op, and the post-op closest to day 365.
func matchEpisode(e *Episode, assessments []*Assessment) (preop, postop *Assessment) {
	if e.SurgeryDate == nil || e.SurgeryDate.IsZero() {
		return nil, nil
	}

	surgery := e.SurgeryDate.Time
	instrument := jointInstrument(e.ProcedureType)

	preopOpen := addDays(surgery, -preopLookbackDays)
	postopOpen := addDays(surgery, postopOpenDay)
	postopClose := addDays(surgery, postopCloseDay)
	postopTarget := addDays(surgery, postopTargetDay)

	for _, a := range assessments {
		if a.EpisodeId != e.Id || a.Instrument != instrument {
			continue
		}
		if a.CollectionDate == nil || a.CollectionDate.IsZero() {
			continue
		}
		collected := a.CollectionDate.Time

		if withinDayWindow(collected, preopOpen, surgery) {
			if preop == nil || isAfterDay(collected, preop.CollectionDate.Time) {
				preop = a
			}
			continue
		}

		if withinDayWindow(collected, postopOpen, postopClose) {
			if postop == nil {
				postop = a
				continue
			}
			current := daysBetween(postopTarget, postop.CollectionDate.Time)
			candidate := daysBetween(postopTarget, collected)
			if abs(candidate) < abs(current) {
				postop = a
			}
		}
	}

	// A pair requires both sides; a lone assessment leaves the episode
	// unmatched regardless of other data
	if preop == nil || postop == nil {
		return nil, nil
	}
	return preop, postop
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// classifyEpisode runs both program evaluations and the pair match for
// a single episode snapshot.
func classifyEpisode(e *Episode, assessments []*Assessment) EpisodeClassification {
	exclusions := clinicalExclusions(e)
	pac := programA(e, exclusions)
	pbc := programB(e, exclusions)

	classification := EpisodeClassification{
		EpisodeId:        e.Id,
		ProgramAEligible: pac.Evaluation,
		ProgramBEligible: pbc.Evaluation,
		Exclusions:       exclusions.Reasons,
		ProgramA:         pac,
		ProgramB:         pbc,
	}

	preop, postop := matchEpisode(e, assessments)
	if preop != nil && postop != nil {
		classification.Matched = true
		verdict := evaluateSCBPair(preop, postop)
		classification.SCB = &verdict
	}

	return classification
}

/**************************
 ***** Aggregation ********
 **************************/

type PopulationAggregate struct {
	Episodes                int     `json:"episodes"`
	EligibleProgramA        int     `json:"eligibleProgramA"`
	EligibleProgramB        int     `json:"eligibleProgramB"`
	Matched                 int     `json:"matched"`
	MatchedRatePct          float64 `json:"matchedRatePct"`
	RiskCompletenessPct     float64 `json:"riskCompletenessPct"`
	MatchingCompletenessPct float64 `json:"matchingCompletenessPct"`
	SCBEvaluable            int     `json:"scbEvaluable"`
	SCBAchieved             int     `json:"scbAchieved"`
	SCBRatePct              float64 `json:"scbRatePct"`
	PenaltyPct              float64 `json:"penaltyPct"`
	DollarExposure          float64 `json:"dollarExposure"`
	Estimate                bool    `json:"estimate"`
}

func riskFactsComplete(rf *RiskFacts) bool {
	return rf != nil && rf.LowBackPain != nil && rf.HealthLiteracy != nil &&
		rf.OtherJointPainCount != nil && rf.ChronicNarcotics != nil
}

func matchingFactsComplete(e *Episode) bool {
	return e.DateOfBirth != nil && !e.DateOfBirth.IsZero() &&
		e.Sex != "" && e.PayerMemberId != "" && e.ProcedureCode != ""
}

// aggregatePopulation computes the population-level compliance rates
// over classified episodes. Denominators follow the outcome-measure
// program: matched rate and completeness rates are taken over
// program-A-eligible episodes, the SCB rate over matched episodes with
// an evaluable pair.
func aggregatePopulation(episodes []*Episode, classifications []EpisodeClassification,
	riskFacts map[string]*RiskFacts, params ReportParams) PopulationAggregate {

	agg := PopulationAggregate{Episodes: len(episodes), Estimate: true}

	byId := map[string]*Episode{}
	for _, e := range episodes {
		byId[e.Id] = e
	}

	var riskComplete, matchingComplete int
	for _, c := range classifications {
		if c.ProgramBEligible {
			agg.EligibleProgramB++
		}
		if !c.ProgramAEligible {
			continue
		}
		agg.EligibleProgramA++

		if c.Matched {
			agg.Matched++
		}
		if riskFactsComplete(riskFacts[c.EpisodeId]) {
			riskComplete++
		}
		if e := byId[c.EpisodeId]; e != nil && matchingFactsComplete(e) {
			matchingComplete++
		}
		if c.SCB != nil && c.SCB.Evaluable {
			agg.SCBEvaluable++
			if c.SCB.Achieved {
				agg.SCBAchieved++
			}
		}
	}

	matchedRate := ratePct(agg.Matched, agg.EligibleProgramA)
	agg.MatchedRatePct = round1(matchedRate)
	agg.RiskCompletenessPct = round1(ratePct(riskComplete, agg.EligibleProgramA))
	agg.MatchingCompletenessPct = round1(ratePct(matchingComplete, agg.EligibleProgramA))
	agg.SCBRatePct = round1(ratePct(agg.SCBAchieved, agg.SCBEvaluable))

	// Round the reported percentage, but feed the raw value into the
	// dollar estimate so rounding is applied once, at the end
	penalty := penaltyPct(matchedRate, params.MaxPenaltyPct)
	agg.PenaltyPct = round1(penalty)
	agg.DollarExposure = round2(float64(params.AnnualVolume) * params.AvgEpisodeCost * penalty / 100)

	return agg
}

// penaltyPct is a linear interpolation below the 50% matched-rate
// floor: ((50 - rate) / 50) * maxPenaltyPct, zero at or above 50%.
// This is a display estimate invented for dashboards, not a published
// CMS formula; never treat its output as authoritative financial
// guidance.
func penaltyPct(matchedRatePct, maxPenaltyPct float64) float64 {
	if matchedRatePct >= 50 {
		return 0
	}
	return ((50 - matchedRatePct) / 50) * maxPenaltyPct
}

func ratePct(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}

// Reported rates are percentages rounded to one decimal; dollar
// exposure to whole cents.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

/**************************
 ******* Handler **********
 **************************/

func eligibilityReport(c echo.Context) error {

	// Obtains raw http request
	r := c.Request()

	// Obtains http request context
	ctx := r.Context()

	body, err := parseReportRequest(r.Body)
	if err != nil {
		logger(ctx, err)
		return c.NoContent(http.StatusBadRequest)
	}

	headers := map[string]string{
		"Authorization":   "Bearer " + body.Authorization.AccessToken,
		"Accept":          "application/json",
		"Accept-Encoding": "gzip",
		"Content-Type":    "application/json",
	}

	// Remove access token from the retained copy to keep it out of logs
	body.Authorization.AccessToken = ""
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		logger(ctx, fmt.Errorf("failed to marshal report request: %v", err))
	}

	asOf := time.Now()
	if body.AsOf != nil && !body.AsOf.IsZero() {
		asOf = body.AsOf.Time
	}

	rr := ComplianceReportRequest{
		Data: &ReportData{
			RiskFacts: map[string]*RiskFacts{},
		},
		Context: ReportContext{
			RequestContext: ctx,
			ClinicId:       body.ClinicId,
			AsOf:           asOf,
			Body:           string(bodyBytes),
		},
		Params: ReportParams{
			AnnualVolume:   body.AnnualVolume,
			AvgEpisodeCost: body.AvgEpisodeCost,
			MaxPenaltyPct:  body.MaxPenaltyPct,
		},
		Headers: headers,
		Host:    body.RecordsServer,
	}

	// Regulation-year defaults come from config when the request is
	// silent
	if rr.Params.MaxPenaltyPct == 0 {
		rr.Params.MaxPenaltyPct = config.MaxPenaltyPct
	}
	if rr.Params.AvgEpisodeCost == 0 {
		rr.Params.AvgEpisodeCost = config.AvgEpisodeCost
	}

	// Load the snapshot: either supplied inline or fetched from the
	// named records server
	if rr.Host != "" {
		if err := rr.getData(headers); err != nil {
			// Reporting of errors is handled in the individual functions so no further reporting done here.
			return c.NoContent(http.StatusInternalServerError)
		}
	} else {
		// JSON nulls inside the arrays decode to nil pointers; drop
		// them so the classifier only ever sees concrete records
		for _, e := range body.Episodes {
			if e == nil {
				continue
			}
			rr.Data.Episodes = append(rr.Data.Episodes, e)
		}
		for _, a := range body.Assessments {
			if a == nil {
				continue
			}
			rr.Data.Assessments = append(rr.Data.Assessments, a)
		}
		for _, rf := range body.RiskFacts {
			if rf == nil {
				continue
			}
			rr.Data.RiskFacts[rf.EpisodeId] = rf
		}
	}

	report := rr.evaluate()

	// Log evaluation results
	rr.sendWebLog(fmt.Sprintf("episodes=%d eligibleA=%d eligibleB=%d matchedRate=%.1f penaltyPct=%.1f",
		report.Aggregate.Episodes, report.Aggregate.EligibleProgramA,
		report.Aggregate.EligibleProgramB, report.Aggregate.MatchedRatePct,
		report.Aggregate.PenaltyPct))

	return c.JSON(http.StatusOK, report)
}

// evaluate classifies every episode in the snapshot and folds the
// population aggregate. Pure over the loaded data; safe to call from
// concurrent report requests since each carries its own snapshot.
func (rr *ComplianceReportRequest) evaluate() ComplianceReport {
	span, _ := apm.StartSpan(rr.Context.RequestContext, "Evaluate Compliance", "Classifier")
	defer span.End()

	classifications := make([]EpisodeClassification, 0, len(rr.Data.Episodes))
	for _, e := range rr.Data.Episodes {
		classifications = append(classifications, classifyEpisode(e, rr.Data.Assessments))
	}

	return ComplianceReport{
		ClinicId:        rr.Context.ClinicId,
		AsOf:            Date{rr.Context.AsOf},
		Classifications: classifications,
		Aggregate:       aggregatePopulation(rr.Data.Episodes, classifications, rr.Data.RiskFacts, rr.Params),
	}
}

func (rr *ComplianceReportRequest) getData(headers map[string]string) error {
	// Create elastic span
	span, _ := apm.StartSpan(rr.Context.RequestContext, "Get and Parse Data", "Combined")
	defer span.End()

	// Wait group for "top-level" requests
	var wg sync.WaitGroup
	wg.Add(3)

	// One slot per collection fetched from the records service
	errCh := make(chan error, 3)

	go rr.getEpisodes(&wg, errCh, headers)
	go rr.getAssessments(&wg, errCh, headers)
	go rr.getRiskFacts(&wg, errCh, headers)

	// Wait for data before proceeding and close error channel
	go func() {
		wg.Wait()
		close(errCh)
	}()

	// Check for errors as they occur
	for err := range errCh {
		if err != nil {
			return err
		}
	}

	return nil
}
