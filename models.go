package main

import (
	"fmt"
	"time"
)

/**************************
 ***** Engine Services ****
 **************************/
type ServiceResponse struct {
	Services []Service `json:"services"`
}

type Service struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	Id                string `json:"id"`
	Path              string `json:"path"`
	UsageRequirements string `json:"usageRequirements"`
}

/**************************
 ****** Instruments *******
 **************************/
const (
	InstrumentKoosJr   = "koos_jr"
	InstrumentHoosJr   = "hoos_jr"
	InstrumentPromis10 = "promis_10"
)

/**************************
 ****** Episode facts *****
 **************************/
const (
	ProcedureTKA         = "TKA"
	ProcedureTHA         = "THA"
	ProcedureTAA         = "TAA"
	ProcedureRevisionTKA = "Revision TKA"
	ProcedureRevisionTHA = "Revision THA"

	PayerMedicareFFS       = "medicare_ffs"
	PayerMedicareAdvantage = "medicare_advantage"
	PayerCommercial        = "commercial"

	CategoryPrimary  = "primary"
	CategoryRevision = "revision"

	CaseElective = "elective"
	CaseTrauma   = "trauma"

	DischargeHome          = "home"
	DischargeSNF           = "snf"
	DischargeRehab         = "rehab"
	DischargeDeath         = "death"
	DischargeTransferAcute = "transfer_acute"

	EpisodeActive       = "active"
	EpisodeClosed       = "closed"
	EpisodeNotIndicated = "not_indicated"
)

// Episode is one surgical procedure instance for a patient, as supplied
// by the records service. Exclusion flags are staff-entered clinical
// facts; the engine treats the record as an immutable snapshot.
type Episode struct {
	Id                string `json:"id"`
	PatientId         string `json:"patientId"`
	ClinicId          string `json:"clinicId"`
	SurgeonId         string `json:"surgeonId"`
	ProcedureType     string `json:"procedureType"`
	SurgeryDate       *Date  `json:"surgeryDate"`
	Payer             string `json:"payer"`
	ProcedureCategory string `json:"procedureCategory"`
	CaseType          string `json:"caseType"`
	IsPartial         bool   `json:"isPartial"`
	Malignancy        bool   `json:"malignancy"`
	DischargeStatus   string `json:"dischargeStatus"`
	DeviceRemoval     bool   `json:"deviceRemoval"`
	Status            string `json:"status"`

	// Identity/matching facts used for completeness scoring
	DateOfBirth   *Date  `json:"dateOfBirth"`
	Sex           string `json:"sex"`
	PayerMemberId string `json:"payerMemberId"`
	ProcedureCode string `json:"procedureCode"`

	// Fallback when no date of birth is on file
	AgeAtSurgery int `json:"ageAtSurgery"`
}

/**************************
 ****** Assessments *******
 **************************/
const (
	PeriodPreOp = "preop"
)

// Assessment is one instrument administration. Either RawSum or
// IntervalScore is populated; RawSum takes precedence and is converted
// through the published crosswalk before use.
type Assessment struct {
	Id             string   `json:"id"`
	PatientId      string   `json:"patientId"`
	EpisodeId      string   `json:"episodeId"`
	Instrument     string   `json:"instrument"`
	CollectionDate *Date    `json:"collectionDate"`
	RawSum         *int     `json:"rawSum"`
	IntervalScore  *float64 `json:"intervalScore"`
	Period         string   `json:"period"`
}

/**************************
 ****** Obligations *******
 **************************/
const (
	Window6Week  = "6-week"
	Window3Month = "3-month"
	Window1Year  = "1-year"

	ObligationPending   = "pending"
	ObligationCompleted = "completed"
	ObligationOverdue   = "overdue"
	ObligationSkipped   = "skipped"
)

// Obligation is one required PRO collection for an episode. Obligations
// are keyed by (episode, window, instrument) and are only ever
// transitioned, never deleted.
type Obligation struct {
	Id           string `json:"id"`
	EpisodeId    string `json:"episodeId"`
	Instrument   string `json:"instrument"`
	Window       string `json:"window"`
	DueDate      Date   `json:"dueDate"`
	WindowOpen   Date   `json:"windowOpen"`
	WindowClose  Date   `json:"windowClose"`
	Status       string `json:"status"`
	AssessmentId string `json:"assessmentId,omitempty"`
}

/**************************
 ******* Risk facts *******
 **************************/

// RiskFacts is the per-episode snapshot of the four CMS risk variables.
// Pointers distinguish "not collected" from a recorded zero/false;
// the classifier only scores completeness, never clinical content.
type RiskFacts struct {
	EpisodeId           string `json:"episodeId"`
	LowBackPain         *bool  `json:"lowBackPain"`
	HealthLiteracy      *int   `json:"healthLiteracy"`
	OtherJointPainCount *int   `json:"otherJointPainCount"`
	ChronicNarcotics    *bool  `json:"chronicNarcotics"`
}

/**************************
 ****** RPM records *******
 **************************/

// TimeLogEntry is one discrete clinical-review interval. Immutable once
// recorded; the evaluator only aggregates.
type TimeLogEntry struct {
	Id              string `json:"id"`
	PatientId       string `json:"patientId"`
	EpisodeId       string `json:"episodeId"`
	UserId          string `json:"userId"`
	StartedAt       Date   `json:"startedAt"`
	EndedAt         Date   `json:"endedAt"`
	DurationSeconds int    `json:"durationSeconds"`
	ActivityType    string `json:"activityType"`
	BillingMonth    string `json:"billingMonth"`
}

// Checkin is the day-granularity fact the RPM day-count gate consumes.
type Checkin struct {
	PatientId string `json:"patientId"`
	Date      Date   `json:"date"`
}

/********************************
 ********** App Config **********
 ********************************/

// Config carries the regulation-year parameters. MaxPenaltyPct changes
// by APU year and must never be hardcoded into the penalty math.
type Config struct {
	MaxPenaltyPct  float64 `json:"maxPenaltyPct"`
	AvgEpisodeCost float64 `json:"avgEpisodeCost"`
}

/*********************************
 ******** Date JSON type *********
 *********************************/

// Date is a calendar-date wrapper that accepts the formats the records
// service emits and marshals back to plain YYYY-MM-DD.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {

	dateStr := string(data)
	if dateStr == "null" {
		return nil
	}

	// Remove quotes around the date string
	if len(dateStr) < 2 {
		return fmt.Errorf("error parsing date: %q", dateStr)
	}
	dateStr = dateStr[1 : len(dateStr)-1]
	if dateStr == "" {
		return nil
	}

	// Parse string
	parsedTime, err := parseDate(dateStr)
	if err != nil {
		return fmt.Errorf("error parsing date: %v", err)
	}

	// Set parsed time to Date struct
	d.Time = parsedTime
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

func newDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}
