package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyReportRequest() *ComplianceReportRequest {
	return &ComplianceReportRequest{
		Data: &ReportData{RiskFacts: map[string]*RiskFacts{}},
	}
}

func TestProcessRecordsResponseCollection(t *testing.T) {
	rr := emptyReportRequest()

	payload := `{
		"recordType": "Collection",
		"total": 3,
		"entries": [
			{"recordType": "Episode", "id": "ep-1", "patientId": "pat-1",
			 "procedureType": "TKA", "surgeryDate": "2025-06-01",
			 "payer": "medicare_ffs", "procedureCategory": "primary",
			 "caseType": "elective"},
			{"recordType": "Assessment", "id": "a-1", "episodeId": "ep-1",
			 "instrument": "koos_jr", "collectionDate": "2025-05-20T10:30:00Z",
			 "rawSum": 15},
			{"recordType": "RiskFacts", "episodeId": "ep-1",
			 "lowBackPain": true, "healthLiteracy": 2,
			 "otherJointPainCount": 0, "chronicNarcotics": false}
		]
	}`

	require.NoError(t, rr.processRecordsResponse([]byte(payload)))

	require.Len(t, rr.Data.Episodes, 1)
	episode := rr.Data.Episodes[0]
	assert.Equal(t, "ep-1", episode.Id)
	assert.Equal(t, ProcedureTKA, episode.ProcedureType)
	require.NotNil(t, episode.SurgeryDate)
	assert.True(t, episode.SurgeryDate.Equal(newDate(2025, 6, 1).Time))

	require.Len(t, rr.Data.Assessments, 1)
	assessment := rr.Data.Assessments[0]
	assert.Equal(t, InstrumentKoosJr, assessment.Instrument)
	require.NotNil(t, assessment.RawSum)
	assert.Equal(t, 15, *assessment.RawSum)

	facts := rr.Data.RiskFacts["ep-1"]
	require.NotNil(t, facts)
	require.NotNil(t, facts.OtherJointPainCount)
	assert.Equal(t, 0, *facts.OtherJointPainCount)
	assert.True(t, riskFactsComplete(facts))
}

func TestProcessRecordsResponseSingleRecord(t *testing.T) {
	rr := emptyReportRequest()

	payload := `{"recordType": "Episode", "id": "ep-9", "procedureType": "THA"}`
	require.NoError(t, rr.processRecordsResponse([]byte(payload)))

	require.Len(t, rr.Data.Episodes, 1)
	assert.Equal(t, "ep-9", rr.Data.Episodes[0].Id)
}

func TestProcessRecordsResponseIgnoresUnknownTypes(t *testing.T) {
	rr := emptyReportRequest()

	payload := `{
		"recordType": "Collection",
		"total": 2,
		"entries": [
			{"recordType": "Medication", "id": "m-1"},
			{"recordType": "Episode", "id": "ep-1"}
		]
	}`

	require.NoError(t, rr.processRecordsResponse([]byte(payload)))
	assert.Len(t, rr.Data.Episodes, 1)
	assert.Empty(t, rr.Data.Assessments)
}

func TestProcessRecordsResponseBadJSON(t *testing.T) {
	rr := emptyReportRequest()
	assert.Error(t, rr.processRecordsResponse([]byte(`not json`)))
}

func TestParseRecordNullDates(t *testing.T) {
	rr := emptyReportRequest()

	payload := `{"recordType": "Episode", "id": "ep-1", "surgeryDate": null, "dateOfBirth": ""}`
	require.NoError(t, rr.parseRecord([]byte(payload)))

	episode := rr.Data.Episodes[0]
	assert.Nil(t, episode.SurgeryDate)
	require.NotNil(t, episode.DateOfBirth)
	assert.True(t, episode.DateOfBirth.IsZero())
}

func TestParseReportRequest(t *testing.T) {
	payload := `{
		"recordsServer": "https://records.example.org",
		"authorization": {"access_token": "tok-123"},
		"clinicId": "clinic-7",
		"asOf": "2025-09-01",
		"annualVolume": 250,
		"maxPenaltyPct": 5,
		"episodes": [{"id": "ep-1"}]
	}`

	body, err := parseReportRequest(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "https://records.example.org", body.RecordsServer)
	assert.Equal(t, "tok-123", body.Authorization.AccessToken)
	assert.Equal(t, "clinic-7", body.ClinicId)
	assert.Equal(t, 250, body.AnnualVolume)
	assert.Equal(t, 5.0, body.MaxPenaltyPct)
	require.NotNil(t, body.AsOf)
	assert.True(t, body.AsOf.Equal(newDate(2025, 9, 1).Time))
	require.Len(t, body.Episodes, 1)
	assert.Equal(t, "ep-1", body.Episodes[0].Id)

	_, err = parseReportRequest(strings.NewReader(`{`))
	assert.Error(t, err)
}
