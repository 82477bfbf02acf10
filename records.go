package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"

	"go.elastic.co/apm"
)

// Simple struct to identify recordType
type Record struct {
	RecordType string `json:"recordType"`
}

// Collection is the list envelope the records service wraps multi-record
// responses in.
type Collection struct {
	RecordType string            `json:"recordType"`
	Total      int               `json:"total"`
	Entries    []json.RawMessage `json:"entries"`
}

func parseReportRequest(body io.Reader) (ReportRequestBody, error) {

	reqBytes, err := io.ReadAll(body)
	if err != nil {
		return ReportRequestBody{}, err
	}

	// Unmarshal response into struct
	var reportRequest ReportRequestBody
	if err := json.Unmarshal(reqBytes, &reportRequest); err != nil {
		return ReportRequestBody{}, fmt.Errorf("unable to unmarshal report request: %v", err)
	}

	return reportRequest, nil
}

func (rr *ComplianceReportRequest) getEpisodes(wg *sync.WaitGroup, errCh chan<- error, headers map[string]string) {
	defer wg.Done()

	// Create span
	span, _ := apm.StartSpan(rr.Context.RequestContext, "Get and Parse Data", "Episodes")
	defer span.End()

	queryParams := url.Values{}
	queryParams.Add("clinic_id", rr.Context.ClinicId)

	// Construct request and add to list
	requestList := []Request{
		{
			Method:      "GET",
			URL:         rr.Host + "/episodes",
			QueryParams: queryParams,
			Body:        nil,
		},
	}

	// Send requests and process responses
	if err := rr.sendAndProcess(requestList, headers); err != nil {
		errCh <- err
		return
	}

	errCh <- nil
}

func (rr *ComplianceReportRequest) getAssessments(wg *sync.WaitGroup, errCh chan<- error, headers map[string]string) {
	defer wg.Done()

	// Create span
	span, _ := apm.StartSpan(rr.Context.RequestContext, "Get and Parse Data", "Assessments")
	defer span.End()

	queryParams := url.Values{}
	queryParams.Add("clinic_id", rr.Context.ClinicId)

	requestList := []Request{
		{
			Method:      "GET",
			URL:         rr.Host + "/pro-assessments",
			QueryParams: queryParams,
			Body:        nil,
		},
	}

	if err := rr.sendAndProcess(requestList, headers); err != nil {
		errCh <- err
		return
	}

	errCh <- nil
}

func (rr *ComplianceReportRequest) getRiskFacts(wg *sync.WaitGroup, errCh chan<- error, headers map[string]string) {
	defer wg.Done()

	// Create span
	span, _ := apm.StartSpan(rr.Context.RequestContext, "Get and Parse Data", "RiskFacts")
	defer span.End()

	queryParams := url.Values{}
	queryParams.Add("clinic_id", rr.Context.ClinicId)

	requestList := []Request{
		{
			Method:      "GET",
			URL:         rr.Host + "/risk-facts",
			QueryParams: queryParams,
			Body:        nil,
		},
	}

	if err := rr.sendAndProcess(requestList, headers); err != nil {
		errCh <- err
		return
	}

	errCh <- nil
}

func (rr *ComplianceReportRequest) processRecordsResponse(data []byte) error {
	// Perform lock to avoid race conditions on shared data struct
	// If performance becomes a major issue, can further nest the structs so each record type
	// is operating on it's own struct
	rr.mu.Lock()
	defer rr.mu.Unlock()

	// Unmarshal data into struct
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("failed to decode recordType: %w", err)
	}

	// Check if it's a Collection or a single record
	switch record.RecordType {
	case "Collection":
		return rr.parseCollection(data)

	default:
		// Assume a single record
		return rr.parseRecord(data)
	}
}

func (rr *ComplianceReportRequest) parseCollection(data []byte) error {

	// Unmarshal top-level response information
	var collection Collection
	if err := json.Unmarshal(data, &collection); err != nil {
		return fmt.Errorf("error unmarshalling collection: %s", err)
	}

	// Send individual entries to parse individually
	for _, entry := range collection.Entries {
		if err := rr.parseRecord(entry); err != nil {
			return err
		}
	}

	return nil
}

func (rr *ComplianceReportRequest) parseRecord(data []byte) error {

	// Unmarshal data into struct
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("failed to decode recordType: %w", err)
	}

	// Unmarshal based on record type
	switch record.RecordType {
	case "Episode":
		var episode Episode
		if err := json.Unmarshal(data, &episode); err != nil {
			return fmt.Errorf("error unmarshalling Episode: %s:%s", err, string(data))
		}
		rr.Data.Episodes = append(rr.Data.Episodes, &episode)

	case "Assessment":
		var assessment Assessment
		if err := json.Unmarshal(data, &assessment); err != nil {
			return fmt.Errorf("error unmarshalling Assessment: %s:%s", err, string(data))
		}
		rr.Data.Assessments = append(rr.Data.Assessments, &assessment)

	case "RiskFacts":
		var riskFacts RiskFacts
		if err := json.Unmarshal(data, &riskFacts); err != nil {
			return fmt.Errorf("error unmarshalling RiskFacts: %s:%s", err, string(data))
		}
		rr.Data.RiskFacts[riskFacts.EpisodeId] = &riskFacts

	default:
		// Ignore record types the engine does not consume
	}

	return nil
}
