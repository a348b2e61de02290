package reporting

import (
	"time"

	"soapbox/internal/calls"
)

// TimeRange filters by creation time. A zero range matches everything.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) zero() bool { return r.From.IsZero() && r.To.IsZero() }

func (r TimeRange) contains(t time.Time) bool {
	if r.zero() {
		return true
	}
	return !t.Before(r.From) && t.Before(r.To)
}

type CampaignSummaryRequest struct {
	CampaignID string    `json:"campaign_id"`
	Range      TimeRange `json:"range"`
}

// CampaignSummary aggregates the calls and results of one campaign.
type CampaignSummary struct {
	CampaignID string `json:"campaign_id"`

	TotalCalls int                     `json:"total_calls"`
	LiveCalls  int                     `json:"live_calls"`
	ByState    map[calls.CallState]int `json:"by_state"`

	// Durations cover ended calls only.
	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// ConnectionRate is completed calls over ended calls.
	ConnectionRate float64 `json:"connection_rate"`

	TotalResults int                         `json:"total_results"`
	ByOutcome    map[calls.ResultOutcome]int `json:"by_outcome"`
}

type AnswerCount struct {
	Answer string `json:"answer"`
	Count  int    `json:"count"`
}

// QuestionTally counts the answers recorded for one question of a campaign.
type QuestionTally struct {
	CampaignID string        `json:"campaign_id"`
	QuestionID string        `json:"question_id"`
	Responses  int           `json:"responses"`
	Answers    []AnswerCount `json:"answers"`
}
