package reporting

import (
	"context"
	"errors"
	"sort"
	"strings"

	"soapbox/internal/access"
	"soapbox/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Source reads the call records of a campaign with the caller's permissions.
// calls.Service satisfies it.
type Source interface {
	ListCalls(ctx context.Context, sub access.Subject, campaignID string) ([]calls.Call, error)
	ListResults(ctx context.Context, sub access.Subject, campaignID string) ([]calls.Result, error)
}

type Service struct {
	src Source
}

func NewService(src Source) *Service { return &Service{src: src} }

func validRange(r TimeRange) bool {
	if r.zero() {
		return true
	}
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) CampaignSummary(ctx context.Context, sub access.Subject, req CampaignSummaryRequest) (CampaignSummary, error) {
	if req.CampaignID == "" || !validRange(req.Range) {
		return CampaignSummary{}, ErrInvalidRequest
	}
	if s.src == nil {
		return CampaignSummary{}, errors.New("reporting: source not configured")
	}

	rows, err := s.src.ListCalls(ctx, sub, req.CampaignID)
	if err != nil {
		return CampaignSummary{}, err
	}
	results, err := s.src.ListResults(ctx, sub, req.CampaignID)
	if err != nil {
		return CampaignSummary{}, err
	}

	out := CampaignSummary{
		CampaignID: req.CampaignID,
		ByState:    map[calls.CallState]int{},
		ByOutcome:  map[calls.ResultOutcome]int{},
	}
	var ended int
	for _, c := range rows {
		if !req.Range.contains(c.CreatedAt) {
			continue
		}
		out.TotalCalls++
		out.ByState[c.State]++
		if !c.State.Terminal() {
			out.LiveCalls++
			continue
		}
		ended++
		out.TotalDurationSeconds += c.DurationSeconds
	}
	// Durations cover ended calls only; a live call's duration is still moving.
	if ended > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / ended
		out.ConnectionRate = float64(out.ByState[calls.StateCompleted]) / float64(ended)
	}

	for _, r := range results {
		if !req.Range.contains(r.RecordedAt) {
			continue
		}
		out.TotalResults++
		out.ByOutcome[r.Outcome]++
	}
	return out, nil
}

// QuestionTally counts distinct answers, most frequent first. Answers are
// compared after trimming; empty answers count as responses but not as answers.
func (s *Service) QuestionTally(ctx context.Context, sub access.Subject, campaignID, questionID string) (QuestionTally, error) {
	if campaignID == "" || questionID == "" {
		return QuestionTally{}, ErrInvalidRequest
	}
	if s.src == nil {
		return QuestionTally{}, errors.New("reporting: source not configured")
	}
	results, err := s.src.ListResults(ctx, sub, campaignID)
	if err != nil {
		return QuestionTally{}, err
	}

	out := QuestionTally{CampaignID: campaignID, QuestionID: questionID, Answers: []AnswerCount{}}
	counts := map[string]int{}
	for _, r := range results {
		if r.QuestionID != questionID {
			continue
		}
		out.Responses++
		if a := strings.TrimSpace(r.Answer); a != "" {
			counts[a]++
		}
	}
	for a, n := range counts {
		out.Answers = append(out.Answers, AnswerCount{Answer: a, Count: n})
	}
	sort.Slice(out.Answers, func(i, j int) bool {
		if out.Answers[i].Count != out.Answers[j].Count {
			return out.Answers[i].Count > out.Answers[j].Count
		}
		return out.Answers[i].Answer < out.Answers[j].Answer
	})
	return out, nil
}
