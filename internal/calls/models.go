package calls

import (
	"time"

	"soapbox/internal/access"

	"github.com/paulmach/orb"
)

// CallState is the lifecycle of an outbound call as reported by the telephony provider.
//
//	queued -> ringing -> {in-progress | busy | failed | no-answer | canceled}
//	in-progress -> completed
//	queued -> {canceled | failed}   (dropped before it rang)
//
// Terminal states never change again.
type CallState string

const (
	StateQueued     CallState = "queued"
	StateRinging    CallState = "ringing"
	StateInProgress CallState = "in-progress"
	StateCompleted  CallState = "completed"
	StateBusy       CallState = "busy"
	StateFailed     CallState = "failed"
	StateNoAnswer   CallState = "no-answer"
	StateCanceled   CallState = "canceled"
)

var transitions = map[CallState][]CallState{
	StateQueued:     {StateRinging, StateCanceled, StateFailed},
	StateRinging:    {StateInProgress, StateBusy, StateFailed, StateNoAnswer, StateCanceled},
	StateInProgress: {StateCompleted},
}

// Storage codes. Keep these stable; they are stored in single-character columns.
var stateCodes = map[CallState]string{
	StateQueued:     "Q",
	StateRinging:    "R",
	StateInProgress: "I",
	StateCompleted:  "C",
	StateBusy:       "B",
	StateFailed:     "F",
	StateNoAnswer:   "N",
	StateCanceled:   "X",
}

func ParseCallState(s string) (CallState, bool) {
	st := CallState(s)
	_, ok := stateCodes[st]
	return st, ok
}

func (s CallState) Terminal() bool {
	switch s {
	case StateCompleted, StateBusy, StateFailed, StateNoAnswer, StateCanceled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether to is a legal next state. Staying in place is not a transition.
func (s CallState) CanTransition(to CallState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CallState) Code() string { return stateCodes[s] }

func callStateFromCode(c string) CallState {
	for st, code := range stateCodes {
		if code == c {
			return st
		}
	}
	return ""
}

// ResultOutcome is the recorded outcome of a call attempt. It has every CallState
// value plus "uncalled", the default before a call is placed.
type ResultOutcome string

const OutcomeUncalled ResultOutcome = "uncalled"

func ParseOutcome(s string) (ResultOutcome, bool) {
	if ResultOutcome(s) == OutcomeUncalled {
		return OutcomeUncalled, true
	}
	if st, ok := ParseCallState(s); ok {
		return ResultOutcome(st), true
	}
	return "", false
}

// OutcomeOf maps a call state to the outcome recorded for it. An empty state is uncalled.
func OutcomeOf(s CallState) ResultOutcome {
	if s == "" {
		return OutcomeUncalled
	}
	return ResultOutcome(s)
}

func (o ResultOutcome) Code() string {
	if o == OutcomeUncalled {
		return "U"
	}
	return CallState(o).Code()
}

func outcomeFromCode(c string) ResultOutcome {
	if c == "U" {
		return OutcomeUncalled
	}
	return OutcomeOf(callStateFromCode(c))
}

// Pooling says whether a number is free for new calls.
type Pooling string

const (
	PoolingIn  Pooling = "in-pool"
	PoolingOut Pooling = "out-of-pool"
)

func (p Pooling) Code() string {
	if p == PoolingOut {
		return "O"
	}
	return "I"
}

func poolingFromCode(c string) Pooling {
	if c == "O" {
		return PoolingOut
	}
	return PoolingIn
}

// Number is an outbound caller-ID number owned by a user and lent to calls through the pool.
//
// Invariants:
// - Pooling is out-of-pool exactly while some call using the number is not terminal.
// - State is the last call state observed on the line; empty until the first call.
type Number struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	access.Ownership
	State   CallState `json:"state,omitempty"`
	Pooling Pooling   `json:"pooling"`
}

func (n Number) AccessPolicy() access.Policy { return access.Policy{Ownership: n.Ownership} }

type NewNumber struct {
	Number     string            `json:"number"`
	GroupID    string            `json:"group_id"`
	Visibility access.Visibility `json:"visibility,omitempty"`
}

// Call is one dial attempt of a campaign from a pooled number to a destination.
type Call struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	NumberID   string `json:"number_id"`
	ToNumber   string `json:"to_number"`

	State           CallState `json:"state"`
	DurationSeconds int       `json:"duration"`

	// ProviderCallID is the telephony provider's id (Twilio CallSid), set by dispatch.
	ProviderCallID string `json:"provider_call_id,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ResultIDs []string `json:"result_ids"`
}

type NewCall struct {
	CampaignID string `json:"campaign_id"`
	NumberID   string `json:"number_id"`
	ToNumber   string `json:"to_number"`
}

// StateUpdate is a state report for a call. Duration and ProviderCallID are applied when set.
type StateUpdate struct {
	State           CallState `json:"state"`
	DurationSeconds int       `json:"duration"`
	ProviderCallID  string    `json:"provider_call_id,omitempty"`
}

// LatLon is a best-effort geocode of a call destination.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func latLonOf(p orb.Point) *LatLon { return &LatLon{Lat: p.Lat(), Lon: p.Lon()} }

// Result is one row of outcome/survey data for a call.
type Result struct {
	ID string `json:"id"`
	access.Ownership

	Outcome    ResultOutcome `json:"outcome"`
	CampaignID string        `json:"campaign_id"`
	CallID     string        `json:"call_id,omitempty"`
	NumberID   string        `json:"number_id"`
	ToNumber   string        `json:"to_number"`
	Location   *LatLon       `json:"latlon,omitempty"`
	QuestionID string        `json:"question_id"`
	Answer     string        `json:"answer"`

	RecordedAt time.Time `json:"recorded_at"`
}

func (r Result) AccessPolicy() access.Policy { return access.Policy{Ownership: r.Ownership} }

type NewResult struct {
	CallID     string  `json:"call_id"`
	QuestionID string  `json:"question_id"`
	Answer     string  `json:"answer"`
	Location   *LatLon `json:"latlon,omitempty"`
}

type ListOptions struct {
	GroupID string
	Limit   int
}
