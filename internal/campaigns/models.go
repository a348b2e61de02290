package campaigns

import (
	"encoding/json"

	"soapbox/internal/access"
)

// Kind names an entity kind managed by this package. Values are stored in owned_objects.kind.
type Kind string

const (
	KindScript   Kind = "script"
	KindQuestion Kind = "question"
	KindPrompt   Kind = "prompt"
	KindCampaign Kind = "campaign"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindScript, KindQuestion, KindPrompt, KindCampaign:
		return Kind(s), true
	default:
		return "", false
	}
}

// Shareable kinds carry allow-lists. Questions are owned but not shareable.
func (k Kind) Shareable() bool { return k != KindQuestion }

type QuestionType string

const (
	QuestionCheckbox  QuestionType = "CHECKBOX"
	QuestionDropdown  QuestionType = "DROPDOWN"
	QuestionRadio     QuestionType = "RADIO"
	QuestionShortForm QuestionType = "SHORTFORM"
	QuestionLongForm  QuestionType = "LONGFORM"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionCheckbox, QuestionDropdown, QuestionRadio, QuestionShortForm, QuestionLongForm:
		return true
	default:
		return false
	}
}

// Choice types need at least one prompt to choose from.
func (t QuestionType) Choice() bool {
	return t == QuestionCheckbox || t == QuestionDropdown || t == QuestionRadio
}

// Header is the identity and ownership shared by every entity in this package.
type Header struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	// Name is the default ordering key.
	Name string `json:"name,omitempty"`
	access.Ownership
}

type PromptContent struct {
	Text string `json:"text"`
}

// Prompt is a single selectable or fillable option under a Question.
type Prompt struct {
	Header
	access.Sharing
	PromptContent
}

type QuestionContent struct {
	Text string       `json:"text"`
	Type QuestionType `json:"type"`
	// PromptIDs is ordered.
	PromptIDs []string `json:"prompt_ids"`
}

type Question struct {
	Header
	QuestionContent
}

type ScriptContent struct {
	Description string `json:"description,omitempty"`
	// QuestionIDs is ordered.
	QuestionIDs []string `json:"question_ids"`
}

type Script struct {
	Header
	access.Sharing
	ScriptContent
}

type CampaignContent struct {
	Description string   `json:"description,omitempty"`
	ScriptID    string   `json:"script_id"`
	RegionIDs   []string `json:"region_ids"`
}

// Campaign is one phone-banking effort: a script read to numbers in the target regions.
type Campaign struct {
	Header
	access.Sharing
	CampaignContent
}

func (p Prompt) AccessPolicy() access.Policy {
	sh := p.Sharing
	return access.Policy{Ownership: p.Ownership, Sharing: &sh}
}

func (q Question) AccessPolicy() access.Policy { return access.Policy{Ownership: q.Ownership} }

func (s Script) AccessPolicy() access.Policy {
	sh := s.Sharing
	return access.Policy{Ownership: s.Ownership, Sharing: &sh}
}

func (c Campaign) AccessPolicy() access.Policy {
	sh := c.Sharing
	return access.Policy{Ownership: c.Ownership, Sharing: &sh}
}

// Record is the storage shape of every kind: header and sharing as columns,
// kind-specific content as a JSON document.
type Record struct {
	Header
	// Sharing is nil for kinds that are not shareable.
	Sharing *access.Sharing
	Content json.RawMessage
}

func (r Record) AccessPolicy() access.Policy {
	return access.Policy{Ownership: r.Ownership, Sharing: r.Sharing}
}

// Placement says where a new object lives.
type Placement struct {
	Name       string            `json:"name"`
	GroupID    string            `json:"group_id"`
	Visibility access.Visibility `json:"visibility,omitempty"`
}

// ListOptions filters List calls. Inactive objects are never listed.
type ListOptions struct {
	GroupID string
	OwnerID string
	Limit   int
}
