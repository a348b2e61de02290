package campaigns

import (
	"encoding/json"
	"fmt"

	"soapbox/internal/access"
)

func decode(r Record, want Kind, dst any) error {
	if r.Kind != want {
		return fmt.Errorf("campaigns: record %s is a %s, not a %s", r.ID, r.Kind, want)
	}
	if len(r.Content) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Content, dst); err != nil {
		return fmt.Errorf("campaigns: decode %s %s: %w", want, r.ID, err)
	}
	return nil
}

func sharingOf(r Record) access.Sharing {
	if r.Sharing == nil {
		return access.Sharing{}
	}
	return r.Sharing.Clone()
}

func toPrompt(r Record) (Prompt, error) {
	var c PromptContent
	if err := decode(r, KindPrompt, &c); err != nil {
		return Prompt{}, err
	}
	return Prompt{Header: r.Header, Sharing: sharingOf(r), PromptContent: c}, nil
}

func toQuestion(r Record) (Question, error) {
	var c QuestionContent
	if err := decode(r, KindQuestion, &c); err != nil {
		return Question{}, err
	}
	return Question{Header: r.Header, QuestionContent: c}, nil
}

func toScript(r Record) (Script, error) {
	var c ScriptContent
	if err := decode(r, KindScript, &c); err != nil {
		return Script{}, err
	}
	return Script{Header: r.Header, Sharing: sharingOf(r), ScriptContent: c}, nil
}

func toCampaign(r Record) (Campaign, error) {
	var c CampaignContent
	if err := decode(r, KindCampaign, &c); err != nil {
		return Campaign{}, err
	}
	return Campaign{Header: r.Header, Sharing: sharingOf(r), CampaignContent: c}, nil
}
