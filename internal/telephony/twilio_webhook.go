package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"soapbox/internal/calls"
)

// TwilioStatusForm captures the subset of status callback fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
type TwilioStatusForm struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	CallStatus   string
	CallDuration int
	Timestamp    string
}

func ParseTwilioStatusCallback(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	f := TwilioStatusForm{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid: strings.TrimSpace(r.PostFormValue("AccountSid")),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
		Timestamp:  r.PostFormValue("Timestamp"),
	}
	if f.CallStatus == "" {
		return TwilioStatusForm{}, fmt.Errorf("telephony: CallStatus missing")
	}
	if d := strings.TrimSpace(r.PostFormValue("CallDuration")); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			return TwilioStatusForm{}, fmt.Errorf("telephony: CallDuration %q", d)
		}
		f.CallDuration = n
	}
	return f, nil
}

// CallState maps a Twilio CallStatus onto the call lifecycle.
// "initiated" is Twilio's name for a call it accepted but has not dialed yet.
func (f TwilioStatusForm) CallState() (calls.CallState, bool) {
	if f.CallStatus == "initiated" {
		return calls.StateQueued, true
	}
	return calls.ParseCallState(f.CallStatus)
}

func (f TwilioStatusForm) StateUpdate() (calls.StateUpdate, error) {
	st, ok := f.CallState()
	if !ok {
		return calls.StateUpdate{}, fmt.Errorf("telephony: unknown CallStatus %q", f.CallStatus)
	}
	return calls.StateUpdate{State: st, DurationSeconds: f.CallDuration, ProviderCallID: f.CallSid}, nil
}
