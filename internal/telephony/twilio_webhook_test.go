package telephony

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"soapbox/internal/calls"

	"github.com/gin-gonic/gin"
)

func TestParseTwilioStatusCallback(t *testing.T) {
	body := strings.NewReader("CallSid=CA123&CallStatus=completed&CallDuration=42&To=%2B12125551234")
	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status/c1", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseTwilioStatusCallback(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallSid != "CA123" || form.To != "+12125551234" {
		t.Fatalf("unexpected form: %+v", form)
	}
	u, err := form.StateUpdate()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if u.State != calls.StateCompleted || u.DurationSeconds != 42 || u.ProviderCallID != "CA123" {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestTwilioStatusMapping(t *testing.T) {
	cases := map[string]calls.CallState{
		"initiated":   calls.StateQueued,
		"queued":      calls.StateQueued,
		"ringing":     calls.StateRinging,
		"in-progress": calls.StateInProgress,
		"no-answer":   calls.StateNoAnswer,
		"canceled":    calls.StateCanceled,
	}
	for in, want := range cases {
		got, ok := TwilioStatusForm{CallStatus: in}.CallState()
		if !ok || got != want {
			t.Fatalf("%s: want %s got %s (%v)", in, want, got, ok)
		}
	}
	if _, err := (TwilioStatusForm{CallStatus: "answered"}).StateUpdate(); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
}

func TestSignature_KnownVector(t *testing.T) {
	// Example from Twilio's webhook security documentation.
	form := url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+12349013030"},
		"Digits":  {"1234"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}
	got := Signature("12345", "https://mycompany.com/myapp.php?foo=1&bar=2", form)
	if got != "0/KCTR6DLpKmkAf8muzZqo1nDgQ=" {
		t.Fatalf("unexpected signature %q", got)
	}
	if !ValidSignature("12345", "https://mycompany.com/myapp.php?foo=1&bar=2", form, got) {
		t.Fatalf("expected signature to validate")
	}
	if ValidSignature("other", "https://mycompany.com/myapp.php?foo=1&bar=2", form, got) {
		t.Fatalf("expected wrong token to fail")
	}
}

type fakeUpdater struct {
	got calls.StateUpdate
	err error
}

func (f *fakeUpdater) UpdateCallState(ctx context.Context, callID string, u calls.StateUpdate) (calls.Call, error) {
	f.got = u
	if f.err != nil {
		return calls.Call{}, f.err
	}
	return calls.Call{ID: callID, State: u.State}, nil
}

func statusRouter(h TwilioStatusHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/twilio/status/:call_id", h.HandleStatus)
	return r
}

func postStatus(r *gin.Engine, body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status/c1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sig != "" {
		req.Header.Set(HeaderTwilioSignature, sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTwilioStatusHandler_Signature(t *testing.T) {
	up := &fakeUpdater{}
	h := TwilioStatusHandler{Calls: up, AuthToken: "secret", BaseURL: "https://api.example.org"}
	r := statusRouter(h)
	body := "CallSid=CA1&CallStatus=ringing"

	if w := postStatus(r, body, "bogus"); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	form, _ := url.ParseQuery(body)
	sig := Signature("secret", "https://api.example.org/webhooks/twilio/status/c1", form)
	if w := postStatus(r, body, sig); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if up.got.State != calls.StateRinging || up.got.ProviderCallID != "CA1" {
		t.Fatalf("unexpected update: %+v", up.got)
	}
}

func TestTwilioStatusHandler_Errors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: completed -> ringing", calls.ErrInvalidTransition), http.StatusNoContent},
		{calls.ErrCallNotFound, http.StatusNotFound},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := statusRouter(TwilioStatusHandler{Calls: &fakeUpdater{err: tc.err}})
		if w := postStatus(r, "CallSid=CA1&CallStatus=ringing", ""); w.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, w.Code)
		}
	}

	r := statusRouter(TwilioStatusHandler{Calls: &fakeUpdater{}})
	if w := postStatus(r, "CallSid=CA1", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing status, got %d", w.Code)
	}
}
