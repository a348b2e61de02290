package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"soapbox/internal/access"
	"soapbox/internal/audit"
	"soapbox/internal/auth"
	"soapbox/internal/calls"
	"soapbox/internal/campaigns"
	"soapbox/internal/config"
	"soapbox/internal/identity"
	"soapbox/internal/regions"
	"soapbox/internal/reporting"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	au := audit.NewService(audit.NewMemoryRepo())
	ids := identity.NewService(identity.NewMemoryRepo()).WithAudit(au)
	rs := regions.NewService(regions.NewMemoryRepo())
	cs := campaigns.NewService(campaigns.NewMemoryRepo(), ids, rs, au)
	cl := calls.NewService(calls.NewMemoryRepo(), cs, ids, calls.WithGeocoder(rs), calls.WithAudit(au))
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: 24 * time.Hour})
	require.NoError(t, err)

	h := Handlers{Auth: m, Identity: ids, Campaigns: cs, Calls: cl, Regions: rs, Reporting: reporting.NewService(cl), Audit: au}
	r := gin.New()
	h.Register(r, auth.RequireAccessToken(m, ids), auth.OptionalAccessToken(m, ids))
	return &apiFixture{t: t, router: r}
}

func (f *apiFixture) do(method, path, token string, body any) (int, map[string]any) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

// signup creates a user and returns (user id, access token).
func (f *apiFixture) signup(name string) (string, string) {
	f.t.Helper()
	code, u := f.do(http.MethodPost, "/v1/users", "", map[string]string{"full_name": name, "username": name, "password": "pw-" + name})
	require.Equal(f.t, http.StatusCreated, code, u)
	code, tok := f.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"username": name, "password": "pw-" + name})
	require.Equal(f.t, http.StatusOK, code, tok)
	return u["id"].(string), tok["access_token"].(string)
}

func (f *apiFixture) create(path, token string, body any) string {
	f.t.Helper()
	code, out := f.do(http.MethodPost, path, token, body)
	require.Equal(f.t, http.StatusCreated, code, out)
	return out["id"].(string)
}

func TestAPI_PhoneBankingFlow(t *testing.T) {
	f := newAPI(t)
	ownerID, owner := f.signup("owner")
	mateID, mate := f.signup("mate")
	_, stranger := f.signup("stranger")

	groupID := f.create("/v1/groups", owner, map[string]string{"name": "Bank", "url": "bank"})
	code, _ := f.do(http.MethodPost, "/v1/groups/"+groupID+"/roles", owner, map[string]string{"user_id": mateID, "role": "member"})
	require.Equal(t, http.StatusOK, code)

	code, _ = f.do(http.MethodGet, "/v1/groups/"+groupID, stranger, nil)
	assert.Equal(t, http.StatusNotFound, code, "non-members do not see the group")

	code, _ = f.do(http.MethodDelete, "/v1/groups/"+groupID+"/roles/"+ownerID+"/administrator", owner, nil)
	assert.Equal(t, http.StatusConflict, code, "last administrator stays")

	questionID := f.create("/v1/questions", owner, map[string]any{"group_id": groupID, "text": "Support?", "type": "SHORTFORM"})
	scriptID := f.create("/v1/scripts", owner, map[string]any{"group_id": groupID, "name": "GOTV", "question_ids": []string{questionID}})
	campaignID := f.create("/v1/campaigns", owner, map[string]any{"group_id": groupID, "name": "Fall", "script_id": scriptID})

	code, out := f.do(http.MethodPost, "/v1/campaigns", owner, map[string]any{"group_id": groupID, "name": "Bad", "script_id": "missing"})
	assert.Equal(t, http.StatusUnprocessableEntity, code, out)

	// access endpoint keeps NotFound apart from PermissionDenied
	code, out = f.do(http.MethodGet, "/v1/access/campaign/"+campaignID+"?action=view", mate, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["allowed"])
	code, out = f.do(http.MethodGet, "/v1/access/campaign/"+campaignID+"?action=edit", mate, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["allowed"])
	code, _ = f.do(http.MethodGet, "/v1/campaigns/"+campaignID, stranger, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = f.do(http.MethodGet, "/v1/access/campaign/nope", mate, nil)
	assert.Equal(t, http.StatusNotFound, code)

	// share with the stranger, then the stranger can view
	code, _ = f.do(http.MethodPost, "/v1/campaigns/"+campaignID+"/share", owner, access.Grant{Action: access.ActionView, Principal: access.PrincipalUser, PrincipalID: mustUserID(t, f, stranger)})
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(http.MethodGet, "/v1/campaigns/"+campaignID, stranger, nil)
	assert.Equal(t, http.StatusOK, code)

	numberID := f.create("/v1/numbers", owner, map[string]any{"number": "202-555-0100", "group_id": groupID})

	code, _ = f.do(http.MethodPost, "/v1/numbers/"+numberID+"/checkout", mate, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(http.MethodPost, "/v1/numbers/"+numberID+"/checkout", mate, nil)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = f.do(http.MethodPost, "/v1/numbers/"+numberID+"/checkin", mate, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = f.do(http.MethodPost, "/v1/numbers/"+numberID+"/checkin", owner, nil)
	require.Equal(t, http.StatusOK, code)

	callID := f.create("/v1/calls", mate, map[string]any{"campaign_id": campaignID, "number_id": numberID, "to_number": "2125551234"})
	code, out = f.do(http.MethodPost, "/v1/calls", mate, map[string]any{"campaign_id": campaignID, "number_id": numberID, "to_number": "2125559999"})
	assert.Equal(t, http.StatusUnprocessableEntity, code, out)

	f.create("/v1/results", mate, map[string]any{"call_id": callID, "question_id": questionID, "answer": "yes"})

	code, out = f.do(http.MethodGet, "/v1/campaigns/"+campaignID+"/summary", owner, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), out["total_calls"])
	assert.Equal(t, float64(1), out["live_calls"])

	code, out = f.do(http.MethodGet, fmt.Sprintf("/v1/campaigns/%s/questions/%s/tally", campaignID, questionID), owner, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), out["responses"])

	code, _ = f.do(http.MethodPost, "/v1/campaigns/"+campaignID+"/deactivate", owner, nil)
	require.Equal(t, http.StatusNoContent, code)
	code, _ = f.do(http.MethodGet, "/v1/campaigns/"+campaignID, mate, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, out = f.do(http.MethodGet, "/v1/campaigns/"+campaignID+"/history", owner, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["items"], 2, "sharing change and deactivation")
}

func mustUserID(t *testing.T, f *apiFixture, token string) string {
	t.Helper()
	code, out := f.do(http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	return out["user"].(map[string]any)["id"].(string)
}

func TestAPI_AuthAndRegions(t *testing.T) {
	f := newAPI(t)
	_, tok := f.signup("alice")

	code, _ := f.do(http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(http.MethodPost, "/v1/users", "", map[string]string{"full_name": "Alice", "username": " ALICE ", "password": "x"})
	assert.Equal(t, http.StatusConflict, code)

	regionID := f.create("/v1/regions", tok, map[string]any{"name": "Manhattan", "state": "NY"})
	f.create("/v1/regions/"+regionID+"/ranges", tok, map[string]string{"prefix": "212"})
	f.create("/v1/regions/"+regionID+"/ranges", tok, map[string]string{"prefix": "2125"})

	code, out := f.do(http.MethodGet, "/v1/regions/resolve?number=%2B1%20212%20555%201234", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["matched"])
	assert.Equal(t, regionID, out["region"].(map[string]any)["id"])

	code, out = f.do(http.MethodGet, "/v1/regions/resolve?number=3105551234", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["matched"])

	code, _ = f.do(http.MethodPost, "/v1/regions/"+regionID+"/ranges", tok, map[string]string{"prefix": "212"})
	assert.Equal(t, http.StatusConflict, code)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{access.ErrNotFound, http.StatusNotFound},
		{access.ErrPermissionDenied, http.StatusForbidden},
		{fmt.Errorf("%w: campaign x: %w", calls.ErrInvalidCallTarget, access.ErrNotFound), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %w", calls.ErrInvalidCallTarget, calls.ErrNumberUnavailable), http.StatusUnprocessableEntity},
		{calls.ErrNumberUnavailable, http.StatusConflict},
		{identity.ErrInvariantViolation, http.StatusConflict},
		{identity.ErrDuplicateURL, http.StatusConflict},
		{calls.ErrCallLimitReached, http.StatusTooManyRequests},
		{campaigns.ErrNotShareable, http.StatusBadRequest},
		{identity.ErrUserNotFound, http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}
