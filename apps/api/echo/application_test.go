package echoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/walimu/core/application"
	"github.com/trezcool/walimu/core/autosave"
	"github.com/trezcool/walimu/core/user"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func Test_applicationApi_createAndMine(t *testing.T) {
	env := setupEnv(t)
	applicant := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)
	token := getToken(t, applicant)

	// no application yet
	req, rec := newAuthRequest(http.MethodGet, "/v1/applications/mine", token)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// create one
	req, rec = newAuthRequest(http.MethodPost, "/v1/applications", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var app application.Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))
	assert.Equal(t, application.StatusDraft, app.Status)
	assert.Equal(t, applicant.ID, app.ApplicantID)
	assert.Equal(t, 1, app.HoursPerWeek)

	// creating again is idempotent while the draft is undecided
	req, rec = newAuthRequest(http.MethodPost, "/v1/applications", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var again application.Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, app.ID, again.ID)

	// mine now returns it
	req, rec = newAuthRequest(http.MethodGet, "/v1/applications/mine", token)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_applicationApi_autosaveDraft(t *testing.T) {
	env := setupEnv(t)
	applicant := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)
	token := getToken(t, applicant)
	app := createApplication(t, env.appRepo, application.Application{ApplicantID: applicant.ID, HoursPerWeek: 1})

	snap := autosave.Snapshot{
		"full_name": "Jane Doe",
		"subjects":  "math, physics",
		"city":      "Goma",
	}
	req, rec := newAuthRequest(http.MethodPut, "/v1/applications/"+app.ID+"/draft", token, marchallObj(t, snap))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// the write is debounced; wait for it to land
	waitFor(t, func() bool {
		got, err := env.appRepo.GetApplication(context.Background(), application.GetFilter{ID: app.ID})
		return err == nil && got.FullName == "Jane Doe"
	}, "debounced save to land")

	got, err := env.appRepo.GetApplication(context.Background(), application.GetFilter{ID: app.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"math", "physics"}, got.Subjects)
	assert.Equal(t, "Goma", got.City)
	assert.Equal(t, 1, got.HoursPerWeek)
	assert.Equal(t, application.StatusDraft, got.Status)

	// a successful save clears any fallback entry and reports "saved"
	_, ok, err := env.fallback.Read(applicant.ID, app.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	req, rec = newAuthRequest(http.MethodGet, "/v1/applications/"+app.ID+"/draft/status", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var state autosave.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, autosave.StatusSaved, state.Status)
	assert.NotNil(t, state.Timestamp)
}

func Test_applicationApi_autosaveOffline(t *testing.T) {
	env := setupEnv(t)
	applicant := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)
	token := getToken(t, applicant)
	app := createApplication(t, env.appRepo, application.Application{ApplicantID: applicant.ID, HoursPerWeek: 1})

	env.monitor.Set(false)

	snap := autosave.Snapshot{"full_name": "Jane Doe", "bio": "typed while offline"}
	req, rec := newAuthRequest(http.MethodPut, "/v1/applications/"+app.ID+"/draft", token, marchallObj(t, snap))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	waitFor(t, func() bool {
		_, ok, err := env.fallback.Read(applicant.ID, app.ID)
		return err == nil && ok
	}, "fallback write to land")

	// nothing reached the repository
	got, err := env.appRepo.GetApplication(context.Background(), application.GetFilter{ID: app.ID})
	require.NoError(t, err)
	assert.Empty(t, got.FullName)

	// offline status persists; it has no auto-reset
	req, rec = newAuthRequest(http.MethodGet, "/v1/applications/"+app.ID+"/draft/status", token)
	env.server.ServeHTTP(rec, req)
	var state autosave.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, autosave.StatusOffline, state.Status)

	// recovery prefers the fallback copy
	req, rec = newAuthRequest(http.MethodGet, "/v1/applications/"+app.ID+"/draft", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var recovery DraftRecoveryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recovery))
	assert.Equal(t, "fallback", recovery.Source)
	assert.Equal(t, "typed while offline", recovery.Data["bio"])

	// back online: the next edit saves remotely and clears the fallback
	env.monitor.Set(true)
	time.Sleep(testAutosaveConf.ThrottleInterval) // get past the throttle window

	snap["city"] = "Goma"
	req, rec = newAuthRequest(http.MethodPut, "/v1/applications/"+app.ID+"/draft", token, marchallObj(t, snap))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	waitFor(t, func() bool {
		got, err := env.appRepo.GetApplication(context.Background(), application.GetFilter{ID: app.ID})
		return err == nil && got.City == "Goma"
	}, "remote save after reconnect")

	_, ok, err := env.fallback.Read(applicant.ID, app.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_applicationApi_submit(t *testing.T) {
	env := setupEnv(t)
	applicant := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)
	token := getToken(t, applicant)
	app := createApplication(t, env.appRepo, application.Application{ApplicantID: applicant.ID, HoursPerWeek: 1})

	// incomplete drafts cannot be submitted
	req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+app.ID+"/submit", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fldErrs map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fldErrs))
	assert.Contains(t, fldErrs, "full_name")
	assert.Contains(t, fldErrs, "subjects")

	// complete it
	app.FullName = "Jane Doe"
	app.Subjects = []string{"math"}
	app.Qualifications = "BSc Mathematics"
	app.Availability = []string{"mon"}
	app.UpdatedAt = time.Now().UTC()
	_, err := env.appRepo.UpdateApplication(context.Background(), app)
	require.NoError(t, err)

	req, rec = newAuthRequest(http.MethodPost, "/v1/applications/"+app.ID+"/submit", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var submitted application.Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	assert.Equal(t, application.StatusSubmitted, submitted.Status)
	assert.False(t, submitted.SubmittedAt.IsZero())

	// autosave refuses to touch it from now on
	snap := autosave.Snapshot{"full_name": "Changed After Submit"}
	req, rec = newAuthRequest(http.MethodPut, "/v1/applications/"+app.ID+"/draft", token, marchallObj(t, snap))
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// double submit is rejected
	req, rec = newAuthRequest(http.MethodPost, "/v1/applications/"+app.ID+"/submit", token)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_applicationApi_reviewFlow(t *testing.T) {
	env := setupEnv(t)
	applicant := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)
	reviewer := createUser(t, env.usrRepo, "Rev", "rev", "rev@test.cd", "", []string{user.RoleReviewer}, true)
	admin := createUser(t, env.usrRepo, "Boss", "boss", "boss@test.cd", "", []string{user.RoleAdmin}, true)

	app := createApplication(t, env.appRepo, application.Application{
		ApplicantID:    applicant.ID,
		Status:         application.StatusSubmitted,
		FullName:       "Jane Doe",
		Subjects:       []string{"math"},
		Qualifications: "BSc",
		Availability:   []string{"mon"},
		HoursPerWeek:   1,
		SubmittedAt:    time.Now().UTC(),
	})

	// the applicant cannot claim their own review
	req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+app.ID+"/review", getToken(t, applicant))
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// reviewer claims it
	req, rec = newAuthRequest(http.MethodPost, "/v1/applications/"+app.ID+"/review", getToken(t, reviewer))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var reviewed application.Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reviewed))
	assert.Equal(t, application.StatusUnderReview, reviewed.Status)
	assert.Equal(t, reviewer.ID, reviewed.ReviewerID)

	// only admins decide; a rejection needs a note
	adminToken := getToken(t, admin)
	req, rec = newAuthRequest(http.MethodPost, "/v1/applications/"+app.ID+"/decision", getToken(t, reviewer), []byte(`{"approve": true}`))
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, "/v1/applications/"+app.ID+"/decision", adminToken, []byte(`{"approve": false}`))
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, "/v1/applications/"+app.ID+"/decision", adminToken, []byte(`{"approve": true}`))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var decided application.Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decided))
	assert.Equal(t, application.StatusApproved, decided.Status)
	assert.False(t, decided.DecidedAt.IsZero())
}

func Test_applicationApi_permissions(t *testing.T) {
	env := setupEnv(t)
	owner := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)
	other := createUser(t, env.usrRepo, "Eve", "eve", "eve@test.cd", "", []string{user.RoleApplicant}, true)
	reviewer := createUser(t, env.usrRepo, "Rev", "rev", "rev@test.cd", "", []string{user.RoleReviewer}, true)

	app := createApplication(t, env.appRepo, application.Application{ApplicantID: owner.ID, HoursPerWeek: 1})

	tests := []httpTest{
		{name: "no token", method: http.MethodGet, path: fmt.Sprintf("/v1/applications/%s", app.ID), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "stranger cannot see it", method: http.MethodGet, path: fmt.Sprintf("/v1/applications/%s", app.ID), token: getToken(t, other), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})},
		{name: "owner sees it", method: http.MethodGet, path: fmt.Sprintf("/v1/applications/%s", app.ID), token: getToken(t, owner), wantCode: http.StatusOK},
		{name: "reviewer sees it", method: http.MethodGet, path: fmt.Sprintf("/v1/applications/%s", app.ID), token: getToken(t, reviewer), wantCode: http.StatusOK},
		{name: "applicant cannot list", method: http.MethodGet, path: "/v1/applications", token: getToken(t, owner), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})},
		{name: "reviewer lists", method: http.MethodGet, path: "/v1/applications", token: getToken(t, reviewer), wantCode: http.StatusOK},
		{name: "stranger cannot autosave", method: http.MethodPut, path: fmt.Sprintf("/v1/applications/%s/draft", app.ID), token: getToken(t, other), body: []byte(`{"full_name":"Eve"}`), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})},
		{name: "reviewer cannot autosave", method: http.MethodPut, path: fmt.Sprintf("/v1/applications/%s/draft", app.ID), token: getToken(t, reviewer), body: []byte(`{"full_name":"Rev"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.server.ServeHTTP(rec, req)
			if tt.wantData == nil {
				assert.Equal(t, tt.wantCode, rec.Code)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_applicationApi_endDraftSession(t *testing.T) {
	env := setupEnv(t)
	applicant := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)
	token := getToken(t, applicant)
	app := createApplication(t, env.appRepo, application.Application{ApplicantID: applicant.ID, HoursPerWeek: 1})

	// trigger then immediately end the session: the pending save is cancelled
	snap := autosave.Snapshot{"full_name": "Jane Doe"}
	req, rec := newAuthRequest(http.MethodPut, "/v1/applications/"+app.ID+"/draft", token, marchallObj(t, snap))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req, rec = newAuthRequest(http.MethodDelete, "/v1/applications/"+app.ID+"/draft/session", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	time.Sleep(5 * testAutosaveConf.DebounceDelay)
	got, err := env.appRepo.GetApplication(context.Background(), application.GetFilter{ID: app.ID})
	require.NoError(t, err)
	assert.Empty(t, got.FullName)
}

func Test_applicationApi_recoverDraft_ignoresStaleFallbackAfterSubmission(t *testing.T) {
	env := setupEnv(t)
	applicant := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)
	token := getToken(t, applicant)
	app := createApplication(t, env.appRepo, application.Application{
		ApplicantID:  applicant.ID,
		Status:       application.StatusSubmitted,
		FullName:     "Jane Doe",
		HoursPerWeek: 1,
	})

	// a rejected post-submission save left a fallback copy behind
	stale := autosave.Snapshot{"full_name": "Edited After Submit"}
	require.NoError(t, env.fallback.Write(applicant.ID, app.ID, stale))

	req, rec := newAuthRequest(http.MethodGet, "/v1/applications/"+app.ID+"/draft", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var recovery DraftRecoveryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recovery))
	assert.Equal(t, "remote", recovery.Source)
	assert.Equal(t, "Jane Doe", recovery.Data["full_name"])

	// the stale copy is gone for good
	_, ok, err := env.fallback.Read(applicant.ID, app.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
