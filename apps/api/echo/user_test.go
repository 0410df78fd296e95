package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/walimu/core/user"
)

func Test_userApi_login(t *testing.T) {
	env := setupEnv(t)
	pwd := "LePassword123!"
	usr := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", pwd, []string{user.RoleApplicant}, true)
	inactive := createUser(t, env.usrRepo, "Gone", "gone", "gone@test.cd", pwd, []string{user.RoleApplicant}, false)
	_ = inactive

	tests := []httpTest{
		{
			name: "empty body", wantCode: http.StatusBadRequest,
			body:     []byte(`{}`),
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, LoginRequest{Username: "nobody", Password: pwd}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, LoginRequest{Username: usr.Username, Password: "nope"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", wantCode: http.StatusForbidden,
			body:     marchallObj(t, LoginRequest{Username: "gone", Password: pwd}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("valid credentials", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", marchallObj(t, LoginRequest{Username: usr.Username, Password: pwd}))
		env.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var res LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.NotEmpty(t, res.Token)

		// email works as username too
		req, rec = newRequest(http.MethodPost, "/v1/users/login", marchallObj(t, LoginRequest{Username: usr.Email, Password: pwd}))
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_tokenRefresh(t *testing.T) {
	env := setupEnv(t)
	usr := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)

	req, rec := newRequest(http.MethodPost, "/v1/users/token-refresh")
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, usr))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var res LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Token)
}

func Test_userApi_adminOnly(t *testing.T) {
	env := setupEnv(t)
	applicant := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)
	admin := createUser(t, env.usrRepo, "Boss", "boss", "boss@test.cd", "", []string{user.RoleAdmin}, true)

	forbidden := marchallObj(t, httpErr{Error: "permission denied"})
	tests := []httpTest{
		{name: "roles: applicant denied", method: http.MethodGet, path: "/v1/users/roles", token: getToken(t, applicant), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "roles: admin allowed", method: http.MethodGet, path: "/v1/users/roles", token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)},
		{name: "query: applicant denied", method: http.MethodGet, path: "/v1/users", token: getToken(t, applicant), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "query: admin allowed", method: http.MethodGet, path: "/v1/users", token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallList(t, applicant, admin)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	env := setupEnv(t)
	usr := createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "", []string{user.RoleApplicant}, true)
	other := createUser(t, env.usrRepo, "Eve", "eve", "eve@test.cd", "", []string{user.RoleApplicant}, true)
	admin := createUser(t, env.usrRepo, "Boss", "boss", "boss@test.cd", "", []string{user.RoleAdmin}, true)

	tests := []httpTest{
		{name: "own detail", path: fmt.Sprintf("/v1/users/%s", usr.ID), token: getToken(t, usr), wantCode: http.StatusOK, wantData: marchallObj(t, usr)},
		{name: "someone else's detail", path: fmt.Sprintf("/v1/users/%s", usr.ID), token: getToken(t, other), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})},
		{name: "admin sees anyone", path: fmt.Sprintf("/v1/users/%s", usr.ID), token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallObj(t, usr)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_passwordReset(t *testing.T) {
	env := setupEnv(t)
	createUser(t, env.usrRepo, "Jane", "jane", "jane@test.cd", "OldPassword1!", []string{user.RoleApplicant}, true)

	// the response never leaks whether the account exists
	for _, email := range []string{"jane@test.cd", "ghost@test.cd"} {
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, PasswordResetRequest{Email: email}))
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
