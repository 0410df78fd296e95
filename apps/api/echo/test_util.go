package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/application"
	"github.com/trezcool/walimu/core/autosave"
	"github.com/trezcool/walimu/core/document"
	"github.com/trezcool/walimu/core/user"
	emailsvc "github.com/trezcool/walimu/services/email"
	"github.com/trezcool/walimu/services/ratelimit"
	inmemdb "github.com/trezcool/walimu/storage/database/inmem"
	"github.com/trezcool/walimu/storage/localfallback"
	"github.com/trezcool/walimu/storage/object"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func newTestTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newTestValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newTestConfig() *core.Config {
	return &core.Config{
		Env:      "test",
		AppName:  "Walimu",
		TestMode: true,

		SecretKey:                 []byte("secret"),
		DefaultFromEmail:          mail.Address{Name: "Walimu", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,

		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type testEnv struct {
	server Server

	usrRepo  user.Repository
	appRepo  application.Repository
	docRepo  document.Repository
	usrSvc   user.Service
	appSvc   application.Service
	monitor  *autosave.Monitor
	fallback *localfallback.Store
}

// fast pipeline timings so handler tests don't crawl
var testAutosaveConf = autosave.Config{
	DebounceDelay:    25 * time.Millisecond,
	ThrottleInterval: 50 * time.Millisecond,
	StatusResetDelay: time.Minute,
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	conf := newTestConfig()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setupEnv() failed: %v", err)
	}
	usrRepo := inmemdb.NewUserRepository(db)
	appRepo := inmemdb.NewApplicationRepository(db)
	docRepo := inmemdb.NewDocumentRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, conf)
	appSvc := application.NewServiceMock(appRepo, usrSvc, mailSvc, conf)
	docSvc := document.NewService(nil, docRepo, object.NewInmemBlobs())

	fallback, err := localfallback.Open(filepath.Join(t.TempDir(), "fallback.db"))
	if err != nil {
		t.Fatalf("setupEnv() failed: %v", err)
	}
	t.Cleanup(func() { _ = fallback.Close() })

	logger := nopLogger{}
	monitor := autosave.NewMonitor(true)
	autosaves := autosave.NewManager(application.NewRemoteClient(appSvc), fallback, monitor, logger, testAutosaveConf)
	t.Cleanup(autosaves.Close)

	translator := newTestTranslator()
	validate := newTestValidator(translator)

	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		ApplicationSvc: appSvc,
		DocumentSvc:    docSvc,
		Autosaves:      autosaves,
		Fallback:       fallback,
		Limiter:        ratelimit.NewNoopLimiter(),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})

	return &testEnv{
		server:   server,
		usrRepo:  usrRepo,
		appRepo:  appRepo,
		docRepo:  docRepo,
		usrSvc:   usrSvc,
		appSvc:   appSvc,
		monitor:  monitor,
		fallback: fallback,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func createUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func createApplication(t *testing.T, repo application.Repository, app application.Application) application.Application {
	t.Helper()
	now := time.Now().UTC()
	if app.Status == "" {
		app.Status = application.StatusDraft
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
		app.UpdatedAt = now
	}
	app, err := repo.CreateApplication(context.Background(), app)
	if err != nil {
		t.Fatalf("createApplication() failed: %v", err)
	}
	return app
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
