package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/schooldriver/schooldriver/apps/api/echo"
	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/notification"
	"github.com/schooldriver/schooldriver/core/parent"
	"github.com/schooldriver/schooldriver/core/ratelimit"
	"github.com/schooldriver/schooldriver/core/user"
	emailsvc "github.com/schooldriver/schooldriver/services/email"
	pushsvc "github.com/schooldriver/schooldriver/services/push"
	sqlxrepos "github.com/schooldriver/schooldriver/storage/database/sqlx"
	testutil "github.com/schooldriver/schooldriver/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	*Server
	conf      *core.Config
	usrRepo   user.Repository
	acadRepo  academic.Repository
	parentSvc *parent.Service
	push      *pushsvc.ConsoleService
}

func setup(t *testing.T, configure ...func(conf *core.Config)) *testApp {
	conf := core.NewTestConfig()
	for _, fn := range configure {
		fn(conf)
	}
	logger := testutil.NopLogger()
	core.ParseEmailTemplates(conf, logger)
	emailsvc.ResetSentMessages()

	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	acadRepo := sqlxrepos.NewAcademicRepository(db)

	// set up services
	validate := testutil.NewValidator()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	push := pushsvc.NewConsoleService(logger)
	usrSvc := user.NewService(usrRepo)
	acadSvc := academic.NewService(db, acadRepo, validate, logger)
	notifSvc := notification.NewService(sqlxrepos.NewDeviceRepository(db), push, validate, logger)
	parentSvc := parent.NewService(conf, db, sqlxrepos.NewCodeRepository(db), acadSvc, usrSvc, notifSvc, mailSvc, validate, logger)

	// set up server
	srv := NewServer(ServerDeps{
		Conf:            conf,
		Logger:          logger,
		UserSvc:         usrSvc,
		AcademicSvc:     acadSvc,
		ParentSvc:       parentSvc,
		NotificationSvc: notifSvc,
		Limiter:         ratelimit.NewLimiter(ratelimit.NewMemoryStore(), logger, ratelimit.RulesFromConfig(conf.RateLimit)...),
		Validate:        validate,
		Translator:      core.NewUniversalTranslator(),
		DisableReqLogs:  true,
	})
	t.Cleanup(func() { _ = srv.Close() })

	return &testApp{
		Server:    srv,
		conf:      conf,
		usrRepo:   usrRepo,
		acadRepo:  acadRepo,
		parentSvc: parentSvc,
		push:      push,
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

func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(app.conf, GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
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
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if tt.wantCode == 0 {
		tt.wantCode = http.StatusOK
	}
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
