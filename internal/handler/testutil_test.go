package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/caihaoran-00/xiaojilu/internal/handler"
	"github.com/caihaoran-00/xiaojilu/internal/imagestore"
	"github.com/caihaoran-00/xiaojilu/internal/model"
	"github.com/caihaoran-00/xiaojilu/internal/server"
	"github.com/caihaoran-00/xiaojilu/pkg/config"
	"github.com/caihaoran-00/xiaojilu/pkg/database"
)

const (
	testAdminPassword = "admin-test"
	testUploadMax     = 1024
)

// testNow is the fixed instant every test server's clock reports.
var testNow = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	e          *echo.Echo
	db         *gorm.DB
	store      *imagestore.Store
	uploadsDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))

	uploadsDir := t.TempDir()
	store, err := imagestore.New(uploadsDir, testUploadMax)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Auth.AdminPassword = testAdminPassword

	clock := handler.Clock(func() time.Time { return testNow })
	e := server.New(cfg, db, store, clock)

	return &testEnv{e: e, db: db, store: store, uploadsDir: uploadsDir}
}

func (env *testEnv) createFamily(t *testing.T, password, babyName string) model.Family {
	t.Helper()
	family := model.Family{Password: password, BabyName: babyName}
	require.NoError(t, env.db.Create(&family).Error)
	return family
}

// doJSON sends a JSON request through the full middleware chain.
func (env *testEnv) doJSON(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// doAdmin sends a JSON request carrying the admin token.
func (env *testEnv) doAdmin(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// doUpload posts a multipart upload with an explicit part content type.
func (env *testEnv) doUpload(t *testing.T, token, recordType, recordID, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	require.NoError(t, writer.WriteField("record_type", recordType))
	require.NoError(t, writer.WriteField("record_id", recordID))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (env *testEnv) storedFileCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(env.uploadsDir)
	require.NoError(t, err)
	return len(entries)
}
