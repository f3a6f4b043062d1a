package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"SafeBuddyGuardian/internal/device"
	"SafeBuddyGuardian/internal/falldetect"
	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/internal/sos"
	"SafeBuddyGuardian/pkg/config"
	constants "SafeBuddyGuardian/pkg/constant"
	"SafeBuddyGuardian/pkg/sse"
	ws "SafeBuddyGuardian/pkg/websocket"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testApp struct {
	engine  *gin.Engine
	db      *gorm.DB
	cookies []*http.Cookie
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, config.Load())

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))

	sosCfg := config.GlobalConfig.SOS
	sosCfg.StreamInterval = 20 * time.Millisecond
	sosCfg.NotifyRetryBackoff = 20 * time.Millisecond
	sosCfg.DialStagger = 5 * time.Millisecond

	devices := ws.NewHub(nil)
	gateway := device.NewGateway(devices)
	locator := sos.NewDeviceLocator(time.Minute)
	manager := sos.NewManager(sos.Deps{
		DB:         db,
		Config:     sosCfg,
		Locator:    locator,
		Actuators:  gateway.Actuators,
		Dialer:     sos.NewDialer(sosCfg.EmergencyNumbers, sosCfg.DialStagger, gateway.Dial),
		Dispatcher: sos.NewDispatcher(nil, nil, nil, nil),
		Events:     sse.NewHub(time.Second),
	})
	fallCfg := config.GlobalConfig.Fall
	fallCfg.ConfirmWindow = 50 * time.Millisecond
	monitors := falldetect.NewRegistry(fallCfg, gateway, func(ctx context.Context, userID uint) error {
		return nil
	})

	engine := gin.New()
	engine.Use(sessions.Sessions(constants.SessionField, cookie.NewStore([]byte("test-secret"))))

	h := NewHandlers(Options{
		DB:       db,
		Manager:  manager,
		Monitors: monitors,
		Devices:  devices,
		Gateway:  gateway,
		Events:   sse.NewHub(time.Second),
	})
	h.Register(engine)

	t.Cleanup(func() {
		monitors.Close()
		devices.Close()
	})
	return &testApp{engine: engine, db: db}
}

func (a *testApp) do(t *testing.T, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(b)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range a.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	if cs := w.Result().Cookies(); len(cs) > 0 {
		a.cookies = cs
	}
	return w
}

func (a *testApp) signup(t *testing.T) {
	t.Helper()
	w := a.do(t, "POST", "/api/auth/register", gin.H{
		"email":       "asha@example.com",
		"password":    "secret-password",
		"displayName": "Asha",
		"language":    "en",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func jsonPath(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func TestSOSActivationFlow(t *testing.T) {
	app := newTestApp(t)
	app.signup(t)

	w := app.do(t, "POST", "/api/sos", gin.H{
		"triggerMethod": "manual",
		"latitude":      19.0760,
		"longitude":     72.8777,
		"batteryLevel":  80,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeData(t, w)
	incident := data["incident"].(map[string]interface{})
	assert.Equal(t, "active", incident["status"])
	assert.Equal(t, "manual", incident["triggerMethod"])
	assert.InDelta(t, 19.0760, incident["latitude"].(float64), 1e-9)
	incidentID := int(incident["id"].(float64))

	// 重复激活被拒
	w = app.do(t, "POST", "/api/sos", gin.H{
		"triggerMethod": "manual",
		"latitude":      19.0760,
		"longitude":     72.8777,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// active 查询
	w = app.do(t, "GET", "/api/sos/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	require.NotNil(t, data["incident"])

	// 解除
	w = app.do(t, "PATCH", jsonPath("/api/sos/%d", incidentID), gin.H{"status": "resolved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data = decodeData(t, w)
	assert.Equal(t, "resolved", data["status"])

	// 再次解除 404
	w = app.do(t, "PATCH", jsonPath("/api/sos/%d", incidentID), gin.H{"status": "resolved"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSOSRequiresAuth(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, "POST", "/api/sos", gin.H{"latitude": 1.0, "longitude": 2.0})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSOSWithoutLocationRejected(t *testing.T) {
	app := newTestApp(t)
	app.signup(t)

	w := app.do(t, "POST", "/api/sos", gin.H{"triggerMethod": "manual"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestLocationAppendAndList(t *testing.T) {
	app := newTestApp(t)
	app.signup(t)

	w := app.do(t, "POST", "/api/sos", gin.H{
		"triggerMethod": "manual",
		"latitude":      19.0760,
		"longitude":     72.8777,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	incident := decodeData(t, w)["incident"].(map[string]interface{})
	id := int(incident["id"].(float64))

	w = app.do(t, "POST", jsonPath("/api/sos/%d/locations", id), gin.H{
		"latitude":  19.0999,
		"longitude": 72.9000,
		"accuracy":  8.5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = app.do(t, "GET", jsonPath("/api/sos/%d/locations", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data)
	last := body.Data[len(body.Data)-1]
	assert.InDelta(t, 19.0999, last["latitude"].(float64), 1e-9)

	app.do(t, "PATCH", jsonPath("/api/sos/%d", id), gin.H{"status": "resolved"})
}

func TestGuardianCRUD(t *testing.T) {
	app := newTestApp(t)
	app.signup(t)

	w := app.do(t, "POST", "/api/guardians", gin.H{
		"name":      "Ravi",
		"phone":     "+91 98765 43210",
		"isPrimary": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	g := decodeData(t, w)
	id := int(g["id"].(float64))

	w = app.do(t, "GET", "/api/guardians", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, "PATCH", jsonPath("/api/guardians/%d", id), gin.H{"phone": "+91 91234 56789"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stored models.GuardianContact
	require.NoError(t, app.db.First(&stored, id).Error)
	assert.Equal(t, "+91 91234 56789", stored.Phone)

	w = app.do(t, "DELETE", jsonPath("/api/guardians/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, "DELETE", jsonPath("/api/guardians/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFallMonitorEndpoints(t *testing.T) {
	app := newTestApp(t)
	app.signup(t)

	w := app.do(t, "POST", "/api/fall/enable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "monitoring", decodeData(t, w)["state"])

	// 没有待确认窗口时确认返回冲突
	w = app.do(t, "POST", "/api/fall/confirm", gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, "GET", "/api/fall/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "monitoring", decodeData(t, w)["state"])

	w = app.do(t, "POST", "/api/fall/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, "GET", "/api/fall/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decodeData(t, w)["state"])
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, "GET", "/api/system/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
