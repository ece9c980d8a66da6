package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"cropadviser/internal/app"
	"cropadviser/internal/ratelimit"
	"cropadviser/pkg/domain"
	"cropadviser/pkg/notify"
	"cropadviser/pkg/session"
	"cropadviser/pkg/storage"
	"cropadviser/pkg/store"
)

var (
	serverKeyOnce sync.Once
	serverKey     *rsa.PrivateKey
)

type memoryQueue struct {
	mu  sync.Mutex
	ids []uint
}

func (q *memoryQueue) Enqueue(_ context.Context, id uint) error {
	q.mu.Lock()
	q.ids = append(q.ids, id)
	q.mu.Unlock()
	return nil
}

type apiTest struct {
	handler http.Handler
	app     *app.App
	store   *store.MemoryStore
	queue   *memoryQueue
}

func newAPITest(t *testing.T, cfgFns ...func(*Config)) *apiTest {
	t.Helper()
	serverKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		serverKey = key
	})

	memStore := store.NewMemoryStore()
	queue := &memoryQueue{}
	application, err := app.New(app.Config{
		Store:   memStore,
		Objects: storage.NewMemoryObjectStore(),
		Tokens:  session.NewAccessTokensFromKey(serverKey, session.NewMemoryRevoker(), session.Options{}),
		Refresh: session.NewMemoryRefreshStore(),
		Events:  &notify.MemoryPublisher{},
		Jobs:    queue,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	cfg := Config{App: application}
	for _, fn := range cfgFns {
		fn(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &apiTest{handler: srv.Handler(), app: application, store: memStore, queue: queue}
}

func (a *apiTest) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func (a *apiTest) register(t *testing.T, name, email, level string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/users", "", map[string]string{
		"name": name, "email": email, "password": "harvest2026", "userlevel": level,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
}

func (a *apiTest) login(t *testing.T, email string) (token string, user map[string]any) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": email, "password": "harvest2026",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	payload := envelope(t, rec)
	token, _ = payload["token"].(string)
	user, _ = payload["data"].(map[string]any)
	return token, user
}

func TestHealthz(t *testing.T) {
	api := newAPITest(t)
	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLoginReturnsTokenAndHomePath(t *testing.T) {
	api := newAPITest(t)
	api.register(t, "Agent Silva", "agent@example.com", "agent")

	rec := api.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": "agent@example.com", "password": "harvest2026",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	payload := envelope(t, rec)
	if payload["success"] != true {
		t.Fatalf("success = %v", payload["success"])
	}
	if token, _ := payload["token"].(string); token == "" {
		t.Fatal("no token in login response")
	}
	if payload["homePath"] != "/agent-dashboard" {
		t.Fatalf("homePath = %v", payload["homePath"])
	}
	user, _ := payload["data"].(map[string]any)
	if user["userlevel"] != "agent" {
		t.Fatalf("user = %v", user)
	}
}

func TestLoginFailureHasNoToken(t *testing.T) {
	api := newAPITest(t)
	api.register(t, "F", "f@example.com", "")

	rec := api.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": "f@example.com", "password": "wrongpass1",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := envelope(t, rec)
	if payload["success"] != false {
		t.Fatalf("success = %v", payload["success"])
	}
	if msg, _ := payload["message"].(string); msg == "" {
		t.Fatal("no failure message")
	}
	if _, hasToken := payload["token"]; hasToken {
		t.Fatal("failed login carried a token")
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	api := newAPITest(t)
	api.register(t, "F", "f@example.com", "")
	token, user := api.login(t, "f@example.com")
	userID := int(user["id"].(float64))

	path := "/api/v1/users/" + itoa(userID)
	if rec := api.do(t, http.MethodGet, path, token, nil); rec.Code != http.StatusOK {
		t.Fatalf("profile before logout: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/api/v1/users/logout", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, path, token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("profile after logout: %d", rec.Code)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	api := newAPITest(t)
	for _, path := range []string{"/api/v1/users/1", "/api/v1/appointments", "/api/v1/predictions"} {
		if rec := api.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status %d", path, rec.Code)
		}
	}
}

func TestAppointmentFlowOverHTTP(t *testing.T) {
	api := newAPITest(t)
	api.register(t, "Farmer", "farmer@example.com", "")
	api.register(t, "Adviser", "adviser@example.com", "agent")
	farmerToken, _ := api.login(t, "farmer@example.com")
	adviserToken, adviser := api.login(t, "adviser@example.com")
	adviserID := int(adviser["id"].(float64))

	rec := api.do(t, http.MethodPost, "/api/v1/appointments", farmerToken, map[string]any{
		"adviser_id":       adviserID,
		"subject":          "soil inspection",
		"appointment_date": time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC).Format(time.RFC3339),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d body %s", rec.Code, rec.Body.String())
	}
	created := envelope(t, rec)["data"].(map[string]any)
	apptID := int(created["id"].(float64))
	if created["appointment_status"] != "pending" {
		t.Fatalf("status = %v", created["appointment_status"])
	}

	// pending -> completed is not a legal transition.
	rec = api.do(t, http.MethodPut, "/api/v1/appointments/"+itoa(apptID), adviserToken, map[string]any{
		"appointment_status": "completed",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("invalid transition: %d body %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodPut, "/api/v1/appointments/"+itoa(apptID), adviserToken, map[string]any{
		"appointment_status": "confirmed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d body %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/api/v1/appointments/adviser/"+itoa(adviserID), adviserToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("adviser list: %d", rec.Code)
	}
	payload := envelope(t, rec)
	if payload["count"] != float64(1) {
		t.Fatalf("count = %v", payload["count"])
	}
}

func TestFileUploadValidationOverHTTP(t *testing.T) {
	api := newAPITest(t)
	api.register(t, "Adviser", "adviser@example.com", "agent")
	token, _ := api.login(t, "adviser@example.com")

	// Multipart body without a file part.
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("farmer_id", "1")
	_ = form.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/user-files", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file: %d body %s", rec.Code, rec.Body.String())
	}
}

func TestFileUploadAndFarmerListing(t *testing.T) {
	api := newAPITest(t)
	api.register(t, "Adviser", "adviser@example.com", "agent")
	api.register(t, "Farmer", "farmer@example.com", "")
	adviserToken, _ := api.login(t, "adviser@example.com")
	farmerToken, farmer := api.login(t, "farmer@example.com")
	farmerID := int(farmer["id"].(float64))

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("farmer_id", itoa(farmerID))
	_ = form.WriteField("category", "soil-report")
	part, err := form.CreateFormFile("file", "report.pdf")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte("%PDF-1.4 test"))
	_ = form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/user-files", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+adviserToken)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d body %s", rec.Code, rec.Body.String())
	}

	listRec := api.do(t, http.MethodGet, "/api/v1/user-files/farmer/"+itoa(farmerID), farmerToken, nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("farmer list: %d", listRec.Code)
	}
	payload := envelope(t, listRec)
	if payload["count"] != float64(1) {
		t.Fatalf("count = %v body %s", payload["count"], listRec.Body.String())
	}
}

func TestPredictionRequestOverHTTP(t *testing.T) {
	api := newAPITest(t)
	api.register(t, "Farmer", "farmer@example.com", "")
	token, _ := api.login(t, "farmer@example.com")

	rec := api.do(t, http.MethodPost, "/api/v1/predictions", token, map[string]any{
		"aez": "DL1", "soil_ph": 6.5, "rainfall_mm": 850, "temperature_c": 28, "humidity_pct": 60,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("request: %d body %s", rec.Code, rec.Body.String())
	}
	data := envelope(t, rec)["data"].(map[string]any)
	if data["status"] != "queued" {
		t.Fatalf("status = %v", data["status"])
	}
	if len(api.queue.ids) != 1 {
		t.Fatalf("queued jobs = %v", api.queue.ids)
	}
}

func TestPredictionExportRequiresResearchRole(t *testing.T) {
	api := newAPITest(t)
	api.register(t, "Farmer", "farmer@example.com", "")
	api.register(t, "Researcher", "res@example.com", "researcher")
	farmerToken, _ := api.login(t, "farmer@example.com")
	researcherToken, _ := api.login(t, "res@example.com")

	if rec := api.do(t, http.MethodGet, "/api/v1/predictions/export", farmerToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("farmer export: %d", rec.Code)
	}
	rec := api.do(t, http.MethodGet, "/api/v1/predictions/export", researcherToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("researcher export: %d body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestLoginRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewFixedWindowLimiter(mr.Addr(), "", "login", 2, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	api := newAPITest(t, func(cfg *Config) { cfg.LoginLimiter = limiter })
	api.register(t, "F", "f@example.com", "")

	body := map[string]string{"email": "f@example.com", "password": "wrongpass1"}
	for i := 0; i < 2; i++ {
		if rec := api.do(t, http.MethodPost, "/api/v1/users/login", "", body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: %d", i+1, rec.Code)
		}
	}
	if rec := api.do(t, http.MethodPost, "/api/v1/users/login", "", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt: %d", rec.Code)
	}
}

func TestAdminUserManagementOverHTTP(t *testing.T) {
	api := newAPITest(t)
	api.register(t, "Boss", "boss@example.com", "")
	boss, _, _ := api.store.GetUserByEmail("boss@example.com")
	boss.UserLevel = domain.LevelAdmin
	if err := api.store.SaveUser(boss); err != nil {
		t.Fatal(err)
	}
	api.register(t, "F", "f@example.com", "")
	adminToken, _ := api.login(t, "boss@example.com")
	farmerToken, farmer := api.login(t, "f@example.com")
	farmerID := int(farmer["id"].(float64))

	if rec := api.do(t, http.MethodGet, "/api/v1/users", farmerToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("farmer user list: %d", rec.Code)
	}
	rec := api.do(t, http.MethodGet, "/api/v1/users?userlevel=farmer", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list: %d", rec.Code)
	}
	if payload := envelope(t, rec); payload["count"] != float64(1) {
		t.Fatalf("count = %v body %s", payload["count"], rec.Body.String())
	}

	rec = api.do(t, http.MethodPatch, "/api/v1/users/"+itoa(farmerID)+"/level", adminToken, map[string]string{
		"userlevel": "agent",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("level change: %d body %s", rec.Code, rec.Body.String())
	}
	if data := envelope(t, rec)["data"].(map[string]any); data["userlevel"] != "agent" {
		t.Fatalf("userlevel = %v", data["userlevel"])
	}

	if rec := api.do(t, http.MethodGet, "/api/v1/stats", adminToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
