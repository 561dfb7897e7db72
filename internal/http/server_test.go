package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
	"github.com/techtuto2024/techtuto-backend/internal/auth"
	"github.com/techtuto2024/techtuto-backend/internal/avatar"
	"github.com/techtuto2024/techtuto-backend/internal/config"
	"github.com/techtuto2024/techtuto-backend/internal/directory"
	"github.com/techtuto2024/techtuto-backend/internal/model"
	"github.com/techtuto2024/techtuto-backend/internal/notify"
	"github.com/techtuto2024/techtuto-backend/internal/payment"
	"github.com/techtuto2024/techtuto-backend/internal/repository"
	"github.com/techtuto2024/techtuto-backend/internal/schedule"
)

type recordingMailer struct {
	mu       sync.Mutex
	sent     []notify.Message
	fail     bool
	failWith error
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last() notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return notify.Message{}
	}
	return m.sent[len(m.sent)-1]
}

type testApp struct {
	url    string
	store  *repository.MemoryStore
	mailer *recordingMailer
	cfg    config.Config
}

func newTestApp(t *testing.T, delivery string, gatewayURL string) *testApp {
	t.Helper()
	cfg := config.Config{
		JWTSecret:         "test-secret",
		JWTIssuer:         "test-issuer",
		SessionTTL:        time.Hour,
		SessionDelivery:   delivery,
		FrontendURL:       "http://frontend.test",
		RazorpayKeyID:     "rzp_test",
		RazorpayKeySecret: "rzp-secret",
		RazorpayBaseURL:   gatewayURL,
		AvatarDir:         t.TempDir(),
		AvatarBaseURL:     "http://api.test",
		CORSOrigins:       []string{"http://frontend.test"},
		RequestTimeout:    5 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	mailer := &recordingMailer{}
	renderer, err := notify.NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	dir := directory.New(store, nil)
	server, err := NewServer(cfg, Deps{
		Directory: dir,
		Schedule:  schedule.NewService(dir, store, mailer, renderer, logger),
		Mailer:    mailer,
		Renderer:  renderer,
		Payments: payment.NewClient(payment.Config{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpayKeySecret,
			BaseURL:   cfg.RazorpayBaseURL,
		}, nil),
		Avatars: avatar.NewLocalStore(cfg.AvatarDir, cfg.AvatarBaseURL),
		Store:   store,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	app := httptest.NewServer(server.Router())
	t.Cleanup(app.Close)
	return &testApp{url: app.URL, store: store, mailer: mailer, cfg: cfg}
}

func TestRegisterLoginCurrentUser(t *testing.T) {
	app := newTestApp(t, "body", "")

	resp := doReq(t, http.MethodPost, app.url+"/api/v1/user/register", "", map[string]interface{}{
		"name":     "Asha Rao",
		"email":    "a@x.com",
		"role":     "student",
		"password": "secret123",
		"country":  map[string]string{"name": "India", "timezone": "Asia/Kolkata"},
	})
	body := decodeBody(t, resp, http.StatusOK)
	user := body["user"].(map[string]interface{})
	if user["userId"] != "astudent@techtuto" {
		t.Fatalf("unexpected userId %v", user["userId"])
	}
	if _, leaked := user["password"]; leaked {
		t.Fatalf("password hash must not be returned")
	}
	if welcome := app.mailer.last(); welcome.To != "a@x.com" || !strings.Contains(welcome.Subject, "Welcome to TechTuto") {
		t.Fatalf("expected welcome email, got %+v", welcome)
	}

	token := login(t, app, "a@x.com", "secret123")

	resp = doReq(t, http.MethodGet, app.url+"/currentuser", token, nil)
	body = decodeBody(t, resp, http.StatusOK)
	current := body["user"].(map[string]interface{})
	if current["email"] != "a@x.com" || current["role"] != "student" {
		t.Fatalf("unexpected current user %v", current)
	}
	country := current["country"].(map[string]interface{})
	if country["timezone"] != "Asia/Kolkata" {
		t.Fatalf("expected timezone from nested country, got %v", country)
	}

	resp = doReq(t, http.MethodGet, app.url+"/api/v1/user/verifytoken", token, nil)
	body = decodeBody(t, resp, http.StatusOK)
	if body["valid"] != true {
		t.Fatalf("expected valid token")
	}
}

func TestRegisterRejectsDuplicateEmailAcrossRoles(t *testing.T) {
	app := newTestApp(t, "body", "")
	register(t, app, "Carla", "c@x.com", "student")

	resp := doReq(t, http.MethodPost, app.url+"/register", "", map[string]interface{}{
		"name": "Carla", "email": "c@x.com", "role": "mentor", "password": "secret123",
	})
	body := decodeBody(t, resp, http.StatusConflict)
	if body["error"] != "duplicate_email" || body["message"] == "" {
		t.Fatalf("unexpected error body %v", body)
	}

	resp = doReq(t, http.MethodPost, app.url+"/register", "", map[string]interface{}{
		"name": "Dana", "email": "d@x.com", "role": "admin",
	})
	body = decodeBody(t, resp, http.StatusBadRequest)
	if body["error"] != "invalid_role" {
		t.Fatalf("expected invalid_role, got %v", body)
	}
}

func TestRegisterMultipartWithAvatar(t *testing.T) {
	app := newTestApp(t, "body", "")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for key, value := range map[string]string{"name": "Eli Moss", "email": "e@x.com", "role": "mentor", "timezone": "America/New_York"} {
		_ = form.WriteField(key, value)
	}
	part, err := form.CreateFormFile("avatar", "me.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00"))
	_ = form.Close()

	req, _ := http.NewRequest(http.MethodPost, app.url+"/register", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	body := decodeBody(t, resp, http.StatusOK)
	user := body["user"].(map[string]interface{})
	av, ok := user["avatar"].(map[string]interface{})
	if !ok || !strings.HasPrefix(av["url"].(string), "http://api.test/avatars/") {
		t.Fatalf("expected avatar url, got %v", user["avatar"])
	}

	path := strings.TrimPrefix(av["url"].(string), "http://api.test")
	img, err := http.Get(app.url + path)
	if err != nil {
		t.Fatalf("fetch avatar: %v", err)
	}
	img.Body.Close()
	if img.StatusCode != http.StatusOK {
		t.Fatalf("expected avatar to be served, got %d", img.StatusCode)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	app := newTestApp(t, "body", "")

	resp := doReq(t, http.MethodGet, app.url+"/currentuser", "", nil)
	body := decodeBody(t, resp, http.StatusUnauthorized)
	if body["error"] != "missing_token" {
		t.Fatalf("expected missing_token, got %v", body)
	}

	resp = doReq(t, http.MethodGet, app.url+"/currentuser", "not-a-jwt", nil)
	body = decodeBody(t, resp, http.StatusUnauthorized)
	if body["error"] != "invalid_token" {
		t.Fatalf("expected invalid_token, got %v", body)
	}

	issuer, err := auth.NewIssuer(app.cfg.JWTSecret, app.cfg.JWTIssuer, time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	ghost, _, err := issuer.Issue(model.User{ID: "deleted-user", Role: model.RoleManager})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp = doReq(t, http.MethodGet, app.url+"/currentuser", ghost, nil)
	decodeBody(t, resp, http.StatusUnauthorized)
}

func TestSendClassDetailsAndList(t *testing.T) {
	app := newTestApp(t, "body", "")
	registerWithTimezone(t, app, "Asha", "a@x.com", "student", "Asia/Kolkata")
	registerWithTimezone(t, app, "Ben", "b@x.com", "mentor", "America/New_York")
	registerWithTimezone(t, app, "Mina", "m@x.com", "manager", "Asia/Kolkata")

	classReq := map[string]interface{}{
		"studentId":   "astudent@techtuto",
		"mentorId":    "bmentor@techtuto",
		"subjectName": "Physics",
		"classLink":   "https://meet.example.com/abc",
		"classDate":   "10-01-2025",
		"classTime":   "10:00",
	}

	studentToken := login(t, app, "a@x.com", "secret123")
	resp := doReq(t, http.MethodPost, app.url+"/sendClassDetails", studentToken, classReq)
	decodeBody(t, resp, http.StatusForbidden)

	managerToken := login(t, app, "m@x.com", "secret123")
	resp = doReq(t, http.MethodPost, app.url+"/api/v1/user/sendClassDetails", managerToken, classReq)
	body := decodeBody(t, resp, http.StatusOK)
	mentor := body["mentor"].(map[string]interface{})
	local := mentor["local"].(map[string]interface{})
	if local["date"] != "09-01-2025" || local["time"] != "23:30" {
		t.Fatalf("unexpected mentor local time %v", local)
	}
	if app.store.ClassCount() != 1 {
		t.Fatalf("expected one class record")
	}

	classReq["mentorId"] = "ghostmentor@techtuto"
	resp = doReq(t, http.MethodPost, app.url+"/sendClassDetails", managerToken, classReq)
	body = decodeBody(t, resp, http.StatusNotFound)
	if body["error"] != "mentor_not_found" || app.store.ClassCount() != 1 {
		t.Fatalf("unknown mentor must not write a record, got %v", body)
	}

	resp = doReq(t, http.MethodGet, app.url+"/classdetails?studentId=astudent@techtuto", "", nil)
	body = decodeBody(t, resp, http.StatusOK)
	data := body["data"].([]interface{})
	if len(data) != 1 || data[0].(map[string]interface{})["classNumber"] != "Physics Class #1" {
		t.Fatalf("unexpected class list %v", data)
	}

	resp = doReq(t, http.MethodGet, app.url+"/classdetails", "", nil)
	decodeBody(t, resp, http.StatusBadRequest)
	resp = doReq(t, http.MethodGet, app.url+"/classdetails?mentorId=nobody", "", nil)
	decodeBody(t, resp, http.StatusNotFound)
}

var resetLink = regexp.MustCompile(`/resetpassword/([A-Za-z0-9_-]+)`)

func TestPasswordResetFlow(t *testing.T) {
	app := newTestApp(t, "body", "")
	register(t, app, "Gita", "g@x.com", "student")

	resp := doReq(t, http.MethodPost, app.url+"/requestResetPassword", "", map[string]string{"email": "g@x.com"})
	decodeBody(t, resp, http.StatusOK)
	match := resetLink.FindStringSubmatch(app.mailer.last().Body)
	if match == nil {
		t.Fatalf("reset email carries no link: %s", app.mailer.last().Body)
	}
	token := match[1]

	resp = doReq(t, http.MethodPut, app.url+"/resetPassword/"+token, "", map[string]string{"password": "newsecret"})
	decodeBody(t, resp, http.StatusOK)
	login(t, app, "g@x.com", "newsecret")

	resp = doReq(t, http.MethodPut, app.url+"/resetPassword/"+token, "", map[string]string{"password": "another1"})
	body := decodeBody(t, resp, http.StatusBadRequest)
	if body["error"] != "invalid_or_expired_token" {
		t.Fatalf("expected invalid_or_expired_token, got %v", body)
	}

	resp = doReq(t, http.MethodPost, app.url+"/requestResetPassword", "", map[string]string{"email": "nobody@x.com"})
	decodeBody(t, resp, http.StatusNotFound)
}

func TestPasswordResetRollsBackWhenMailFails(t *testing.T) {
	app := newTestApp(t, "body", "")
	register(t, app, "Hari", "h@x.com", "mentor")
	app.mailer.fail = true

	resp := doReq(t, http.MethodPost, app.url+"/requestResetPassword", "", map[string]string{"email": "h@x.com"})
	body := decodeBody(t, resp, http.StatusInternalServerError)
	if body["error"] != "send_error" {
		t.Fatalf("expected send_error, got %v", body)
	}
	user, err := app.store.FindOne(context.Background(), model.UserQuery{Email: "h@x.com"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.ResetTokenHash != nil || user.ResetTokenExpires != nil {
		t.Fatalf("reset token should be cleared after a failed send")
	}
}

func TestPasswordResetKeepsTokenWhenSendUnconfirmed(t *testing.T) {
	app := newTestApp(t, "body", "")
	register(t, app, "Indu", "in@x.com", "student")
	app.mailer.failWith = apperr.Wrap(apperr.KindInternal, apperr.CodeSendError, "Failed to send email",
		fmt.Errorf("%w after 10s", notify.ErrUnconfirmed))

	resp := doReq(t, http.MethodPost, app.url+"/requestResetPassword", "", map[string]string{"email": "in@x.com"})
	body := decodeBody(t, resp, http.StatusInternalServerError)
	if body["error"] != "send_error" {
		t.Fatalf("expected send_error, got %v", body)
	}
	user, err := app.store.FindOne(context.Background(), model.UserQuery{Email: "in@x.com"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.ResetTokenHash == nil || user.ResetTokenExpires == nil {
		t.Fatalf("a link that may still arrive must stay valid")
	}
}

func TestCookieDelivery(t *testing.T) {
	app := newTestApp(t, "cookie", "")
	register(t, app, "Ivan", "i@x.com", "student")

	resp := doReq(t, http.MethodPost, app.url+"/login", "", map[string]string{"email": "i@x.com", "password": "secret123"})
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	body := decodeBody(t, resp, http.StatusOK)
	if _, ok := body["token"]; ok {
		t.Fatalf("cookie mode must not return the token in the body")
	}
	if session == nil || session.Value == "" || !session.HttpOnly {
		t.Fatalf("expected http only session cookie, got %+v", session)
	}

	req, _ := http.NewRequest(http.MethodGet, app.url+"/currentuser", nil)
	req.AddCookie(session)
	me, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	decodeBody(t, me, http.StatusOK)

	resp = doReq(t, http.MethodDelete, app.url+"/logout", "", nil)
	cleared := false
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	decodeBody(t, resp, http.StatusOK)
	if !cleared {
		t.Fatalf("logout must clear the session cookie")
	}
}

func TestPayments(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_42"}`))
	}))
	defer gateway.Close()
	app := newTestApp(t, "body", gateway.URL)

	resp := doReq(t, http.MethodPost, app.url+"/createorder", "", map[string]interface{}{
		"amount": 50000, "currency": "INR", "receipt": "rcpt_1",
	})
	body := decodeBody(t, resp, http.StatusOK)
	if body["orderId"] != "order_42" {
		t.Fatalf("unexpected order %v", body)
	}

	good := payment.Sign(app.cfg.RazorpayKeySecret, "order_42", "pay_1")
	resp = doReq(t, http.MethodPost, app.url+"/verifypayment", "", map[string]string{
		"order_id": "order_42", "payment_id": "pay_1", "signature": good,
	})
	body = decodeBody(t, resp, http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("expected ok, got %v", body)
	}

	resp = doReq(t, http.MethodPost, app.url+"/verifypayment", "", map[string]string{
		"order_id": "order_42", "payment_id": "pay_2", "signature": good,
	})
	body = decodeBody(t, resp, http.StatusBadRequest)
	if body["error"] != "invalid_payment_signature" {
		t.Fatalf("expected invalid_payment_signature, got %v", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, "body", "")
	resp := doReq(t, http.MethodGet, app.url+"/health", "", nil)
	decodeBody(t, resp, http.StatusOK)

	resp = doReq(t, http.MethodGet, app.url+"/metrics", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", resp.StatusCode)
	}
}

func register(t *testing.T, app *testApp, name, email, role string) {
	t.Helper()
	registerWithTimezone(t, app, name, email, role, "")
}

func registerWithTimezone(t *testing.T, app *testApp, name, email, role, tz string) {
	t.Helper()
	resp := doReq(t, http.MethodPost, app.url+"/register", "", map[string]interface{}{
		"name": name + " Test", "email": email, "role": role, "password": "secret123", "timezone": tz,
	})
	decodeBody(t, resp, http.StatusOK)
}

func login(t *testing.T, app *testApp, email, password string) string {
	t.Helper()
	resp := doReq(t, http.MethodPost, app.url+"/login", "", map[string]string{"email": email, "password": password})
	body := decodeBody(t, resp, http.StatusOK)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token")
	}
	return token
}

func decodeBody(t *testing.T, resp *http.Response, status int) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != status {
		t.Fatalf("expected %d, got %d: %s", status, resp.StatusCode, raw)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return body
}

func doReq(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	return resp
}
