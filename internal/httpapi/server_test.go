package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/financeai/internal/accounts"
	"github.com/ent0n29/financeai/internal/assistant"
	"github.com/ent0n29/financeai/internal/chat"
	"github.com/ent0n29/financeai/internal/config"
	"github.com/ent0n29/financeai/internal/finance"
	"github.com/ent0n29/financeai/internal/memory"
	"github.com/ent0n29/financeai/internal/observability"
	"github.com/ent0n29/financeai/internal/profiles"
	"github.com/ent0n29/financeai/internal/session"
)

const spendReply = "Based on the transaction data you've shared, you spent approximately $370 last month on items like groceries and car insurance. Would you like a more detailed breakdown by category?"

var metricsSeq atomic.Int64

type failingProvider struct{}

func (failingProvider) Fetch(context.Context, string) (finance.Record, error) {
	return nil, finance.ErrUnavailable
}

func newTestServer(t *testing.T, provider finance.Provider, google *accounts.GoogleLogin) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		FinanceProviderMode:      "static",
		AssistantBrain:           "rules",
	}
	if provider == nil {
		provider = finance.NewStaticProvider()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", metricsSeq.Add(1)))
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	chatSvc, err := chat.NewService(chat.Options{
		Sessions: sessions,
		Store:    memory.NewInMemoryStore(),
		Provider: provider,
		Engine:   assistant.NewEngine(assistant.NewRulesBrain()),
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("chat.NewService() error = %v", err)
	}
	sessions.SetExpireHook(chatSvc.Forget)

	srv := New(Deps{
		Config:    cfg,
		Sessions:  sessions,
		Chat:      chatSvc,
		Accounts:  accounts.NewService(accounts.NewInMemoryStore()),
		Profiles:  profiles.NewService(profiles.NewInMemoryStore()),
		Google:    google,
		Metrics:   metrics,
		Logger:    logger,
		StoreMode: "in-memory",
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, rawURL, sessionID, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, rawURL, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, rawURL, err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	var payload map[string]any
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, rawURL, err, raw)
		}
	}
	return res, payload
}

func TestCreateAndEndSession(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	res, created := doJSON(t, http.MethodPost, ts.URL+"/v1/session", "", `{"user_id":"user-1"}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	sessionID, _ := created["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id in create response: %+v", created)
	}
	if created["user_id"] != "user-1" {
		t.Fatalf("user_id = %v, want user-1", created["user_id"])
	}

	endRes, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/session/"+sessionID+"/end", "", "")
	if endRes.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", endRes.StatusCode, http.StatusOK)
	}
	missing, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/session/nope/end", "", "")
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("end unknown status = %d, want %d", missing.StatusCode, http.StatusNotFound)
	}
}

func TestTruncatedBodyIsRejected(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	res, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/session", "", `{"user_id":`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("create session status = %d, want 400", res.StatusCode)
	}
	res, _ = doJSON(t, http.MethodPost, ts.URL+"/api/register/", "", `{"email":"a@b.c"`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("register status = %d, want 400", res.StatusCode)
	}
	res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/login/", "", `{"email":`)
	if res.StatusCode != http.StatusBadRequest || payload["error"] != "Invalid JSON." {
		t.Fatalf("login = %d %+v, want 400 Invalid JSON.", res.StatusCode, payload)
	}

	// An absent body still creates an anonymous session.
	res, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/session", "", "")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create session without body status = %d, want 201", res.StatusCode)
	}
}

func TestChatSpendingQuestion(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/chat/", "", `{"message":"How much did I spend last month?"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%+v)", res.StatusCode, payload)
	}
	if payload["reply"] != spendReply {
		t.Fatalf("reply = %v", payload["reply"])
	}
	if res.Header.Get(sessionHeader) == "" {
		t.Fatalf("missing %s header", sessionHeader)
	}
	var cookie bool
	for _, c := range res.Cookies() {
		if c.Name == sessionCookie && c.Value == res.Header.Get(sessionHeader) {
			cookie = true
		}
	}
	if !cookie {
		t.Fatalf("session cookie not set")
	}
}

func TestChatRespectsRevokedPermission(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/permissions/", "", `{"category":"credit_score","has_access":false}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("permissions status = %d (%+v)", res.StatusCode, payload)
	}
	if payload["status"] != "success" || payload["message"] != "Permissions for credit_score updated." {
		t.Fatalf("unexpected permissions payload: %+v", payload)
	}
	sessionID := res.Header.Get(sessionHeader)

	_, payload = doJSON(t, http.MethodPost, ts.URL+"/api/chat/", sessionID, `{"message":"What's my credit score?"}`)
	want := "I am unable to answer that question. You have not granted access to your credit score data."
	if payload["reply"] != want {
		t.Fatalf("reply = %v, want %q", payload["reply"], want)
	}

	_, payload = doJSON(t, http.MethodGet, ts.URL+"/api/chat/history/", sessionID, "")
	history, _ := payload["history"].([]any)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	first := history[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "What's my credit score?" {
		t.Fatalf("unexpected first turn: %+v", first)
	}

	_, payload = doJSON(t, http.MethodGet, ts.URL+"/api/permissions/history/", sessionID, "")
	changes, _ := payload["history"].([]any)
	if len(changes) != 1 || changes[0].(map[string]any)["action"] != "revoked" {
		t.Fatalf("unexpected permission history: %+v", payload)
	}
}

func TestChatErrors(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	cases := []struct {
		name    string
		method  string
		body    string
		status  int
		message string
	}{
		{"empty message", http.MethodPost, `{"message":""}`, http.StatusBadRequest, "Message cannot be empty."},
		{"missing message", http.MethodPost, `{}`, http.StatusBadRequest, "Message cannot be empty."},
		{"malformed", http.MethodPost, `{"message":`, http.StatusBadRequest, "Invalid JSON."},
		{"no body", http.MethodPost, ``, http.StatusBadRequest, "Invalid JSON."},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed, "Only POST method is allowed."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, payload := doJSON(t, tc.method, ts.URL+"/api/chat/", "", tc.body)
			if res.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tc.status)
			}
			if payload["status"] != "error" || payload["message"] != tc.message {
				t.Fatalf("payload = %+v, want message %q", payload, tc.message)
			}
		})
	}
}

func TestChatProviderUnavailable(t *testing.T) {
	ts := newTestServer(t, failingProvider{}, nil)

	res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/chat/", "", `{"message":"How much did I spend last month?"}`)
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", res.StatusCode)
	}
	if payload["reply"] != "Sorry, I am unable to access your financial data at the moment." {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	_, payload = doJSON(t, http.MethodGet, ts.URL+"/api/chat/history/", res.Header.Get(sessionHeader), "")
	if history, _ := payload["history"].([]any); len(history) != 0 {
		t.Fatalf("history = %+v, want empty", history)
	}
}

func TestPermissionsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	res, payload := doJSON(t, http.MethodGet, ts.URL+"/api/permissions/", "", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	perms, _ := payload["permissions"].(map[string]any)
	if len(perms) != 6 {
		t.Fatalf("permissions = %+v, want six categories", perms)
	}
	for k, v := range perms {
		if v != true {
			t.Fatalf("permission %s = %v, want true", k, v)
		}
	}
	sessionID := res.Header.Get(sessionHeader)

	res, payload = doJSON(t, http.MethodPost, ts.URL+"/api/permissions/", sessionID, `{"category":"investments"}`)
	if res.StatusCode != http.StatusBadRequest || payload["message"] != "Missing category or access status." {
		t.Fatalf("missing has_access: status=%d payload=%+v", res.StatusCode, payload)
	}

	res, payload = doJSON(t, http.MethodPost, ts.URL+"/api/permissions/preset/", sessionID, `{"preset":"restrictive"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("preset status = %d (%+v)", res.StatusCode, payload)
	}
	perms, _ = payload["permissions"].(map[string]any)
	for k, v := range perms {
		if v != false {
			t.Fatalf("permission %s = %v after restrictive preset", k, v)
		}
	}

	res, _ = doJSON(t, http.MethodPost, ts.URL+"/api/permissions/preset/", sessionID, `{"preset":"nope"}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown preset status = %d, want 400", res.StatusCode)
	}

	res, payload = doJSON(t, http.MethodGet, ts.URL+"/api/permissions/presets/", "", "")
	if presets, _ := payload["presets"].([]any); res.StatusCode != http.StatusOK || len(presets) != 3 {
		t.Fatalf("presets: status=%d payload=%+v", res.StatusCode, payload)
	}

	res, payload = doJSON(t, http.MethodPut, ts.URL+"/api/permissions/", sessionID, `{}`)
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("PUT status = %d, want 405 (%+v)", res.StatusCode, payload)
	}
}

func TestClearHistory(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	res, _ := doJSON(t, http.MethodPost, ts.URL+"/api/chat/", "", `{"message":"hello"}`)
	sessionID := res.Header.Get(sessionHeader)

	res, payload := doJSON(t, http.MethodDelete, ts.URL+"/api/chat/history/", sessionID, "")
	if res.StatusCode != http.StatusOK || payload["status"] != "success" {
		t.Fatalf("clear: status=%d payload=%+v", res.StatusCode, payload)
	}
	_, payload = doJSON(t, http.MethodGet, ts.URL+"/api/chat/history/", sessionID, "")
	if history, _ := payload["history"].([]any); len(history) != 0 {
		t.Fatalf("history after clear = %+v", history)
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	body := `{"email":"asha@example.com","password":"pw-123456","password2":"pw-123456","first_name":"Asha"}`

	res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/register/", "", body)
	if res.StatusCode != http.StatusCreated || payload["success"] != true {
		t.Fatalf("register: status=%d payload=%+v", res.StatusCode, payload)
	}
	res, payload = doJSON(t, http.MethodPost, ts.URL+"/api/register/", "", `{"email":"b@example.com","password":"a","password2":"b"}`)
	if res.StatusCode != http.StatusBadRequest || payload["success"] != false {
		t.Fatalf("mismatch: status=%d payload=%+v", res.StatusCode, payload)
	}

	res, payload = doJSON(t, http.MethodPost, ts.URL+"/api/login/", "", `{"email":"asha@example.com","password":"wrong"}`)
	if res.StatusCode != http.StatusUnauthorized || payload["error"] != "Invalid Credentials" {
		t.Fatalf("bad login: status=%d payload=%+v", res.StatusCode, payload)
	}

	res, payload = doJSON(t, http.MethodPost, ts.URL+"/api/login/", "", `{"email":"asha@example.com","password":"pw-123456"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d (%+v)", res.StatusCode, payload)
	}
	token, _ := payload["token"].(string)
	info, _ := payload["user_info"].(map[string]any)
	if token == "" || info["username"] != "asha@example.com" {
		t.Fatalf("unexpected login payload: %+v", payload)
	}

	// Sessions opened with a token belong to that user.
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/session", nil)
	req.Header.Set("Authorization", "Token "+token)
	sessRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create session error = %v", err)
	}
	var created map[string]any
	_ = json.NewDecoder(sessRes.Body).Decode(&created)
	sessRes.Body.Close()
	if created["user_id"] != info["id"] {
		t.Fatalf("session user_id = %v, want %v", created["user_id"], info["id"])
	}

	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/api/logout/", nil)
	req.Header.Set("Authorization", "Token "+token)
	logoutRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout error = %v", err)
	}
	logoutRes.Body.Close()
	if logoutRes.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", logoutRes.StatusCode)
	}
}

func TestFinancialProfile(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	res, payload := doJSON(t, http.MethodPost, ts.URL+"/api/financial-profile/", "",
		`{"user":"u1","net_worth":"1000.50","monthly_budget":"200","total_balance":"50","monthly_spending":"370","investments":"0","credit_score":720}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d (%+v)", res.StatusCode, payload)
	}
	if payload["net_worth"] != "1000.5" || payload["credit_score"] != float64(720) {
		t.Fatalf("unexpected profile: %+v", payload)
	}

	res, payload = doJSON(t, http.MethodPost, ts.URL+"/api/financial-profile/", "", `{"user":"u1","credit_score":100}`)
	if res.StatusCode != http.StatusBadRequest || payload["credit_score"] == nil {
		t.Fatalf("invalid profile: status=%d payload=%+v", res.StatusCode, payload)
	}

	listRes, err := http.Get(ts.URL + "/api/financial-profile/")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	defer listRes.Body.Close()
	var all []map[string]any
	if err := json.NewDecoder(listRes.Body).Decode(&all); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("profiles = %d, want 1", len(all))
	}
}

func TestGoogleLogin(t *testing.T) {
	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	disabled := newTestServer(t, nil, nil)
	res, err := noRedirect.Get(disabled.URL + "/auth/google/login/")
	if err != nil {
		t.Fatalf("GET login error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured status = %d, want 503", res.StatusCode)
	}

	ts := newTestServer(t, nil, accounts.NewGoogleLogin("client-1", "secret", "http://localhost/auth/google/callback/"))
	res, err = noRedirect.Get(ts.URL + "/auth/google/login/")
	if err != nil {
		t.Fatalf("GET login error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusFound {
		t.Fatalf("login status = %d, want 302", res.StatusCode)
	}
	loc, _ := url.Parse(res.Header.Get("Location"))
	state := loc.Query().Get("state")
	if loc.Host != "accounts.google.com" || state == "" {
		t.Fatalf("unexpected redirect %q", loc)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/auth/google/callback/?code=abc&state="+url.QueryEscape(state), nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: state})
	res, err = noRedirect.Do(req)
	if err != nil {
		t.Fatalf("callback error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusFound || res.Header.Get("Location") != "/" {
		t.Fatalf("callback status = %d location = %q", res.StatusCode, res.Header.Get("Location"))
	}

	res, err = noRedirect.Get(ts.URL + "/auth/google/callback/?code=abc&state=forged")
	if err != nil {
		t.Fatalf("callback error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("forged callback status = %d, want 400", res.StatusCode)
	}
}

func TestChatWebSocket(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"

	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	sessionID := res.Header.Get(sessionHeader)
	if sessionID == "" {
		t.Fatalf("missing %s on upgrade response", sessionHeader)
	}

	read := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return msg
	}

	if msg := read(); msg["type"] != "system_event" || msg["code"] != "session_ready" {
		t.Fatalf("first message = %+v", msg)
	}

	send := func(v string) {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(v)); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	send(`{"type":"permission_update","category":"investments","has_access":false}`)
	msg := read()
	perms, _ := msg["permissions"].(map[string]any)
	if msg["type"] != "permissions_snapshot" || perms["investments"] != false || perms["assets"] != true {
		t.Fatalf("unexpected snapshot: %+v", msg)
	}

	send(`{"type":"chat_message","message":"Show my investment portfolio"}`)
	msg = read()
	if msg["type"] != "assistant_reply" || msg["reply"] != "To discuss your portfolio, I need access to your investment data. Please update your privacy settings." {
		t.Fatalf("unexpected reply: %+v", msg)
	}

	send(`{"type":"chat_message","message":""}`)
	msg = read()
	if msg["type"] != "error_event" || msg["detail"] != "Message cannot be empty." {
		t.Fatalf("unexpected error event: %+v", msg)
	}

	send(`not json`)
	if msg = read(); msg["code"] != "invalid_client_message" {
		t.Fatalf("unexpected parse error event: %+v", msg)
	}

	send(`{"type":"client_control","action":"get_history"}`)
	msg = read()
	history, _ := msg["history"].([]any)
	if msg["type"] != "history_snapshot" || len(history) != 2 {
		t.Fatalf("unexpected history snapshot: %+v", msg)
	}

	send(`{"type":"client_control","action":"end_session"}`)
	if msg = read(); msg["code"] != "session_ended" {
		t.Fatalf("unexpected end event: %+v", msg)
	}
}

func TestPerfLatencyAndHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	_, _ = doJSON(t, http.MethodPost, ts.URL+"/api/chat/", "", `{"message":"hi"}`)

	res, payload := doJSON(t, http.MethodGet, ts.URL+"/v1/perf/latency", "", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("perf status = %d", res.StatusCode)
	}
	stages, _ := payload["stages"].([]any)
	if len(stages) != 3 {
		t.Fatalf("stages = %+v, want fetch_record, respond and chat_total", stages)
	}

	res, payload = doJSON(t, http.MethodGet, ts.URL+"/healthz", "", "")
	if res.StatusCode != http.StatusOK || payload["store_mode"] != "in-memory" {
		t.Fatalf("health: status=%d payload=%+v", res.StatusCode, payload)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Token abc":  "abc",
		"bearer xyz": "xyz",
		"Basic zzz":  "",
		"":           "",
		"Token ":     "",
	}
	for header, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := bearerToken(r); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
