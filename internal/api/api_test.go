package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/everforgeworks/idle-tycoon/internal/auth"
	"github.com/everforgeworks/idle-tycoon/internal/config"
	"github.com/everforgeworks/idle-tycoon/internal/game"
	"github.com/everforgeworks/idle-tycoon/internal/metrics"
	"github.com/everforgeworks/idle-tycoon/internal/session"
	"github.com/everforgeworks/idle-tycoon/internal/store"
)

const (
	identitySecret = "identity-secret"
	issuer         = "https://accounts.google.com"
	audience       = "idle-tycoon"
)

type harness struct {
	ts       *httptest.Server
	hub      *Hub
	srv      *Server
	sessions *session.Manager
	docs     *store.DocumentStore
}

func newHarness(t *testing.T, cfg config.ServerConfig) *harness {
	t.Helper()
	dir := t.TempDir()

	local, err := store.OpenLocal(filepath.Join(dir, "local"))
	require.NoError(t, err)
	docs, err := store.OpenDocuments(filepath.Join(dir, "documents.db"))
	require.NoError(t, err)
	gateway := store.NewGateway(local, docs, zap.NewNop())

	catalog, err := game.DefaultCatalog()
	require.NoError(t, err)

	m := metrics.New()
	hub := NewHub(m, zap.NewNop())
	sessions := session.NewManager(catalog, gateway, hub, m, zap.NewNop(), session.Options{AutoSaveInterval: time.Hour})

	provider, err := auth.NewProvider(auth.Options{
		Secret:           "session-secret",
		AllowedProviders: []string{"google.com"},
		TokenTTL:         time.Hour,
	}, auth.NewJWTVerifier(identitySecret, issuer, audience), gateway, zap.NewNop())
	require.NoError(t, err)

	srv := NewServer(cfg, sessions, provider, hub, m, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(hubDone)
	}()
	ts := httptest.NewServer(srv.Routes())

	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-hubDone
		srv.Close()
		_ = sessions.Shutdown(context.Background())
		_ = local.Close()
		_ = docs.Close()
	})
	return &harness{ts: ts, srv: srv, hub: hub, sessions: sessions, docs: docs}
}

func defaultServerConfig() config.ServerConfig {
	return config.Default().Server
}

func identityToken(t *testing.T, subject, email string) string {
	t.Helper()
	tok, err := auth.MintIdentityToken(identitySecret, issuer, audience, auth.Identity{
		Provider: "google.com",
		Subject:  subject,
		Email:    email,
	}, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (h *harness) signIn(t *testing.T, subject string) AuthResponse {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/auth/signin", "", CredentialRequest{IDToken: identityToken(t, subject, subject+"@example.com")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[AuthResponse](t, resp)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, defaultServerConfig())

	resp := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignInOpensSession(t *testing.T) {
	h := newHarness(t, defaultServerConfig())

	signed := h.signIn(t, "1001")
	assert.Equal(t, auth.UserID("google.com", "1001"), signed.User.UID)
	assert.NotEmpty(t, signed.Token)
	assert.NotNil(t, h.sessions.Get(signed.User.UID))

	resp := h.do(t, http.MethodGet, "/api/auth/me", signed.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[auth.User](t, resp)
	assert.Equal(t, "1001@example.com", me.Email)

	doc, err := h.docs.Get(context.Background(), signed.User.UID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "1001@example.com", doc.Email.String)
}

func TestSignInFailureUsesMessageTable(t *testing.T) {
	h := newHarness(t, defaultServerConfig())

	resp := h.do(t, http.MethodPost, "/api/auth/signup", "", CredentialRequest{IDToken: "garbage"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decode[AuthErrorResponse](t, resp)
	assert.Equal(t, auth.CodeInvalidCredential, body.Code)
	assert.Equal(t, "Invalid credentials. Please try again.", body.Message)
}

func TestGameRoutesRequireToken(t *testing.T) {
	h := newHarness(t, defaultServerConfig())

	for _, path := range []string{"/api/state", "/api/auth/me"} {
		resp := h.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := h.do(t, http.MethodPost, "/api/click", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClickAndPurchaseFlow(t *testing.T) {
	h := newHarness(t, defaultServerConfig())
	token := h.signIn(t, "1001").Token

	resp := h.do(t, http.MethodGet, "/api/state", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[StateResponse](t, resp)
	assert.Equal(t, 0.0, st.State.Money)
	assert.Equal(t, 1.0, st.State.ClickValue)

	resp = h.do(t, http.MethodPost, "/api/businesses/buy", token, BuyBusinessRequest{BusinessID: "lemonade_stand"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "rejections are not errors")
	st = decode[StateResponse](t, resp)
	assert.False(t, st.Applied)
	assert.Equal(t, game.InsufficientFunds, st.Outcome)

	for i := 0; i < 10; i++ {
		resp = h.do(t, http.MethodPost, "/api/click", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	st = decode[StateResponse](t, resp)
	assert.Equal(t, 10.0, st.State.Money)
	assert.Equal(t, int64(10), st.State.Clicks)

	resp = h.do(t, http.MethodPost, "/api/businesses/buy", token, BuyBusinessRequest{BusinessID: "lemonade_stand"})
	st = decode[StateResponse](t, resp)
	assert.True(t, st.Applied)
	assert.Equal(t, 0.0, st.State.Money)
	assert.Equal(t, 1, st.State.Businesses[0].Owned)
	assert.Equal(t, 11.0, st.State.Businesses[0].Cost)

	resp = h.do(t, http.MethodPost, "/api/upgrades/buy", token, BuyUpgradeRequest{UpgradeID: "no_such_upgrade"})
	st = decode[StateResponse](t, resp)
	assert.Equal(t, game.UnknownID, st.Outcome)

	resp = h.do(t, http.MethodPost, "/api/businesses/buy", token, map[string]int{"business_id": 5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSaveLoadAndReset(t *testing.T) {
	h := newHarness(t, defaultServerConfig())
	token := h.signIn(t, "1001").Token

	resp := h.do(t, http.MethodPost, "/api/load", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "nothing saved yet")

	resp = h.do(t, http.MethodPost, "/api/load", token, LoadRequest{GameState: &game.SavedState{
		Money:      250,
		Businesses: []game.SavedBusiness{{ID: "lemonade_stand", Owned: 3}},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[StateResponse](t, resp)
	assert.Equal(t, 250.0, st.State.Money)
	assert.Equal(t, 3, st.State.Businesses[0].Owned)

	resp = h.do(t, http.MethodPost, "/api/save", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decode[StateResponse](t, resp)
	assert.NotZero(t, saved.State.LastSaveTime)

	resp = h.do(t, http.MethodPost, "/api/reset", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decode[StateResponse](t, resp)
	assert.Equal(t, 0.0, st.State.Money)
	assert.Equal(t, 0, st.State.Businesses[0].Owned)

	resp = h.do(t, http.MethodPost, "/api/load", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decode[StateResponse](t, resp)
	assert.Equal(t, 250.0, st.State.Money, "the remote save comes back")
}

func TestSaveFailureMessage(t *testing.T) {
	h := newHarness(t, defaultServerConfig())
	token := h.signIn(t, "1001").Token

	require.NoError(t, h.docs.Close())
	resp := h.do(t, http.MethodPost, "/api/save", token, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body bytes.Buffer
	_, err := body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Failed to save game. Please try again.", strings.TrimSpace(body.String()))
}

func TestAutoSaveToggle(t *testing.T) {
	h := newHarness(t, defaultServerConfig())
	token := h.signIn(t, "1001").Token

	resp := h.do(t, http.MethodPost, "/api/autosave", token, AutoSaveRequest{Enabled: false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[StateResponse](t, resp).AutoSave)

	resp = h.do(t, http.MethodPost, "/api/autosave", token, AutoSaveRequest{Enabled: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[StateResponse](t, resp).AutoSave)
}

func TestAutoSaveAfterSessionClosed(t *testing.T) {
	h := newHarness(t, defaultServerConfig())
	user := h.signIn(t, "1001").User
	h.sessions.Close(context.Background(), user.UID)

	body, err := json.Marshal(AutoSaveRequest{Enabled: true})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/autosave", bytes.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), userKey, user))
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() { h.srv.HandleAutoSave(rec, req) })
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignOutRevokesAndClosesSession(t *testing.T) {
	h := newHarness(t, defaultServerConfig())
	signed := h.signIn(t, "1001")

	resp := h.do(t, http.MethodPost, "/api/auth/signout", signed.Token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Nil(t, h.sessions.Get(signed.User.UID))

	resp = h.do(t, http.MethodGet, "/api/state", signed.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntentRateLimit(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.ClickRate = 0.001
	cfg.ClickBurst = 2
	h := newHarness(t, cfg)
	token := h.signIn(t, "1001").Token

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/click", token, nil).StatusCode)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/click", token, nil).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodPost, "/api/click", token, nil).StatusCode)

	other := h.signIn(t, "2002").Token
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/click", other, nil).StatusCode, "limits are per user")

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/state", token, nil).StatusCode, "reads are not limited")
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, defaultServerConfig())

	resp := h.do(t, http.MethodOptions, "/api/click", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func dialWs(t *testing.T, h *harness, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Sender  string          `json:"sender"`
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebsocketIntents(t *testing.T) {
	h := newHarness(t, defaultServerConfig())
	signed := h.signIn(t, "1001")
	conn := dialWs(t, h, signed.Token)

	require.NoError(t, conn.WriteJSON(Intent{Type: "click"}))
	f := readFrame(t, conn)
	require.Equal(t, "intent_result", f.Type)
	var st StateResponse
	require.NoError(t, json.Unmarshal(f.Payload, &st))
	assert.Equal(t, 1.0, st.State.Money)

	require.NoError(t, conn.WriteJSON(Intent{Type: "buy_upgrade", ID: "click_x2"}))
	f = readFrame(t, conn)
	require.NoError(t, json.Unmarshal(f.Payload, &st))
	assert.False(t, st.Applied)
	assert.Equal(t, game.InsufficientFunds, st.Outcome)

	require.NoError(t, conn.WriteJSON(Intent{Type: "dance"}))
	assert.Equal(t, "error", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "error", readFrame(t, conn).Type)
}

func TestWebsocketRequiresToken(t *testing.T) {
	h := newHarness(t, defaultServerConfig())

	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubDeliversPerUser(t *testing.T) {
	h := newHarness(t, defaultServerConfig())
	alice := h.signIn(t, "1001")
	bob := h.signIn(t, "2002")

	aliceConn := dialWs(t, h, alice.Token)
	bobConn := dialWs(t, h, bob.Token)

	// Round-trip an intent on each socket so both are registered.
	for _, c := range []*websocket.Conn{aliceConn, bobConn} {
		require.NoError(t, c.WriteJSON(Intent{Type: "click"}))
		readFrame(t, c)
	}

	h.hub.Publish(alice.User.UID, session.PulseType, map[string]float64{"money": 42})
	f := readFrame(t, aliceConn)
	assert.Equal(t, session.PulseType, f.Type)
	assert.JSONEq(t, `{"money":42}`, string(f.Payload))

	h.hub.Publish(bob.User.UID, session.PulseType, map[string]float64{"money": 7})
	f = readFrame(t, bobConn)
	assert.JSONEq(t, `{"money":7}`, string(f.Payload), "bob only sees his own pulse")
}

func TestStatePulseReachesClient(t *testing.T) {
	h := newHarness(t, defaultServerConfig())
	signed := h.signIn(t, "1001")
	conn := dialWs(t, h, signed.Token)

	require.NoError(t, conn.WriteJSON(Intent{Type: "click"}))
	readFrame(t, conn)

	h.sessions.TickAll(true)
	f := readFrame(t, conn)
	require.Equal(t, session.PulseType, f.Type)
	var view game.View
	require.NoError(t, json.Unmarshal(f.Payload, &view))
	assert.Equal(t, 1.0, view.Money)
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	l := NewRateLimiter(1, 1)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))

	now = now.Add(time.Hour)
	for i := 0; i < 1024; i++ {
		l.Allow("bob")
	}
	l.mu.Lock()
	_, ok := l.visitors["alice"]
	l.mu.Unlock()
	assert.False(t, ok)
}
