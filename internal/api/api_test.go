package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/airfi/airfi-portal/internal/auth"
	"github.com/airfi/airfi-portal/internal/authz"
	"github.com/airfi/airfi-portal/internal/db"
	"github.com/airfi/airfi-portal/internal/gate"
	"github.com/airfi/airfi-portal/internal/guest"
)

type fakeRouter struct {
	mu   sync.Mutex
	macs []string
	err  error
}

func (r *fakeRouter) AuthorizeMAC(ctx context.Context, mac string, minutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.macs = append(r.macs, mac)
	return r.err
}

func (r *fakeRouter) TestConnection(ctx context.Context) error { return nil }

type testServer struct {
	router    *Router
	store     *db.DB
	ctrl      *fakeRouter
	passwords *guest.Generator
	jwt       *auth.JWTService
	user      *db.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	passwords, err := guest.NewGenerator("secret", []string{"red", "green", "blue", "cyan"}, time.UTC, nil)
	require.NoError(t, err)

	ctrl := &fakeRouter{}
	engine, err := authz.NewEngine(authz.Config{
		Store:     store,
		Router:    ctrl,
		Passwords: passwords,
		Settings: authz.Settings{
			AuthenticatedMinutes:         262800,
			GuestMinutes:                 1440,
			Retention:                    7 * 24 * time.Hour,
			AuthenticatedSuccessRedirect: "https://google.com/",
			GuestSuccessRedirect:         "https://example.org/welcome",
		},
	})
	require.NoError(t, err)

	keyPair, err := auth.GenerateKeyPair()
	require.NoError(t, err)
	jwtService := auth.NewJWTService(keyPair, "airfi-portal")

	handler := NewHandler(engine, store, jwtService, Settings{
		Gate: gate.Settings{
			TrustedOperatorIP:     "127.0.0.1",
			PortalTriggerRedirect: "http://example.com/",
		},
		SessionDuration: time.Hour,
	}, zap.NewNop())

	router, err := NewRouter(handler, RouterConfig{Gatherer: prometheus.NewRegistry()})
	require.NoError(t, err)

	user, err := store.CreateUser(context.Background(), "alice", "hunter22", true)
	require.NoError(t, err)

	return &testServer{router: router, store: store, ctrl: ctrl, passwords: passwords, jwt: jwtService, user: user}
}

func (s *testServer) token(t *testing.T) string {
	t.Helper()
	token, err := s.jwt.GenerateToken(s.user.ID, s.user.Username, s.user.IsStaff, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLandingWithoutMAC(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://example.com/", w.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/guest/s/default/", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w = s.do(req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/ui/", w.Header().Get("Location"))
}

func TestLandingShowsGuestChallenge(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/guest/s/default/?id=aa:bb:cc:dd:ee:ff", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `action="/authorize_guest"`)
	assert.Contains(t, body, `value="aa:bb:cc:dd:ee:ff"`)
	assert.NotContains(t, body, "Incorrect guest password")

	w = s.do(httptest.NewRequest(http.MethodGet, "/?id=aa:bb:cc:dd:ee:ff&error=incorrect_guest_password", nil))
	assert.Contains(t, w.Body.String(), "Incorrect guest password")
	assert.Empty(t, s.ctrl.macs)
}

func TestLandingAuthorizesSignedInDevice(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/?id=AA-BB-CC-DD-EE-FF", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: s.token(t)})
	w := s.do(req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://google.com/", w.Header().Get("Location"))
	assert.Equal(t, []string{"aa:bb:cc:dd:ee:ff"}, s.ctrl.macs)

	records, err := s.store.ListAuthorizationsByUser(context.Background(), s.user.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.WithinDuration(t, time.Now().Add(262800*time.Minute), records[0].AuthorizedUntil, time.Minute)
}

func TestLandingIgnoresInvalidSession(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/?id=aa:bb:cc:dd:ee:ff", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := s.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Guest access")
	assert.Empty(t, s.ctrl.macs)
}

func TestAuthorizeGuestIncorrectPassword(t *testing.T) {
	s := newTestServer(t)

	w := s.do(postForm("/authorize_guest", url.Values{
		"mac":            {"aa:bb:cc:dd:ee:ff"},
		"guest_password": {"wrong"},
	}))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/?id=aa%3Abb%3Acc%3Add%3Aee%3Aff&error=incorrect_guest_password", w.Header().Get("Location"))
	assert.Empty(t, s.ctrl.macs)
}

func TestAuthorizeGuestSuccess(t *testing.T) {
	s := newTestServer(t)

	w := s.do(postForm("/authorize_guest", url.Values{
		"mac":            {"aabbccddeeff"},
		"guest_password": {s.passwords.Current()},
	}))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.org/welcome", w.Header().Get("Location"))
	assert.Equal(t, []string{"aa:bb:cc:dd:ee:ff"}, s.ctrl.macs)

	records, err := s.store.ListAuthorizations(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsGuest())
}

func TestAuthorizeGuestBadMAC(t *testing.T) {
	s := newTestServer(t)

	w := s.do(postForm("/authorize_guest", url.Values{"guest_password": {s.passwords.Current()}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(postForm("/authorize_guest", url.Values{
		"mac":            {"zz:zz:zz:zz:zz:zz"},
		"guest_password": {s.passwords.Current()},
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.ctrl.macs)
}

func TestAuthorizeGuestControllerFailure(t *testing.T) {
	s := newTestServer(t)
	s.ctrl.err = errors.New("controller unreachable")

	w := s.do(postForm("/authorize_guest", url.Values{
		"mac":            {"aa:bb:cc:dd:ee:ff"},
		"guest_password": {s.passwords.Current()},
	}))
	require.Equal(t, http.StatusBadGateway, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body["authorization_id"])

	stored, err := s.store.GetAuthorization(context.Background(), body["authorization_id"])
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", stored.MACAddress)
}

func TestLoginAndProfile(t *testing.T) {
	s := newTestServer(t)

	w := s.do(postForm("/accounts/login", url.Values{"username": {"alice"}, "password": {"hunter22"}}))
	require.Equal(t, http.StatusOK, w.Code)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/accounts/profile", nil)
	req.AddCookie(cookie)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)

	w = s.do(postForm("/accounts/login", url.Values{"username": {"alice"}, "password": {"nope"}}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(postForm("/accounts/login", url.Values{"username": {"alice"}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginPageFlow(t *testing.T) {
	s := newTestServer(t)

	landing := s.do(httptest.NewRequest(http.MethodGet, "/?id=aa:bb:cc:dd:ee:ff", nil))
	require.Contains(t, landing.Body.String(), `href="/accounts/login?next=/ui/"`)

	w := s.do(httptest.NewRequest(http.MethodGet, "/accounts/login?next=/ui/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="/accounts/login"`)
	assert.Contains(t, w.Body.String(), `value="/ui/"`)

	w = s.do(postForm("/accounts/login", url.Values{
		"username": {"alice"}, "password": {"hunter22"}, "next": {"/ui/log"},
	}))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/ui/log", w.Header().Get("Location"))
	assert.NotEmpty(t, w.Result().Cookies())

	w = s.do(postForm("/accounts/login", url.Values{
		"username": {"alice"}, "password": {"hunter22"}, "next": {"//evil.example/"},
	}))
	assert.Equal(t, "/ui/", w.Header().Get("Location"))

	w = s.do(postForm("/accounts/login", url.Values{
		"username": {"alice"}, "password": {"nope"}, "next": {"/ui/"},
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid username or password")
}

func TestOperatorViewsRequireSession(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/ui/", "/ui/guest-password", "/ui/log", "/ui/my-devices", "/accounts/profile"} {
		w := s.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestDeactivatedUserLosesSession(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t)
	require.NoError(t, s.store.SetUserActive(context.Background(), s.user.ID, false))

	req := httptest.NewRequest(http.MethodGet, "/ui/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := s.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuestPasswordView(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ui/guest-password", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t))
	w := s.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, s.passwords.Current(), body["guest_password"])
	assert.Equal(t, s.passwords.Today(), body["date"])
}

func TestNetregAndDeviceLists(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t)

	req := postForm("/ui/netreg", url.Values{"mac_address": {"00-11-22-33-44-55"}})
	req.Header.Set("Authorization", "Bearer "+token)
	w := s.do(req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Device registered")

	req = postForm("/ui/netreg", url.Values{"mac_address": {"bogus"}})
	req.Header.Set("Authorization", "Bearer "+token)
	w = s.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	err := s.store.CreateAuthorization(context.Background(), &db.Authorization{
		MACAddress:      "66:77:88:99:aa:bb",
		CreatedAt:       time.Now().Add(-time.Hour),
		AuthorizedUntil: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	var body struct {
		Authorizations []authz.RecordView `json:"authorizations"`
	}

	req = httptest.NewRequest(http.MethodGet, "/ui/my-devices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Authorizations, 1)
	assert.Equal(t, "00:11:22:33:44:55", body.Authorizations[0].MACAddress)
	assert.Equal(t, "alice", body.Authorizations[0].Username)

	req = httptest.NewRequest(http.MethodGet, "/ui/log", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Authorizations, 2)
	assert.Equal(t, "00:11:22:33:44:55", body.Authorizations[0].MACAddress)
	assert.True(t, body.Authorizations[1].Guest)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := s.do(req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
