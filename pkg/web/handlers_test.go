package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/authn"
	"github.com/platinummonkey/gatehouse/pkg/idp"
	"github.com/platinummonkey/gatehouse/pkg/login"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/provision"
	"github.com/platinummonkey/gatehouse/pkg/session"
)

type stubExchanger struct {
	err error
}

func (s *stubExchanger) AuthCodeURL(state, nonce string) string {
	return fmt.Sprintf("https://provider.example/authorize?state=%s&nonce=%s", state, nonce)
}

func (s *stubExchanger) Exchange(_ context.Context, _ string) (*idp.TokenSet, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &idp.TokenSet{AccessToken: "access-token", RawIDToken: "raw-id-token"}, nil
}

type stubValidator struct {
	err error
}

func (s *stubValidator) Validate(_ context.Context, _, _ string) (*authn.IdentityClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &authn.IdentityClaims{
		Subject:     "idp|user-1",
		Email:       "alice@example.com",
		DisplayName: "Alice Example",
	}, nil
}

type webFixture struct {
	router    *mux.Router
	exchanger *stubExchanger
	validator *stubValidator
	sessions  *session.Manager
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(nil)

	states := login.NewStateStore(time.Minute, logger, metrics)
	exchanger := &stubExchanger{}
	validator := &stubValidator{}
	users := provision.NewMemoryStore()
	provisioner := provision.NewService(users, nil, logger)
	sessions := session.NewManager(session.NewMemoryStore(), users, time.Hour, logger, metrics)

	flow := login.NewFlow(states, exchanger, validator, provisioner, sessions, nil, logger, metrics)
	handlers := NewHandlers(flow, sessions, logger, Options{SecureCookies: true})

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return &webFixture{
		router:    router,
		exchanger: exchanger,
		validator: validator,
		sessions:  sessions,
	}
}

// beginLogin drives GET /auth/login and returns the issued state and the
// state-carrier cookie
func (fx *webFixture) beginLogin(t *testing.T, redirect string) (string, *http.Cookie) {
	t.Helper()
	target := "/auth/login"
	if redirect != "" {
		target += "?redirect=" + url.QueryEscape(redirect)
	}
	req := httptest.NewRequest("GET", target, nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	var stateCookie *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == stateCookieName {
			stateCookie = cookie
		}
	}
	require.NotNil(t, stateCookie)
	return state, stateCookie
}

func (fx *webFixture) callback(t *testing.T, state string, stateCookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", "/auth/callback?code=auth-code&state="+url.QueryEscape(state), nil)
	if stateCookie != nil {
		req.AddCookie(stateCookie)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == SessionCookieName && cookie.MaxAge > 0 {
			return cookie
		}
	}
	return nil
}

func TestLoginRedirectsToProvider(t *testing.T) {
	fx := newWebFixture(t)

	req := httptest.NewRequest("GET", "/auth/login?redirect=/dashboard", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "https://provider.example/authorize")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, stateCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
}

func TestCallbackSuccessSetsSessionAndRedirects(t *testing.T) {
	fx := newWebFixture(t)

	state, stateCookie := fx.beginLogin(t, "/dashboard")
	rec := fx.callback(t, state, stateCookie)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.NotEmpty(t, cookie.Value)
}

func TestCallbackRejectsMismatchedStateCookie(t *testing.T) {
	fx := newWebFixture(t)

	state, _ := fx.beginLogin(t, "/")
	// Cookie from a different browser session.
	rec := fx.callback(t, state, &http.Cookie{Name: stateCookieName, Value: "other"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, sessionCookie(t, rec))
}

func TestCallbackRejectsMissingStateCookie(t *testing.T) {
	fx := newWebFixture(t)

	state, _ := fx.beginLogin(t, "/")
	rec := fx.callback(t, state, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackRejectsReplay(t *testing.T) {
	fx := newWebFixture(t)

	state, stateCookie := fx.beginLogin(t, "/")
	first := fx.callback(t, state, stateCookie)
	require.Equal(t, http.StatusFound, first.Code)

	second := fx.callback(t, state, stateCookie)
	assert.Equal(t, http.StatusBadRequest, second.Code)
	assert.Nil(t, sessionCookie(t, second))
}

func TestCallbackProviderErrorReturnsGeneric401(t *testing.T) {
	fx := newWebFixture(t)

	req := httptest.NewRequest("GET", "/auth/callback?error=access_denied&error_description=secret+detail", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authentication failed", body["error"])
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestCallbackInvalidTokenReturns401(t *testing.T) {
	fx := newWebFixture(t)
	fx.validator.err = fmt.Errorf("%w: nonce mismatch", authn.ErrTokenInvalid)

	state, stateCookie := fx.beginLogin(t, "/")
	rec := fx.callback(t, state, stateCookie)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "nonce")
}

func TestCallbackExchangeFailureReturns502(t *testing.T) {
	fx := newWebFixture(t)
	fx.exchanger.err = fmt.Errorf("%w: provider returned 503", idp.ErrTokenExchange)

	state, stateCookie := fx.beginLogin(t, "/")
	rec := fx.callback(t, state, stateCookie)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMeReturnsAuthenticatedUser(t *testing.T) {
	fx := newWebFixture(t)

	state, stateCookie := fx.beginLogin(t, "/")
	rec := fx.callback(t, state, stateCookie)
	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
	meRec := httptest.NewRecorder()
	fx.router.ServeHTTP(meRec, req)

	assert.Equal(t, http.StatusOK, meRec.Code)

	var user provision.UserRecord
	require.NoError(t, json.Unmarshal(meRec.Body.Bytes(), &user))
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, provision.RoleUser, user.Role)
}

func TestMeWithoutSessionReturns401(t *testing.T) {
	fx := newWebFixture(t)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	fx := newWebFixture(t)

	state, stateCookie := fx.beginLogin(t, "/")
	rec := fx.callback(t, state, stateCookie)
	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)

	logoutReq := httptest.NewRequest("POST", "/auth/logout", nil)
	logoutReq.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
	logoutRec := httptest.NewRecorder()
	fx.router.ServeHTTP(logoutRec, logoutReq)

	assert.Equal(t, http.StatusNoContent, logoutRec.Code)

	// The revoked session no longer authenticates.
	meReq := httptest.NewRequest("GET", "/auth/me", nil)
	meReq.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
	meRec := httptest.NewRecorder()
	fx.router.ServeHTTP(meRec, meReq)
	assert.Equal(t, http.StatusUnauthorized, meRec.Code)
}

func TestLogoutWithoutSessionSucceeds(t *testing.T) {
	fx := newWebFixture(t)

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoginSanitizesAbsoluteRedirect(t *testing.T) {
	fx := newWebFixture(t)

	state, stateCookie := fx.beginLogin(t, "https://evil.example/phish")
	rec := fx.callback(t, state, stateCookie)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}
