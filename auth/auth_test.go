package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/korylprince/agent-neo/api"
	"github.com/korylprince/agent-neo/storage"
)

var testConfig = Config{
	Method:      MethodAuth0,
	Domain:      "example.auth0.com",
	ClientID:    "client-123",
	CallbackURL: "http://localhost:8080/callback",
	LogoutURL:   "http://localhost:8080/",
}

const testKid = "test-key"

var testKey = func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}()

// newJWKSServer publishes key under kid and counts fetches
func newJWKSServer(t *testing.T, key *rsa.PublicKey, kid string) (*httptest.Server, *int32) {
	t.Helper()
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{"keys": []map[string]string{{
			"kid": kid,
			"kty": "RSA",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	t.Cleanup(srv.Close)
	return srv, &fetches
}

func testClaims(now time.Time, nonce string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   "https://example.auth0.com/",
		"aud":   "client-123",
		"sub":   "auth0|123",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"nonce": nonce,
		"email": "user@example.com",
		"name":  "Test User",
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func testIDToken(t *testing.T, now time.Time, nonce string) string {
	t.Helper()
	return signToken(t, testKey, testKid, testClaims(now, nonce))
}

func newTestAuthenticator(t *testing.T, now time.Time) (*Authenticator, *storage.MemoryStore) {
	t.Helper()
	srv, _ := newJWKSServer(t, &testKey.PublicKey, testKid)
	cfg := testConfig
	cfg.JWKSURL = srv.URL
	store := storage.NewMemoryStore()
	a := NewAuthenticator(cfg, store)
	a.now = func() time.Time { return now }
	return a, store
}

// startLogin returns the state and nonce of a new pending login
func startLogin(t *testing.T, a *Authenticator) (state, nonce string) {
	t.Helper()
	u, err := a.LoginURL()
	if err != nil {
		t.Fatalf("Failed to build login url: %v", err)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("Failed to parse login url: %v", err)
	}
	return parsed.Query().Get("state"), parsed.Query().Get("nonce")
}

func TestParseHash(t *testing.T) {
	r, err := ParseHash("#access_token=at&id_token=it&token_type=Bearer&expires_in=7200&state=xyz")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if r.AccessToken != "at" || r.IDToken != "it" || r.TokenType != "Bearer" || r.State != "xyz" {
		t.Errorf("unexpected result: %+v", r)
	}
	if r.ExpiresIn != 2*time.Hour {
		t.Errorf("expected 2h, got %v", r.ExpiresIn)
	}
}

func TestParseHashErrors(t *testing.T) {
	tests := map[string]string{
		"no id token":      "#access_token=at",
		"provider error":   "#error=login_required&error_description=Login+required",
		"bad expires_in":   "#id_token=it&expires_in=soon",
		"malformed escape": "#id_token=%zz",
	}
	for name, fragment := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseHash(fragment); err == nil {
				t.Errorf("expected error for %q", fragment)
			}
		})
	}

	_, err := ParseHash("access_token=at")
	if !errors.Is(err, ErrInvalidResult) {
		t.Errorf("expected ErrInvalidResult, got %v", err)
	}
}

func TestLoginURL(t *testing.T) {
	a, store := newTestAuthenticator(t, time.Now())

	u, err := a.LoginURL()
	if err != nil {
		t.Fatalf("Failed to build login url: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("Failed to parse login url: %v", err)
	}
	if parsed.Host != "example.auth0.com" || parsed.Path != "/authorize" {
		t.Errorf("unexpected login url: %s", u)
	}

	q := parsed.Query()
	if q.Get("response_type") != "token id_token" || q.Get("scope") != "openid email profile" {
		t.Errorf("unexpected query: %v", q)
	}
	if q.Get("client_id") != "client-123" || q.Get("redirect_uri") != testConfig.CallbackURL {
		t.Errorf("unexpected client config: %v", q)
	}

	state, ok, _ := store.Get(KeyState)
	if !ok || state != q.Get("state") {
		t.Errorf("state not remembered: stored=%q url=%q", state, q.Get("state"))
	}
	nonce, ok, _ := store.Get(KeyNonce)
	if !ok || nonce == "" || nonce != q.Get("nonce") {
		t.Errorf("nonce not remembered: stored=%q url=%q", nonce, q.Get("nonce"))
	}
}

func TestHandleAuthentication(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	a, store := newTestAuthenticator(t, now)

	state, nonce := startLogin(t, a)

	fragment := "#access_token=at&id_token=" + testIDToken(t, now, nonce) + "&expires_in=60&state=" + state
	if err := a.HandleAuthentication(fragment); err != nil {
		t.Fatalf("Failed to handle authentication: %v", err)
	}

	if v, _, _ := store.Get(KeyAccessToken); v != "at" {
		t.Errorf("access token not stored: %q", v)
	}
	if v, _, _ := store.Get(KeyExpiresAt); v != "1700000060000" {
		t.Errorf("unexpected expires_at: %q", v)
	}
	if v, _, _ := store.Get(KeyLinkIdx); v != "1" {
		t.Errorf("unexpected link_idx: %q", v)
	}
	if _, ok, _ := store.Get(KeyState); ok {
		t.Error("state not cleared after callback")
	}
	if _, ok, _ := store.Get(KeyNonce); ok {
		t.Error("nonce not cleared after callback")
	}

	if !a.IsAuthenticated() {
		t.Error("expected authenticated")
	}

	s, err := a.State()
	if err != nil {
		t.Fatalf("Failed to read state: %v", err)
	}
	if s.Payload["email"] != "user@example.com" {
		t.Errorf("unexpected payload: %v", s.Payload)
	}

	a.now = func() time.Time { return now.Add(61 * time.Second) }
	if a.IsAuthenticated() {
		t.Error("expected session to be expired")
	}
}

func TestHandleAuthenticationStateMismatch(t *testing.T) {
	now := time.Now()
	a, _ := newTestAuthenticator(t, now)
	_, nonce := startLogin(t, a)

	err := a.HandleAuthentication("#id_token=" + testIDToken(t, now, nonce) + "&state=other")
	if !errors.Is(err, ErrStateMismatch) {
		t.Errorf("expected ErrStateMismatch, got %v", err)
	}
	if a.IsAuthenticated() {
		t.Error("mismatched callback authenticated the session")
	}
}

func TestHandleAuthenticationNoPendingLogin(t *testing.T) {
	now := time.Now()
	a, store := newTestAuthenticator(t, now)

	err := a.HandleAuthentication("#id_token=" + testIDToken(t, now, "") + "&state=")
	var apiErr *api.Error
	if !errors.Is(err, ErrStateMismatch) || !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeUser {
		t.Errorf("expected user ErrStateMismatch, got %v", err)
	}
	if a.IsAuthenticated() {
		t.Error("callback without a login authenticated the session")
	}
	if _, ok, _ := store.Get(KeyIDToken); ok {
		t.Error("id token stored without a login")
	}
}

func TestHandleAuthenticationRejectsToken(t *testing.T) {
	now := time.Now()
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	tests := []struct {
		name   string
		token  func(nonce string) string
		target error
	}{
		{"alg none", func(nonce string) string {
			s, err := jwt.NewWithClaims(jwt.SigningMethodNone, testClaims(now, nonce)).SignedString(jwt.UnsafeAllowNoneSignatureType)
			if err != nil {
				t.Fatalf("Failed to sign token: %v", err)
			}
			return s
		}, jwt.ErrTokenSignatureInvalid},
		{"hs256", func(nonce string) string {
			s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims(now, nonce)).SignedString([]byte("test"))
			if err != nil {
				t.Fatalf("Failed to sign token: %v", err)
			}
			return s
		}, jwt.ErrTokenSignatureInvalid},
		{"unknown key", func(nonce string) string {
			return signToken(t, otherKey, "other-key", testClaims(now, nonce))
		}, ErrUnknownKey},
		{"forged signature", func(nonce string) string {
			return signToken(t, otherKey, testKid, testClaims(now, nonce))
		}, jwt.ErrTokenSignatureInvalid},
		{"wrong audience", func(nonce string) string {
			c := testClaims(now, nonce)
			c["aud"] = "other-client"
			return signToken(t, testKey, testKid, c)
		}, jwt.ErrTokenInvalidAudience},
		{"wrong issuer", func(nonce string) string {
			c := testClaims(now, nonce)
			c["iss"] = "https://evil.example.com/"
			return signToken(t, testKey, testKid, c)
		}, jwt.ErrTokenInvalidIssuer},
		{"expired", func(nonce string) string {
			c := testClaims(now, nonce)
			c["exp"] = now.Add(-time.Minute).Unix()
			return signToken(t, testKey, testKid, c)
		}, jwt.ErrTokenExpired},
		{"no expiry", func(nonce string) string {
			c := testClaims(now, nonce)
			delete(c, "exp")
			return signToken(t, testKey, testKid, c)
		}, jwt.ErrTokenRequiredClaimMissing},
		{"wrong nonce", func(nonce string) string {
			return signToken(t, testKey, testKid, testClaims(now, "replayed"))
		}, ErrNonceMismatch},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a, _ := newTestAuthenticator(t, now)
			state, nonce := startLogin(t, a)

			err := a.HandleAuthentication("#id_token=" + test.token(nonce) + "&state=" + state)
			var apiErr *api.Error
			if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeUser {
				t.Fatalf("expected user api.Error, got %v", err)
			}
			if !errors.Is(err, test.target) {
				t.Errorf("expected %v, got %v", test.target, err)
			}
			if a.IsAuthenticated() {
				t.Error("rejected token authenticated the session")
			}
		})
	}
}

func TestKeySetFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	now := time.Now()
	cfg := testConfig
	cfg.JWKSURL = srv.URL
	a := NewAuthenticator(cfg, storage.NewMemoryStore())
	a.now = func() time.Time { return now }
	state, nonce := startLogin(t, a)

	err := a.HandleAuthentication("#id_token=" + testIDToken(t, now, nonce) + "&state=" + state)
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeServer {
		t.Errorf("expected server api.Error, got %v", err)
	}
	if !errors.Is(err, ErrKeySet) {
		t.Errorf("expected ErrKeySet, got %v", err)
	}
}

func TestKeySetCache(t *testing.T) {
	srv, fetches := newJWKSServer(t, &testKey.PublicKey, testKid)
	keys := newKeySet(srv.URL)

	for i := 0; i < 3; i++ {
		token := &jwt.Token{Header: map[string]interface{}{"kid": testKid}}
		key, err := keys.Keyfunc(token)
		if err != nil {
			t.Fatalf("Failed to get key: %v", err)
		}
		if pub, ok := key.(*rsa.PublicKey); !ok || !pub.Equal(&testKey.PublicKey) {
			t.Fatalf("unexpected key: %v", key)
		}
	}

	// unknown kids don't refetch inside the refresh window
	for i := 0; i < 3; i++ {
		if _, err := keys.Keyfunc(&jwt.Token{Header: map[string]interface{}{"kid": "other"}}); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("expected ErrUnknownKey, got %v", err)
		}
	}

	if n := atomic.LoadInt32(fetches); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
}

func TestSetSessionDefaultExpiry(t *testing.T) {
	now := time.Now()
	a, _ := newTestAuthenticator(t, now)

	if err := a.SetSession(&Result{IDToken: testIDToken(t, now, "")}); err != nil {
		t.Fatalf("Failed to set session: %v", err)
	}

	s, _ := a.State()
	if got := s.ExpiresAt.Sub(now); got < DefaultExpiresIn-time.Millisecond || got > DefaultExpiresIn {
		t.Errorf("expected default expiry, got %v", got)
	}
}

func TestSetSessionMalformedToken(t *testing.T) {
	a, _ := newTestAuthenticator(t, time.Now())
	err := a.SetSession(&Result{IDToken: "not-a-jwt"})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeUser {
		t.Errorf("expected user api.Error, got %v", err)
	}
}

func TestIsAuthenticatedDisabled(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Set(KeyExpiresAt, "99999999999999")
	a := NewAuthenticator(Config{}, store)
	if a.IsAuthenticated() {
		t.Error("disabled authenticator reported authenticated")
	}
}

func TestLogout(t *testing.T) {
	now := time.Now()
	a, store := newTestAuthenticator(t, now)
	if err := a.SetSession(&Result{AccessToken: "at", IDToken: testIDToken(t, now, "")}); err != nil {
		t.Fatalf("Failed to set session: %v", err)
	}

	if _, ok, _ := store.Get(KeyUser); !ok {
		t.Errorf("%s not stored by SetSession", KeyUser)
	}

	u, err := a.Logout()
	if err != nil {
		t.Fatalf("Failed to logout: %v", err)
	}
	if !strings.HasPrefix(u, "https://example.auth0.com/v2/logout/?returnTo=") {
		t.Errorf("unexpected logout url: %s", u)
	}
	if !strings.Contains(u, url.QueryEscape(testConfig.LogoutURL)) {
		t.Errorf("logout url missing returnTo: %s", u)
	}

	for _, k := range []string{KeyUser, KeyAccessToken, KeyIDToken, KeyExpiresAt} {
		if _, ok, _ := store.Get(k); ok {
			t.Errorf("%s still stored after logout", k)
		}
	}
	if a.IsAuthenticated() {
		t.Error("still authenticated after logout")
	}
	if tok, _ := a.IDToken(); tok != "" {
		t.Errorf("id token still available: %q", tok)
	}
	if s, err := a.State(); err != nil || len(s.Payload) != 0 {
		t.Errorf("payload still available: %v, %v", s, err)
	}
}
