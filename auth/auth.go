// Package auth implements the Auth0 login wrapper: it builds the authorize redirect, parses the
// callback fragment, and keeps the resulting tokens and expiry in a storage.Store.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/korylprince/agent-neo/api"
	"github.com/korylprince/agent-neo/storage"
)

// MethodAuth0 enables the Auth0 flow
const MethodAuth0 = "auth0"

// Storage keys
const (
	KeyUser        = "user"
	KeyAccessToken = "access_token"
	KeyIDToken     = "id_token"
	KeyExpiresAt   = "expires_at"
	KeyLinkIdx     = "link_idx"
	KeyState       = "auth_state"
	KeyNonce       = "auth_nonce"
)

// DefaultExpiresIn is used when the identity provider doesn't send expires_in
const DefaultExpiresIn = 3600 * time.Second

// ErrInvalidResult is returned when a callback doesn't carry an id token
var ErrInvalidResult = errors.New("invalid authentication result")

// ErrStateMismatch is returned when a callback's state doesn't match the pending login
var ErrStateMismatch = errors.New("authentication state mismatch")

// ErrNonceMismatch is returned when an id token wasn't issued for the pending login
var ErrNonceMismatch = errors.New("id token nonce mismatch")

// Config configures the identity provider
type Config struct {
	Method      string
	Domain      string
	ClientID    string
	CallbackURL string
	LogoutURL   string

	// JWKSURL is where the id token signing keys are published. It defaults to the tenant's
	// /.well-known/jwks.json.
	JWKSURL string
}

func (c Config) jwksURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Domain)
}

func (c Config) issuer() string {
	return fmt.Sprintf("https://%s/", c.Domain)
}

// Enabled returns true if the Auth0 flow is configured
func (c Config) Enabled() bool {
	return c.Method == MethodAuth0
}

// State is the session currently held by an Authenticator
type State struct {
	AccessToken string
	IDToken     string
	Payload     map[string]interface{}
	ExpiresAt   time.Time
}

// Authenticator owns the login session. It is safe for concurrent use.
type Authenticator struct {
	cfg   Config
	store storage.Store
	keys  jwt.Keyfunc
	now   func() time.Time
}

// NewAuthenticator returns an Authenticator keeping its session in store
func NewAuthenticator(cfg Config, store storage.Store) *Authenticator {
	return &Authenticator{
		cfg:   cfg,
		store: store,
		keys:  newKeySet(cfg.jwksURL()).Keyfunc,
		now:   time.Now,
	}
}

// Enabled returns true if the Auth0 flow is configured
func (a *Authenticator) Enabled() bool {
	return a.cfg.Enabled()
}

// LoginURL returns the identity provider URL to redirect to. New state and nonce values are
// remembered and checked by HandleAuthentication.
func (a *Authenticator) LoginURL() (string, error) {
	state, nonce := uuid.NewString(), uuid.NewString()
	if err := a.store.Set(KeyState, state); err != nil {
		return "", err
	}
	if err := a.store.Set(KeyNonce, nonce); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("redirect_uri", a.cfg.CallbackURL)
	q.Set("response_type", "token id_token")
	q.Set("scope", "openid email profile")
	q.Set("prompt", "select_account")
	q.Set("state", state)
	q.Set("nonce", nonce)

	return fmt.Sprintf("https://%s/authorize?%s", a.cfg.Domain, q.Encode()), nil
}

// HandleAuthentication parses the callback fragment and stores the resulting session
func (a *Authenticator) HandleAuthentication(fragment string) error {
	result, err := ParseHash(fragment)
	if err != nil {
		return err
	}

	// a callback is only accepted for the login this Authenticator started
	state, ok, err := a.store.Get(KeyState)
	if err != nil {
		return err
	}
	if !ok || state != result.State {
		return &api.Error{Description: "Could not verify callback", Type: api.ErrorTypeUser, Err: ErrStateMismatch}
	}
	nonce, ok, err := a.store.Get(KeyNonce)
	if err != nil {
		return err
	}
	if !ok {
		return &api.Error{Description: "Could not verify callback", Type: api.ErrorTypeUser, Err: ErrStateMismatch}
	}
	if err = a.store.Remove(KeyState, KeyNonce); err != nil {
		return err
	}

	claims, err := a.verify(result.IDToken, nonce)
	if err != nil {
		return err
	}

	return a.setSession(result, claims)
}

// SetSession verifies the id token in result and stores the tokens and expiry
func (a *Authenticator) SetSession(result *Result) error {
	claims, err := a.verify(result.IDToken, "")
	if err != nil {
		return err
	}
	return a.setSession(result, claims)
}

func (a *Authenticator) setSession(result *Result, payload jwt.MapClaims) error {
	expiresIn := result.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}
	expiresAt := a.now().Add(expiresIn)

	var err error
	if result.AccessToken != "" {
		if err = a.store.Set(KeyAccessToken, result.AccessToken); err != nil {
			return err
		}
	}
	if err = a.store.Set(KeyIDToken, result.IDToken); err != nil {
		return err
	}
	if err = a.store.Set(KeyExpiresAt, strconv.FormatInt(expiresAt.UnixMilli(), 10)); err != nil {
		return err
	}
	if err = a.store.Set(KeyLinkIdx, "1"); err != nil {
		return err
	}

	user, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", KeyUser, err)
	}
	if err = a.store.Set(KeyUser, string(user)); err != nil {
		return err
	}

	return nil
}

// IsAuthenticated returns true if the flow is enabled and the stored session hasn't expired
func (a *Authenticator) IsAuthenticated() bool {
	if !a.Enabled() {
		return false
	}
	expiresAt, err := a.expiresAt()
	if err != nil {
		return false
	}
	return a.now().Before(expiresAt)
}

func (a *Authenticator) expiresAt() (time.Time, error) {
	v, ok, err := a.store.Get(KeyExpiresAt)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse %s: %w", KeyExpiresAt, err)
	}
	return time.UnixMilli(ms), nil
}

// IDToken returns the stored id token, or an empty string if there is none
func (a *Authenticator) IDToken() (string, error) {
	v, _, err := a.store.Get(KeyIDToken)
	return v, err
}

// State returns a snapshot of the stored session
func (a *Authenticator) State() (*State, error) {
	s := &State{}
	var err error

	if s.AccessToken, _, err = a.store.Get(KeyAccessToken); err != nil {
		return nil, err
	}
	if s.IDToken, _, err = a.store.Get(KeyIDToken); err != nil {
		return nil, err
	}
	if s.ExpiresAt, err = a.expiresAt(); err != nil {
		return nil, err
	}

	s.Payload = map[string]interface{}{}
	user, ok, err := a.store.Get(KeyUser)
	if err != nil {
		return nil, err
	}
	if ok {
		if err = json.Unmarshal([]byte(user), &s.Payload); err != nil {
			return nil, fmt.Errorf("could not decode %s: %w", KeyUser, err)
		}
	}

	return s, nil
}

// Logout clears the stored session and returns the identity provider logout URL to redirect to
func (a *Authenticator) Logout() (string, error) {
	if err := a.store.Remove(KeyUser, KeyAccessToken, KeyIDToken, KeyExpiresAt); err != nil {
		return "", err
	}

	return fmt.Sprintf("https://%s/v2/logout/?returnTo=%s", a.cfg.Domain, url.QueryEscape(a.cfg.LogoutURL)), nil
}

// verify checks the id token's RS256 signature against the identity provider's keys, its audience,
// issuer and expiry, and its nonce if nonce isn't empty. It returns the token's claims.
func (a *Authenticator) verify(idToken, nonce string) (jwt.MapClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(a.cfg.ClientID),
		jwt.WithIssuer(a.cfg.issuer()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)

	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(idToken, claims, a.keys); err != nil {
		if errors.Is(err, ErrKeySet) {
			return nil, &api.Error{Description: "Could not verify id token", Type: api.ErrorTypeServer, Err: err}
		}
		return nil, &api.Error{Description: "Could not verify id token", Type: api.ErrorTypeUser, Err: err}
	}

	if nonce != "" {
		if n, _ := claims["nonce"].(string); n != nonce {
			return nil, &api.Error{Description: "Could not verify id token", Type: api.ErrorTypeUser, Err: ErrNonceMismatch}
		}
	}

	return claims, nil
}
