package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnknownKey is returned when an id token names a signing key the identity provider doesn't publish
var ErrUnknownKey = errors.New("unknown signing key")

// ErrKeySet is returned when the identity provider's signing keys can't be fetched
var ErrKeySet = errors.New("could not fetch signing keys")

// keySetRefresh limits how often an unknown kid triggers a new fetch
const keySetRefresh = time.Minute

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (j jsonWebKey) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("could not decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("could not decode exponent: %w", err)
	}
	if len(n) == 0 || len(e) == 0 || len(e) > 4 {
		return nil, errors.New("invalid key size")
	}

	var exp int
	for _, b := range e {
		exp = exp<<8 | int(b)
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}, nil
}

// keySet is the identity provider's JSON Web Key Set, fetched on demand
type keySet struct {
	url    string
	client *http.Client

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func newKeySet(url string) *keySet {
	return &keySet{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

// Keyfunc returns the public key for token's kid, fetching the key set if the kid isn't known
func (k *keySet) Keyfunc(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)

	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.keys[kid]; ok {
		return key, nil
	}
	if k.keys != nil && time.Since(k.fetched) < keySetRefresh {
		return nil, ErrUnknownKey
	}

	if err := k.fetch(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySet, err)
	}
	if key, ok := k.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrUnknownKey
}

// fetch must be called with mu held
func (k *keySet) fetch() error {
	resp, err := k.client.Get(k.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("could not decode key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		key, err := jwk.rsaKey()
		if err != nil {
			return fmt.Errorf("could not decode key %s: %w", jwk.Kid, err)
		}
		keys[jwk.Kid] = key
	}

	k.keys = keys
	k.fetched = time.Now()
	return nil
}
