package storage

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/korylprince/agent-neo/api"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

//KeySize is the size in bytes of a SealedStore key
const KeySize = 32

//SealedStore wraps a Store and encrypts values with NaCl secretbox before they reach it.
//Keys are stored in the clear.
type SealedStore struct {
	next Store
	key  [KeySize]byte
}

//ParseKey decodes a hex encoded SealedStore key
func ParseKey(s string) (*[KeySize]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("could not decode key: %w", err)
	}
	if len(b) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(b))
	}
	key := new([KeySize]byte)
	copy(key[:], b)
	return key, nil
}

//NewSealedStore returns a new SealedStore wrapping next with the given key
func NewSealedStore(next Store, key *[KeySize]byte) *SealedStore {
	return &SealedStore{next: next, key: *key}
}

//Get returns the decrypted value for key
func (s *SealedStore) Get(key string) (string, bool, error) {
	sealed, ok, err := s.next.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}

	b, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(b) < nonceSize {
		return "", false, &api.Error{Description: fmt.Sprintf("Could not decode key(%s)", key), Type: api.ErrorTypeServer, Err: errors.New("malformed sealed value")}
	}

	var nonce [nonceSize]byte
	copy(nonce[:], b[:nonceSize])

	value, ok := secretbox.Open(nil, b[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", false, &api.Error{Description: fmt.Sprintf("Could not open key(%s)", key), Type: api.ErrorTypeServer, Err: errors.New("authentication failed")}
	}

	return string(value), true, nil
}

//Set encrypts value with a random nonce and stores it under key
func (s *SealedStore) Set(key, value string) error {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return &api.Error{Description: "Could not generate nonce", Type: api.ErrorTypeServer, Err: err}
	}

	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, &s.key)
	return s.next.Set(key, base64.StdEncoding.EncodeToString(sealed))
}

//Remove deletes the given keys
func (s *SealedStore) Remove(keys ...string) error {
	return s.next.Remove(keys...)
}
