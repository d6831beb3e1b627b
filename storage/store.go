package storage

import "sync"

//Store is an interface to an arbitrary persisted key-value backend, like a browser's local storage.
type Store interface {
	//Get returns the value for key and whether or not it was found.
	//If the backend malfunctions, err will be non-nil.
	Get(key string) (value string, ok bool, err error)

	//Set stores value under key, replacing any previous value.
	Set(key, value string) error

	//Remove deletes the given keys. Missing keys are ignored.
	Remove(keys ...string) error
}

//MemoryStore represents a Store that uses an in-memory map
type MemoryStore struct {
	store map[string]string
	mu    *sync.Mutex
}

//NewMemoryStore returns a new, empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		store: make(map[string]string),
		mu:    new(sync.Mutex),
	}
}

//Get returns the value for key. err will always be nil.
func (m *MemoryStore) Get(key string) (value string, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok = m.store[key]
	return value, ok, nil
}

//Set stores value under key. err will always be nil.
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	m.store[key] = value
	m.mu.Unlock()
	return nil
}

//Remove deletes the given keys. err will always be nil.
func (m *MemoryStore) Remove(keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.store, k)
	}
	m.mu.Unlock()
	return nil
}
