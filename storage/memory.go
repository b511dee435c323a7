package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

// MemoryObject is what MemoryStore keeps per key.
type MemoryObject struct {
	Data []byte
	Opts PutOptions
}

// MemoryStore is an in-process ObjectStore. It backs
// SPROBOT_STORAGE_BACKEND=memory for local runs and stands in for the bucket
// in tests. Calls are counted so callers can assert that no storage traffic
// happened.
type MemoryStore struct {
	mu        sync.Mutex
	bucket    string
	publicURL string
	objects   map[string]MemoryObject

	Gets, Puts, Deletes int

	// FailNext, when set, is returned by the next call and then cleared.
	FailNext error
}

var _ ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore(publicURL, bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		objects:   make(map[string]MemoryObject),
	}
}

func (s *MemoryStore) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gets++
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return bytes.Clone(obj.Data), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts PutOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Puts++
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.objects[key] = MemoryObject{Data: data, Opts: opts}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deletes++
	if err := s.takeFailure(); err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) PublicURL(key string) string {
	return JoinURL(s.publicURL, s.bucket, key)
}

func (s *MemoryStore) Owns(rawURL string) bool {
	return s.publicURL != "" && strings.HasPrefix(strings.TrimSpace(rawURL), s.publicURL+"/")
}

func (s *MemoryStore) Bucket() string {
	return s.bucket
}

// Object returns the stored object for key.
func (s *MemoryStore) Object(key string) (MemoryObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Keys returns every stored key.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	return keys
}
