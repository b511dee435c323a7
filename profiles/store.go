package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/logging"
	"github.com/Espresso-Aficionados/sprobot/storage"
)

// DocumentStore persists whole documents.
type DocumentStore interface {
	Write(ctx context.Context, key Key, doc Document) error
	// Read fails with an apperr NotFound when nothing is stored under key.
	Read(ctx context.Context, key Key) (Document, error)
	// Delete succeeds when nothing is stored under key.
	Delete(ctx context.Context, key Key) error
}

// ObjectDocumentStore keeps documents as compact JSON objects in a bucket.
type ObjectDocumentStore struct {
	objects storage.ObjectStore
	log     *zap.Logger
}

var _ DocumentStore = (*ObjectDocumentStore)(nil)

func NewObjectDocumentStore(objects storage.ObjectStore, log *zap.Logger) *ObjectDocumentStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ObjectDocumentStore{objects: objects, log: log}
}

func (s *ObjectDocumentStore) Write(ctx context.Context, key Key, doc Document) error {
	if doc == nil {
		doc = Document{}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return apperr.Storage("Unable to save profile.", err)
	}

	start := time.Now()
	err = s.objects.Put(ctx, key.ObjectKey(), bytes.NewReader(body), int64(len(body)), storage.PutOptions{
		ContentType: "application/json",
	})
	s.logLatency("write", key, start)
	if err != nil {
		return apperr.Storage("Unable to save profile.", err)
	}
	return nil
}

func (s *ObjectDocumentStore) Read(ctx context.Context, key Key) (Document, error) {
	start := time.Now()
	body, err := s.objects.Get(ctx, key.ObjectKey())
	s.logLatency("read", key, start)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, apperr.NotFound("Profile not found.")
	}
	if err != nil {
		return nil, apperr.Storage("Unable to load profile.", err)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, apperr.Storage("Unable to load profile.", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

func (s *ObjectDocumentStore) Delete(ctx context.Context, key Key) error {
	start := time.Now()
	err := s.objects.Delete(ctx, key.ObjectKey())
	s.logLatency("delete", key, start)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return apperr.Storage("Unable to delete profile.", err)
	}
	return nil
}

func (s *ObjectDocumentStore) logLatency(op string, key Key, start time.Time) {
	fields := append(logging.ProfileFields(key.Template, key.CommunityID, key.UserID),
		zap.String("op", op),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	s.log.Info("Storage call finished", fields...)
}
