package profiles

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/audit"
	"github.com/Espresso-Aficionados/sprobot/cache"
	"github.com/Espresso-Aficionados/sprobot/images"
	"github.com/Espresso-Aficionados/sprobot/logging"
	"github.com/Espresso-Aficionados/sprobot/metrics"
	"github.com/Espresso-Aficionados/sprobot/storage"
	"github.com/Espresso-Aficionados/sprobot/templates"
)

// ImageRelocator moves candidate image URLs into owned storage.
type ImageRelocator interface {
	Relocate(ctx context.Context, sourceURL string, dest images.Destination) (images.Outcome, error)
}

// SaveResult is what a successful save hands back to the caller. Warning is
// set when the image could not be kept; the rest of the profile was saved.
type SaveResult struct {
	URL     string `json:"url"`
	Warning string `json:"warning,omitempty"`
}

// ServiceConfig holds the settings of a Service.
type ServiceConfig struct {
	// WebEndpoint is the base of the public viewer URL.
	WebEndpoint string
	Bucket      string
	Recorder    audit.Recorder
}

// Service implements save, fetch, delete and image-only delete over a
// document store, the profile cache and image relocation.
type Service struct {
	store       DocumentStore
	cache       *cache.ProfileCache
	images      ImageRelocator
	recorder    audit.Recorder
	locks       *keyLocks
	webEndpoint string
	bucket      string
	log         *zap.Logger
}

func NewService(store DocumentStore, profileCache *cache.ProfileCache, relocator ImageRelocator, cfg ServiceConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		store:       store,
		cache:       profileCache,
		images:      relocator,
		recorder:    recorder,
		locks:       newKeyLocks(),
		webEndpoint: cfg.WebEndpoint,
		bucket:      cfg.Bucket,
		log:         log,
	}
}

// CacheStats exposes the profile cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ViewerURL is the public page for the document under key.
func (s *Service) ViewerURL(key Key) string {
	return storage.JoinURL(s.webEndpoint, s.bucket, key.ObjectKey())
}

// Save replaces the stored document with the template fields of raw. Blank
// values and keys outside the template are dropped. A present image field is
// relocated first; when relocation is rejected the image field is left out
// and the reason is returned as the warning. raw is not modified.
func (s *Service) Save(ctx context.Context, tmpl templates.Template, communityID, userID string, raw map[string]string) (SaveResult, error) {
	result, err := s.save(ctx, tmpl, communityID, userID, raw, audit.ActionSave)
	s.count("save", err, result.Warning != "")
	return result, err
}

func (s *Service) save(ctx context.Context, tmpl templates.Template, communityID, userID string, raw map[string]string, action string) (SaveResult, error) {
	key := Key{Template: tmpl.Name, CommunityID: communityID, UserID: userID}
	if err := key.validate(); err != nil {
		return SaveResult{}, err
	}
	log := s.log.With(logging.ProfileFields(key.Template, key.CommunityID, key.UserID)...)
	log.Info("Saving profile")

	doc := make(Document, len(raw))
	var unknown []string
	for name, value := range raw {
		if !tmpl.HasField(name) {
			unknown = append(unknown, name)
			continue
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		doc[name] = value
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		log.Warn("Dropping fields the template does not define", zap.Strings("fields", unknown))
	}

	var warning string
	if imageField, ok := tmpl.ImageFieldName(); ok {
		if source, present := doc[imageField]; present {
			outcome, err := s.images.Relocate(ctx, source, images.Destination{
				CommunityID: communityID,
				Template:    tmpl.Name,
				UserID:      userID,
			})
			if err != nil {
				return SaveResult{}, err
			}
			switch outcome.Kind {
			case images.KindRelocated, images.KindAlreadyOwned:
				doc[imageField] = outcome.URL
			case images.KindRejected:
				delete(doc, imageField)
				warning = outcome.Message
				log.Info("Image not kept", zap.String("reason", string(outcome.Reason)))
			default:
				delete(doc, imageField)
			}
		}
	}

	if err := s.write(ctx, key, doc); err != nil {
		log.Error("Unable to write profile", zap.Error(err))
		return SaveResult{}, err
	}

	result := SaveResult{URL: s.ViewerURL(key), Warning: warning}
	log.Info("Profile saved", zap.String("profile_url", result.URL))
	s.record(ctx, audit.NewEvent(action, key.Template, key.CommunityID, key.UserID, fieldNames(doc), warning))
	return result, nil
}

// Fetch returns the stored document, serving from the cache when possible.
// A missing document is reported as an apperr NotFound.
func (s *Service) Fetch(ctx context.Context, tmpl templates.Template, communityID, userID string) (Document, error) {
	doc, err := s.fetch(ctx, Key{Template: tmpl.Name, CommunityID: communityID, UserID: userID})
	s.count("fetch", err, false)
	return doc, err
}

func (s *Service) fetch(ctx context.Context, key Key) (Document, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(key.String()); ok {
		return Document(cached), nil
	}

	lock := s.locks.acquire(key.String())
	defer s.locks.release(key.String(), lock)
	gen := lock.generation()

	doc, err := s.store.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.log.Error("Unable to read profile", append(logging.ProfileFields(key.Template, key.CommunityID, key.UserID), zap.Error(err))...)
		}
		return nil, err
	}

	// A save or delete that finished while we were reading wins.
	lock.Lock()
	if lock.gen == gen {
		s.cache.Put(key.String(), doc)
	}
	lock.Unlock()
	return doc.Clone(), nil
}

// Delete removes the document. Deleting a missing document succeeds.
func (s *Service) Delete(ctx context.Context, tmpl templates.Template, communityID, userID string) error {
	err := s.delete(ctx, Key{Template: tmpl.Name, CommunityID: communityID, UserID: userID}, audit.ActionDelete)
	s.count("delete", err, false)
	return err
}

func (s *Service) delete(ctx context.Context, key Key, action string) error {
	if err := key.validate(); err != nil {
		return err
	}
	log := s.log.With(logging.ProfileFields(key.Template, key.CommunityID, key.UserID)...)
	log.Info("Deleting profile")

	if err := s.remove(ctx, key); err != nil {
		log.Error("Unable to delete profile", zap.Error(err))
		return err
	}
	s.record(ctx, audit.NewEvent(action, key.Template, key.CommunityID, key.UserID, nil, ""))
	return nil
}

// DeleteImageOnly drops the image field from the stored document. When no
// template field keeps a non-blank value the whole document is deleted. A
// missing document counts as already deleted.
func (s *Service) DeleteImageOnly(ctx context.Context, tmpl templates.Template, communityID, userID string) error {
	err := s.deleteImageOnly(ctx, tmpl, communityID, userID)
	s.count("delete_image", err, false)
	return err
}

func (s *Service) deleteImageOnly(ctx context.Context, tmpl templates.Template, communityID, userID string) error {
	key := Key{Template: tmpl.Name, CommunityID: communityID, UserID: userID}
	doc, err := s.fetch(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	imageField, hasImage := tmpl.ImageFieldName()
	_, present := doc[imageField]
	if hasImage {
		delete(doc, imageField)
	}

	if !hasContent(tmpl, doc) {
		return s.delete(ctx, key, audit.ActionDeleteImage)
	}
	if !hasImage || !present {
		return nil
	}
	_, err = s.save(ctx, tmpl, communityID, userID, doc, audit.ActionDeleteImage)
	return err
}

// write stores doc and refreshes the cache while holding the key's lock, so
// the cache always ends up matching the last write to land.
func (s *Service) write(ctx context.Context, key Key, doc Document) error {
	lock := s.locks.acquire(key.String())
	defer s.locks.release(key.String(), lock)
	lock.Lock()
	defer lock.Unlock()
	defer func() { lock.gen++ }()

	if err := s.store.Write(ctx, key, doc); err != nil {
		s.cache.Invalidate(key.String())
		return err
	}
	s.cache.Put(key.String(), doc)
	return nil
}

func (s *Service) remove(ctx context.Context, key Key) error {
	lock := s.locks.acquire(key.String())
	defer s.locks.release(key.String(), lock)
	lock.Lock()
	defer lock.Unlock()
	defer func() { lock.gen++ }()

	s.cache.Invalidate(key.String())
	return s.store.Delete(ctx, key)
}

// hasContent reports whether any non-image template field is set.
func hasContent(tmpl templates.Template, doc Document) bool {
	for _, field := range tmpl.Fields {
		if strings.TrimSpace(doc[field.Name]) != "" {
			return true
		}
	}
	return false
}

func fieldNames(doc Document) []string {
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	return names
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if err := s.recorder.Record(ctx, event); err != nil {
		s.log.Warn("Unable to record audit event", zap.String("action", event.Action), zap.Error(err))
	}
}

func (s *Service) count(operation string, err error, warned bool) {
	result := "ok"
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	case warned:
		result = "warning"
	}
	metrics.ProfileOperations.WithLabelValues(operation, result).Inc()
}
