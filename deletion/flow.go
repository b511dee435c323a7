package deletion

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/logging"
	"github.com/Espresso-Aficionados/sprobot/metrics"
	"github.com/Espresso-Aficionados/sprobot/templates"
)

const defaultTTL = 15 * time.Minute

// Deleter performs the confirmed deletion.
type Deleter interface {
	Delete(ctx context.Context, tmpl templates.Template, communityID, userID string) error
	DeleteImageOnly(ctx context.Context, tmpl templates.Template, communityID, userID string) error
}

// TemplateResolver finds a community's template by short name.
type TemplateResolver interface {
	ByShortName(communityID, shortName string) (templates.Template, bool)
}

// Request starts a session.
type Request struct {
	CommunityID string `json:"community_id" binding:"required"`
	Template    string `json:"template" binding:"required"`
	UserID      string `json:"user_id" binding:"required"`
	Target      Target `json:"target"`
}

// Flow drives sessions through their states. Sessions that are not
// confirmed within the TTL are abandoned; finished sessions stay
// readable for another TTL.
type Flow struct {
	store     SessionStore
	deleter   Deleter
	templates TemplateResolver
	ttl       time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewFlow(store SessionStore, deleter Deleter, resolver TemplateResolver, ttl time.Duration, log *zap.Logger) *Flow {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Flow{
		store:     store,
		deleter:   deleter,
		templates: resolver,
		ttl:       ttl,
		now:       time.Now,
		log:       log,
	}
}

// Request validates req and stores a session awaiting confirmation. An
// empty target means the whole profile.
func (f *Flow) Request(ctx context.Context, req Request) (Session, error) {
	if req.Target == "" {
		req.Target = TargetProfile
	}
	if !req.Target.valid() {
		return Session{}, apperr.InvalidArgument("target must be \"profile\" or \"image\"")
	}
	if strings.TrimSpace(req.CommunityID) == "" || strings.TrimSpace(req.UserID) == "" {
		return Session{}, apperr.InvalidArgument("community and user are required")
	}
	tmpl, ok := f.templates.ByShortName(req.CommunityID, req.Template)
	if !ok {
		return Session{}, apperr.NotFound("Unknown template.")
	}

	now := f.now().UTC()
	session := Session{
		ID:                uuid.NewString(),
		CommunityID:       req.CommunityID,
		TemplateShortName: tmpl.ShortName,
		TemplateName:      tmpl.Name,
		UserID:            req.UserID,
		Target:            req.Target,
		State:             StateRequested,
		CreatedAt:         now,
		ExpiresAt:         now.Add(f.ttl),
	}
	if err := session.moveTo(StateAwaitingConfirmation); err != nil {
		return Session{}, err
	}
	if err := f.store.Save(ctx, session, f.ttl); err != nil {
		return Session{}, err
	}

	f.logger(session).Info("Deletion requested", zap.String("session_id", session.ID), zap.String("target", string(session.Target)))
	return session, nil
}

// Get returns a session. Unconfirmed sessions past their expiry are
// reported as not found.
func (f *Flow) Get(ctx context.Context, id string) (Session, error) {
	session, err := f.store.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if session.expired(f.now()) {
		return Session{}, errSessionNotFound()
	}
	return session, nil
}

// Confirm runs the deletion. A failed deletion leaves the session in
// StateError and returns the failure.
func (f *Flow) Confirm(ctx context.Context, id string) (Session, error) {
	session, err := f.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if err := session.moveTo(StateConfirmed); err != nil {
		return session, err
	}
	if err := f.store.Save(ctx, session, f.ttl); err != nil {
		return Session{}, err
	}

	tmpl, ok := f.templates.ByShortName(session.CommunityID, session.TemplateShortName)
	if !ok {
		err = apperr.NotFound("Unknown template.")
	} else if session.Target == TargetImage {
		err = f.deleter.DeleteImageOnly(ctx, tmpl, session.CommunityID, session.UserID)
	} else {
		err = f.deleter.Delete(ctx, tmpl, session.CommunityID, session.UserID)
	}

	log := f.logger(session).With(zap.String("session_id", session.ID))
	if err != nil {
		_ = session.moveTo(StateError)
		session.Error = apperr.UserMessage(err)
		log.Error("Confirmed deletion failed", zap.Error(err))
	} else {
		_ = session.moveTo(StateCompleted)
		session.Outcome = OutcomeProfileDeleted
		if session.Target == TargetImage {
			session.Outcome = OutcomeImageDeleted
		}
		log.Info("Deletion completed", zap.String("outcome", session.Outcome))
	}
	metrics.DeletionSessions.WithLabelValues(string(session.State)).Inc()

	if saveErr := f.store.Save(ctx, session, f.ttl); saveErr != nil {
		log.Warn("Unable to store finished deletion session", zap.Error(saveErr))
	}
	return session, err
}

// Cancel abandons a session awaiting confirmation.
func (f *Flow) Cancel(ctx context.Context, id string) (Session, error) {
	session, err := f.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if err := session.moveTo(StateCancelled); err != nil {
		return session, err
	}
	if err := f.store.Save(ctx, session, f.ttl); err != nil {
		return Session{}, err
	}
	metrics.DeletionSessions.WithLabelValues(string(session.State)).Inc()
	f.logger(session).Info("Deletion cancelled", zap.String("session_id", session.ID))
	return session, nil
}

func (f *Flow) logger(session Session) *zap.Logger {
	return f.log.With(logging.ProfileFields(session.TemplateName, session.CommunityID, session.UserID)...)
}
