// Package deletion implements the two-step confirmation flow in front of
// profile and image deletion.
package deletion

import (
	"time"

	"github.com/Espresso-Aficionados/sprobot/apperr"
)

// Target selects what a confirmed session deletes.
type Target string

const (
	TargetProfile Target = "profile"
	TargetImage   Target = "image"
)

func (t Target) valid() bool {
	return t == TargetProfile || t == TargetImage
}

// State of a session. Requested only exists while a session is being
// created; stored sessions start in AwaitingConfirmation.
type State string

const (
	StateRequested            State = "requested"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateConfirmed            State = "confirmed"
	StateCompleted            State = "completed"
	StateCancelled            State = "cancelled"
	StateError                State = "error"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateError:
		return true
	default:
		return false
	}
}

var transitions = map[State][]State{
	StateRequested:            {StateAwaitingConfirmation},
	StateAwaitingConfirmation: {StateConfirmed, StateCancelled},
	StateConfirmed:            {StateCompleted, StateError},
}

func (s State) canMoveTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Outcomes of a completed session.
const (
	OutcomeProfileDeleted = "profile_deleted"
	OutcomeImageDeleted   = "image_deleted"
)

// Session is one pending or finished deletion request.
type Session struct {
	ID                string    `json:"id"`
	CommunityID       string    `json:"community_id"`
	TemplateShortName string    `json:"template_short_name"`
	TemplateName      string    `json:"template_name"`
	UserID            string    `json:"user_id"`
	Target            Target    `json:"target"`
	State             State     `json:"state"`
	Outcome           string    `json:"outcome,omitempty"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

func (s *Session) moveTo(next State) error {
	if !s.State.canMoveTo(next) {
		return apperr.InvalidArgument("This deletion request is already " + string(s.State) + ".")
	}
	s.State = next
	return nil
}

// expired reports whether an unconfirmed session has run out of time.
func (s Session) expired(now time.Time) bool {
	return s.State == StateAwaitingConfirmation && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
