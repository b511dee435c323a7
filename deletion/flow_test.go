package deletion

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/templates"
)

const community = "726985544038612993"

type fakeDeleter struct {
	calls []string
	err   error
}

func (d *fakeDeleter) Delete(_ context.Context, tmpl templates.Template, communityID, userID string) error {
	d.calls = append(d.calls, "delete:"+tmpl.Name+"/"+communityID+"/"+userID)
	return d.err
}

func (d *fakeDeleter) DeleteImageOnly(_ context.Context, tmpl templates.Template, communityID, userID string) error {
	d.calls = append(d.calls, "image:"+tmpl.Name+"/"+communityID+"/"+userID)
	return d.err
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newFlow(t *testing.T) (*Flow, *fakeDeleter, *clock) {
	t.Helper()
	registry, err := templates.NewRegistry(map[string][]templates.Template{
		community: {templates.ProfileTemplate, templates.RoasterTemplate},
	})
	require.NoError(t, err)

	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clk.Now

	deleter := &fakeDeleter{}
	flow := NewFlow(store, deleter, registry, 15*time.Minute, zaptest.NewLogger(t))
	flow.now = clk.Now
	return flow, deleter, clk
}

func TestConfirmDeletesProfile(t *testing.T) {
	flow, deleter, _ := newFlow(t)
	ctx := context.Background()

	session, err := flow.Request(ctx, Request{CommunityID: community, Template: "profile", UserID: "42"})
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, session.State)
	assert.Equal(t, TargetProfile, session.Target)
	assert.Equal(t, "Coffee Setup", session.TemplateName)
	assert.Equal(t, session.CreatedAt.Add(15*time.Minute), session.ExpiresAt)
	assert.Empty(t, deleter.calls)

	done, err := flow.Confirm(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, done.State)
	assert.Equal(t, OutcomeProfileDeleted, done.Outcome)
	assert.Equal(t, []string{"delete:Coffee Setup/" + community + "/42"}, deleter.calls)

	stored, err := flow.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, stored.State)
}

func TestConfirmDeletesImageOnly(t *testing.T) {
	flow, deleter, _ := newFlow(t)
	ctx := context.Background()

	session, err := flow.Request(ctx, Request{CommunityID: community, Template: "roaster", UserID: "42", Target: TargetImage})
	require.NoError(t, err)

	done, err := flow.Confirm(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeImageDeleted, done.Outcome)
	assert.Equal(t, []string{"image:Roasting Setup/" + community + "/42"}, deleter.calls)
}

func TestConfirmFailureEndsInError(t *testing.T) {
	flow, deleter, _ := newFlow(t)
	ctx := context.Background()
	deleter.err = apperr.Storage("Unable to delete profile.", errors.New("bucket unavailable"))

	session, err := flow.Request(ctx, Request{CommunityID: community, Template: "profile", UserID: "42"})
	require.NoError(t, err)

	done, err := flow.Confirm(ctx, session.ID)
	assert.ErrorIs(t, err, apperr.ErrStorageFailure)
	assert.Equal(t, StateError, done.State)
	assert.Equal(t, "Unable to delete profile.", done.Error)

	stored, err := flow.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, StateError, stored.State)
}

func TestCancel(t *testing.T) {
	flow, deleter, _ := newFlow(t)
	ctx := context.Background()

	session, err := flow.Request(ctx, Request{CommunityID: community, Template: "profile", UserID: "42"})
	require.NoError(t, err)

	cancelled, err := flow.Cancel(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, cancelled.State)

	_, err = flow.Confirm(ctx, session.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = flow.Cancel(ctx, session.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Empty(t, deleter.calls)
}

func TestTerminalSessionsCannotBeReconfirmed(t *testing.T) {
	flow, deleter, _ := newFlow(t)
	ctx := context.Background()

	session, err := flow.Request(ctx, Request{CommunityID: community, Template: "profile", UserID: "42"})
	require.NoError(t, err)
	_, err = flow.Confirm(ctx, session.ID)
	require.NoError(t, err)

	_, err = flow.Confirm(ctx, session.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = flow.Cancel(ctx, session.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Len(t, deleter.calls, 1)
}

func TestExpiredSessionIsNotFound(t *testing.T) {
	flow, deleter, clk := newFlow(t)
	ctx := context.Background()

	session, err := flow.Request(ctx, Request{CommunityID: community, Template: "profile", UserID: "42"})
	require.NoError(t, err)

	clk.now = clk.now.Add(15 * time.Minute)
	_, err = flow.Confirm(ctx, session.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = flow.Get(ctx, session.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, deleter.calls)
}

func TestRequestValidation(t *testing.T) {
	flow, _, _ := newFlow(t)
	ctx := context.Background()

	_, err := flow.Request(ctx, Request{CommunityID: community, Template: "profile", UserID: "42", Target: "everything"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = flow.Request(ctx, Request{CommunityID: community, Template: "nope", UserID: "42"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = flow.Request(ctx, Request{CommunityID: "1", Template: "profile", UserID: "42"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = flow.Request(ctx, Request{CommunityID: community, Template: "profile", UserID: " "})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = flow.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, StateRequested.canMoveTo(StateAwaitingConfirmation))
	assert.True(t, StateAwaitingConfirmation.canMoveTo(StateConfirmed))
	assert.True(t, StateAwaitingConfirmation.canMoveTo(StateCancelled))
	assert.True(t, StateConfirmed.canMoveTo(StateCompleted))
	assert.True(t, StateConfirmed.canMoveTo(StateError))

	assert.False(t, StateRequested.canMoveTo(StateConfirmed))
	assert.False(t, StateConfirmed.canMoveTo(StateCancelled))
	for _, terminal := range []State{StateCompleted, StateCancelled, StateError} {
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.canMoveTo(StateAwaitingConfirmation))
	}
}

// TestRedisStore runs against a live redis when REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)

	session := Session{ID: "test-" + time.Now().Format("150405.000000"), State: StateAwaitingConfirmation, Target: TargetImage}
	require.NoError(t, store.Save(ctx, session, time.Minute))

	loaded, err := store.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Target, loaded.Target)

	ttl, err := client.TTL(ctx, redisKeyPrefix+session.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	_, err = store.Load(ctx, "missing-"+session.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
