package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/config"
)

func newRecorder(t *testing.T) *GormRecorder {
	t.Helper()
	db, err := OpenDatabase(config.DatabaseConfig{DSN: "file::memory:", Driver: "sqlite"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	recorder, err := NewGormRecorder(db)
	require.NoError(t, err)
	return recorder
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	recorder := newRecorder(t)

	require.NoError(t, recorder.Record(ctx, NewEvent(ActionSave, "Coffee Setup", "1", "42", []string{"Machine", "Gear Picture"}, "")))
	require.NoError(t, recorder.Record(ctx, NewEvent(ActionDeleteImage, "Coffee Setup", "1", "42", []string{"Machine"}, "")))
	require.NoError(t, recorder.Record(ctx, NewEvent(ActionSave, "Coffee Setup", "2", "7", nil, "Unable to save image.")))

	events, err := recorder.List(ctx, "1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, ActionDeleteImage, events[0].Action)
	assert.Equal(t, []string{"Machine"}, events[0].FieldNames())
	assert.Equal(t, ActionSave, events[1].Action)
	assert.Equal(t, []string{"Gear Picture", "Machine"}, events[1].FieldNames())
	assert.Nil(t, events[1].Warning)

	other, err := recorder.List(ctx, "2", 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.NotNil(t, other[0].Warning)
	assert.Equal(t, "Unable to save image.", *other[0].Warning)
	assert.Nil(t, other[0].FieldNames())
}

func TestListLimit(t *testing.T) {
	ctx := context.Background()
	recorder := newRecorder(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, recorder.Record(ctx, NewEvent(ActionDelete, "Coffee Setup", "1", "42", nil, "")))
	}
	events, err := recorder.List(ctx, "1", 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestNopRecorder(t *testing.T) {
	var recorder NopRecorder
	assert.NoError(t, recorder.Record(context.Background(), Event{}))
	events, err := recorder.List(context.Background(), "1", 10)
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestOpenDatabaseErrors(t *testing.T) {
	_, err := OpenDatabase(config.DatabaseConfig{})
	assert.Error(t, err)

	_, err = OpenDatabase(config.DatabaseConfig{DSN: "u:p@tcp(db)/sprobot"})
	assert.Error(t, err)

	_, err = OpenDatabase(config.DatabaseConfig{DSN: "x", Driver: "oracle"})
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}
