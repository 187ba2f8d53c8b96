package eventlogger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqlEventLoggerSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	event := NewEvent(
		WithType("user.registered"),
		WithData(map[string]string{"user_id": uuid.NewString()}),
		WithMetadata(map[string]string{"source": "api"}),
	)

	mock.ExpectExec("INSERT INTO events").
		WithArgs(event.ID.String(), event.Type, sqlmock.AnyArg(), sqlmock.AnyArg(), event.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	logger := NewSqlEventLogger(db)
	require.NoError(t, logger.Save(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSqlEventLoggerGetByType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	createdAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "event_type", "event_data", "event_metadata", "created_at"}).
		AddRow(id.String(), "transaction.recorded", []byte(`{"amount":"100"}`), []byte(`{"source":"api"}`), createdAt)

	mock.ExpectQuery("SELECT id, event_type, event_data, event_metadata, created_at FROM events").
		WithArgs("transaction.recorded").
		WillReturnRows(rows)

	logger := NewSqlEventLogger(db)
	events, err := logger.GetByType(context.Background(), "transaction.recorded")
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, "transaction.recorded", events[0].Type)
	assert.Equal(t, map[string]any{"amount": "100"}, events[0].Data)
	assert.Equal(t, map[string]string{"source": "api"}, events[0].Metadata)
	assert.Equal(t, createdAt, events[0].CreatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSqlEventLoggerGetByTypeEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, event_type, event_data, event_metadata, created_at FROM events").
		WithArgs("nothing.here").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "event_data", "event_metadata", "created_at"}))

	logger := NewSqlEventLogger(db)
	events, err := logger.GetByType(context.Background(), "nothing.here")
	require.NoError(t, err)
	assert.Empty(t, events)
}
