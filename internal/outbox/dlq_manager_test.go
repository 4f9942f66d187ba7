package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojsys/goodfitapp-backend/internal/events"
)

var dlqCols = []string{"dlq_id", "event_id", "event_type", "topic", "payload", "reason", "aggregate_type", "aggregate_id", "schema_subject", "partition_key", "retry_count"}

func dlqRow(id int64, subject string, retries int) []any {
	return []any{id, int64(9), events.TypeActivityCreated, events.TopicActivityEvents, []byte(`{"activity_id":"act-1"}`), "broker down",
		"activity", "act-1", subject, "user-1", retries}
}

func expectBacklog(mock pgxmock.PgxPoolIface, n int) {
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(n))
}

func TestDLQManagerRequeuesEntry(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT dlq_id").WithArgs(10).
		WillReturnRows(pgxmock.NewRows(dlqCols).AddRow(dlqRow(1, "activity_events-value", 0)...))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs("activity", "act-1", events.TypeActivityCreated, events.TopicActivityEvents, "activity_events-value", "user-1", []byte(`{"activity_id":"act-1"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM outbox_dlq").WithArgs(int64(1)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	expectBacklog(mock, 0)

	before := testutil.ToFloat64(dlqOutcomes.WithLabelValues(events.TopicActivityEvents, events.TypeActivityCreated, dlqOutcomeRequeued))

	manager := NewDLQManager(mock, 3, time.Second, discardLogger())
	processed, err := manager.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.InDelta(t, before+1, testutil.ToFloat64(dlqOutcomes.WithLabelValues(events.TopicActivityEvents, events.TypeActivityCreated, dlqOutcomeRequeued)), 0.0001)
	assert.Zero(t, testutil.ToFloat64(dlqBacklogGauge))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQManagerQuarantinesExhaustedEntry(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT dlq_id").WithArgs(10).
		WillReturnRows(pgxmock.NewRows(dlqCols).AddRow(dlqRow(2, "activity_events-value", 3)...))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE outbox_dlq SET quarantined_at").WithArgs("retry limit reached", int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	expectBacklog(mock, 0)

	quarantined := dlqOutcomes.WithLabelValues(events.TopicActivityEvents, events.TypeActivityCreated, dlqOutcomeQuarantined)
	before := testutil.ToFloat64(quarantined)

	manager := NewDLQManager(mock, 3, time.Second, discardLogger())
	processed, err := manager.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.InDelta(t, before+1, testutil.ToFloat64(quarantined), 0.0001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQManagerSchedulesRetryWhenRequeueFails(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT dlq_id").WithArgs(10).
		WillReturnRows(pgxmock.NewRows(dlqCols).AddRow(dlqRow(3, "", 1)...))
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectExec("UPDATE outbox_dlq").
		WithArgs(2*time.Second, "missing schema_subject for dlq entry 3", int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	expectBacklog(mock, 1)

	manager := NewDLQManager(mock, 5, time.Second, discardLogger())
	processed, err := manager.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, float64(1), testutil.ToFloat64(dlqBacklogGauge))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQManagerReportsQueryFailure(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT dlq_id").WithArgs(10).WillReturnError(errors.New("db down"))

	manager := NewDLQManager(mock, 5, time.Second, discardLogger())
	_, err := manager.RunOnce(context.Background(), 10)
	require.Error(t, err)
}

func TestBackoffDelayCapsAtOneHour(t *testing.T) {
	manager := NewDLQManager(nil, 5, time.Minute, discardLogger())
	assert.Equal(t, time.Minute, manager.backoffDelay(1))
	assert.Equal(t, 4*time.Minute, manager.backoffDelay(3))
	assert.Equal(t, time.Hour, manager.backoffDelay(10))
	assert.Equal(t, time.Hour, manager.backoffDelay(40))
}
