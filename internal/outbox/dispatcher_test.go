package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojsys/goodfitapp-backend/internal/events"
)

var outboxCols = []string{"event_id", "aggregate_type", "aggregate_id", "event_type", "topic", "schema_subject", "partition_key", "payload"}

type topicWrite struct {
	topic    string
	messages []kafka.Message
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []topicWrite
}

func (p *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.writes = append(p.writes, topicWrite{topic: topic, messages: msgs})
	return nil
}

type stubRegistry struct {
	id    int
	err   error
	calls int
}

func (r *stubRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	r.calls++
	return r.id, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func samplePayload(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(events.ActivityChanged{
		ActivityID: "act-1",
		UserID:     "user-1",
		Kind:       "created",
		After:      &events.Contribution{Date: "2024-01-02", Workouts: 1, Minutes: 45, Calories: 300, DistanceM: 15000},
		OccurredAt: time.Date(2024, time.January, 2, 7, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return raw
}

func expectClaim(mock pgxmock.PgxPoolIface, payload json.RawMessage, eventType string) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT event_id").WithArgs(5).
		WillReturnRows(pgxmock.NewRows(outboxCols).AddRow(
			int64(1), "activity", "act-1", eventType, events.TopicActivityEvents, "activity_events-value", "user-1", payload,
		))
	mock.ExpectExec("UPDATE outbox SET claimed_at").WithArgs([]int64{1}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
}

func TestDispatcherPublishesMessages(t *testing.T) {
	mock := newMock(t)
	payload := samplePayload(t)
	expectClaim(mock, payload, events.TypeActivityCreated)
	mock.ExpectExec("UPDATE outbox SET published_at").WithArgs([]int64{1}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(mock, producer, registry, 10*time.Millisecond, 5, discardLogger())

	before := testutil.ToFloat64(deliveredCounter.WithLabelValues(events.TypeActivityCreated))
	beforeBatches := batchSamples(t)
	require.NoError(t, dispatcher.processBatch(context.Background()))
	assert.InDelta(t, before+1, testutil.ToFloat64(deliveredCounter.WithLabelValues(events.TypeActivityCreated)), 0.0001)
	assert.Equal(t, beforeBatches+1, batchSamples(t))

	require.Len(t, producer.writes, 1)
	write := producer.writes[0]
	assert.Equal(t, events.TopicActivityEvents, write.topic)
	require.Len(t, write.messages, 1)

	msg := write.messages[0]
	assert.Equal(t, []byte("user-1"), msg.Key)
	assert.Equal(t, byte(0), msg.Value[0])
	assert.Equal(t, uint32(42), binary.BigEndian.Uint32(msg.Value[1:5]))
	assert.JSONEq(t, string(payload), string(msg.Value[5:]))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, events.TypeActivityCreated, headers[HeaderEventType])
	assert.Equal(t, "activity_events-value", headers[HeaderSchemaSubject])
	assert.Equal(t, "user-1", headers[HeaderUserID])
	assert.Equal(t, "act-1", headers[HeaderAggregateID])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcherCachesSchemaIDs(t *testing.T) {
	mock := newMock(t)
	payload := samplePayload(t)
	for i := 0; i < 2; i++ {
		expectClaim(mock, payload, events.TypeActivityUpdated)
		mock.ExpectExec("UPDATE outbox SET published_at").WithArgs([]int64{1}).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}

	registry := &stubRegistry{id: 3}
	dispatcher := NewDispatcher(mock, &stubProducer{}, registry, time.Second, 5, discardLogger())

	require.NoError(t, dispatcher.processBatch(context.Background()))
	require.NoError(t, dispatcher.processBatch(context.Background()))
	assert.Equal(t, 1, registry.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	mock := newMock(t)
	payload := samplePayload(t)
	expectClaim(mock, payload, events.TypeActivityDeleted)
	mock.ExpectExec("INSERT INTO outbox_dlq").
		WithArgs(int64(1), events.TypeActivityDeleted, events.TopicActivityEvents, payload, pgxmock.AnyArg(),
			"activity", "act-1", "activity_events-value", "user-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE outbox SET published_at").WithArgs([]int64{1}).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(mock, producer, &stubRegistry{id: 7}, time.Second, 5, discardLogger())

	beforeFailed := testutil.ToFloat64(failedCounter.WithLabelValues(events.TypeActivityDeleted))
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(events.TopicActivityEvents))

	require.NoError(t, dispatcher.processBatch(context.Background()))

	assert.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter.WithLabelValues(events.TypeActivityDeleted)), 0.0001)
	assert.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(events.TopicActivityEvents)), 0.0001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcherLeavesRowsWhenDLQWriteFails(t *testing.T) {
	mock := newMock(t)
	payload := samplePayload(t)
	expectClaim(mock, payload, events.TypeActivityCreated)
	mock.ExpectExec("INSERT INTO outbox_dlq").
		WithArgs(int64(1), events.TypeActivityCreated, events.TopicActivityEvents, payload, pgxmock.AnyArg(),
			"activity", "act-1", "activity_events-value", "user-1").
		WillReturnError(errors.New("connection reset"))

	dispatcher := NewDispatcher(mock, &stubProducer{err: errors.New("broker down")}, &stubRegistry{id: 1}, time.Second, 5, discardLogger())

	err := dispatcher.processBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write dlq entry 1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcherIdleWhenOutboxEmpty(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT event_id").WithArgs(5).WillReturnRows(pgxmock.NewRows(outboxCols))
	mock.ExpectRollback()

	producer := &stubProducer{}
	dispatcher := NewDispatcher(mock, producer, &stubRegistry{id: 1}, time.Second, 5, discardLogger())

	require.NoError(t, dispatcher.processBatch(context.Background()))
	assert.Empty(t, producer.writes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcherStopsOnContextCancel(t *testing.T) {
	mock := newMock(t)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 50; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT event_id").WithArgs(5).WillReturnRows(pgxmock.NewRows(outboxCols))
		mock.ExpectRollback()
	}

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := NewDispatcher(mock, &stubProducer{}, &stubRegistry{id: 1}, 5*time.Millisecond, 5, discardLogger())
	go dispatcher.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{}`))
	assert.Equal(t, []byte{0, 0, 0, 1, 2, '{', '}'}, frame)
}

func batchSamples(t *testing.T) uint64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	return metric.GetHistogram().GetSampleCount()
}
