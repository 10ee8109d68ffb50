package kafka

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/catastro-tasador/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessageWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeMessageWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeMessageWriter) Close() error {
	f.closed = true
	return nil
}

func testEvent() domain.AnalysisEvent {
	return domain.AnalysisEvent{
		Type:       domain.EventAnalysisCompleted,
		Reference:  "9872023VH5797S0001WX",
		AnalysisID: "a-1",
		Affections: 2,
		OccurredAt: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestSerializeToMessage(t *testing.T) {
	event := testEvent()

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("9872023VH5797S0001WX"), msg.Key)
	assert.JSONEq(t, `{
		"type": "analysis_completed",
		"ref": "9872023VH5797S0001WX",
		"analysis_id": "a-1",
		"affections": 2,
		"occurred_at": "2026-03-03T10:00:00Z"
	}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("analysis_completed"), msg.Headers[0].Value)
	assert.Equal(t, "occurred_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2026-03-03T10:00:00Z"), msg.Headers[1].Value)
}

func TestSerializeToMessage_ReportFile(t *testing.T) {
	event := testEvent()
	event.Type = domain.EventReportExported
	event.File = "Informe_9872023VH5797S0001WX.pdf"

	msg, err := serializeToMessage(event)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Value), `"file":"Informe_9872023VH5797S0001WX.pdf"`)
}

func TestWriterPublish(t *testing.T) {
	fake := &fakeMessageWriter{}
	w := &Writer{writer: fake, logger: slog.Default()}

	require.NoError(t, w.Publish(context.Background(), testEvent()))
	require.Len(t, fake.msgs, 1)
	assert.Equal(t, []byte("9872023VH5797S0001WX"), fake.msgs[0].Key)

	require.NoError(t, w.Close())
	assert.True(t, fake.closed)
}

func TestWriterPublish_Error(t *testing.T) {
	fake := &fakeMessageWriter{err: errors.New("leader not available")}
	w := &Writer{writer: fake, logger: slog.Default()}

	err := w.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish analysis_completed event")
	assert.Contains(t, err.Error(), "leader not available")
}
