package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/routebook/internal/route/domain"
)

type recordingConn struct {
	msgs []*nats.Msg
	err  error
}

func (r *recordingConn) PublishMsg(msg *nats.Msg) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestPublishWritesJSONWithHeaders(t *testing.T) {
	conn := &recordingConn{}
	p := &Publisher{conn: conn, subject: "likes.test"}

	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{1}})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	event := domain.LikeEvent{Type: domain.EventLikeRecorded, RouteID: 2, ClientID: "c1", Likes: 3, RecordedAt: time.Unix(10, 0).UTC()}
	require.NoError(t, p.Publish(ctx, event))
	require.Len(t, conn.msgs, 1)

	msg := conn.msgs[0]
	require.Equal(t, "likes.test", msg.Subject)
	require.Equal(t, "LikeRecorded", msg.Header.Get("x-event-type"))
	require.Equal(t, traceID.String(), msg.Header.Get("x-trace-id"))

	var decoded domain.LikeEvent
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	require.Equal(t, event, decoded)
}

func TestPublishWithoutConnectionIsNoop(t *testing.T) {
	p := NewPublisher(nil, "")
	require.Equal(t, DefaultSubject, p.subject)
	require.NoError(t, p.Publish(context.Background(), domain.LikeEvent{}))
}

func TestPublishWrapsErrors(t *testing.T) {
	boom := errors.New("disconnected")
	p := &Publisher{conn: &recordingConn{err: boom}, subject: "s"}
	err := p.Publish(context.Background(), domain.LikeEvent{Type: domain.EventLikeRecorded})
	require.ErrorIs(t, err, boom)
}
