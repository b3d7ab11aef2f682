package events

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEnvelope(t *testing.T) Envelope {
	t.Helper()
	env, err := NewEnvelope(AppointmentAggregate("a1"), AppointmentsChangedV1{
		AppointmentID: "a1",
		Status:        "cancelled",
		Action:        ActionUpdated,
		OccurredAt:    time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return env
}

func receive(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Envelope{}
}

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	env, err := NewEnvelope(" appointment:a1 ", AppointmentsChangedV1{AppointmentID: "a1", Status: "pending", Action: ActionCreated}, WithEventID(id))
	require.NoError(t, err)
	assert.Equal(t, id, env.EventID)
	assert.Equal(t, fixedNow.UnixMicro(), env.TimestampMicros)
	assert.Equal(t, "appointments.changed.v1", env.EventType)
	assert.Equal(t, "appointment:a1", env.Aggregate)

	var evt AppointmentsChangedV1
	require.NoError(t, env.Decode(&evt))
	assert.Equal(t, "a1", evt.AppointmentID)
	assert.Equal(t, ActionCreated, evt.Action)
}

func TestNewEnvelopeValidation(t *testing.T) {
	_, err := NewEnvelope("", AppointmentsChangedV1{})
	assert.ErrorIs(t, err, errMissingAggregate)
	_, err = NewEnvelope("appointment:a1", nil)
	assert.ErrorIs(t, err, errNilEvent)
	assert.Error(t, Envelope{EventType: "x"}.Decode(&AppointmentsChangedV1{}))
}

func TestMemoryBrokerFansOut(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())

	first, err := b.Subscribe(ctx)
	require.NoError(t, err)
	second, err := b.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Subscribers())

	env := sampleEnvelope(t)
	require.NoError(t, b.Publish(context.Background(), env))
	assert.Equal(t, env.EventID, receive(t, first).EventID)
	assert.Equal(t, env.EventID, receive(t, second).EventID)

	cancel()
	_, ok := <-first
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMemoryBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := b.Subscribe(ctx)
	require.NoError(t, err)

	env := sampleEnvelope(t)
	for i := 0; i < subscriberBuffer*2; i++ {
		require.NoError(t, b.Publish(context.Background(), env))
	}
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	b := NewRedisBroker(client, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := b.Subscribe(ctx)
	require.NoError(t, err)

	env := sampleEnvelope(t)
	require.NoError(t, b.Publish(context.Background(), env))

	got := receive(t, sub)
	assert.Equal(t, env.EventID, got.EventID)
	var evt AppointmentsChangedV1
	require.NoError(t, got.Decode(&evt))
	assert.Equal(t, "cancelled", evt.Status)
}

func TestStreamHandlerForwardsEvents(t *testing.T) {
	b := NewMemoryBroker()
	srv := httptest.NewServer(NewStreamHandler(b, nil, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	env := sampleEnvelope(t)
	require.NoError(t, b.Publish(context.Background(), env))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Envelope
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, "appointments.changed.v1", got.EventType)
}

func TestStreamHandlerRejectsForeignOrigin(t *testing.T) {
	srv := httptest.NewServer(NewStreamHandler(NewMemoryBroker(), []string{"https://admin.example.com"}, nil))
	defer srv.Close()

	header := map[string][]string{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}
