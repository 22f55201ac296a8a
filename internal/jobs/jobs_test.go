package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"bountyexpo/internal/model"
	"bountyexpo/internal/store"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSupport struct {
	events []map[string]interface{}
	err    error
}

func (f *fakeSupport) PublishSupport(event map[string]interface{}) error {
	f.events = append(f.events, event)
	return f.err
}

type fakeDeliverer struct {
	channels []string
	events   []map[string]interface{}
}

func (f *fakeDeliverer) Forward(_ context.Context, channel string, event map[string]interface{}) error {
	f.channels = append(f.channels, channel)
	f.events = append(f.events, event)
	return nil
}

func newTestServer(t *testing.T) (*JobServer, *store.Memory, *fakeSupport) {
	t.Helper()
	st := store.NewMemory()
	support := &fakeSupport{}
	return &JobServer{store: st, support: support, log: zap.NewNop()}, st, support
}

func TestIncidentEscalationPublishesToSupport(t *testing.T) {
	js, st, support := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.CreateIncident(ctx, &model.Incident{
		ID: "inc1", BountyID: "b1", Operation: "bounty.release", Detail: "funds moved, status not committed", CreatedAt: time.Now(),
	}))

	err := js.handleIncidentEscalation(ctx, asynq.NewTask(TypeIncidentEscalate, []byte("inc1")))
	require.NoError(t, err)
	require.Len(t, support.events, 1)
	assert.Equal(t, "incident.escalated", support.events[0]["type"])
	assert.Equal(t, "b1", support.events[0]["bountyId"])
	assert.Equal(t, "bounty.release", support.events[0]["operation"])
}

func TestIncidentEscalationSkipsResolved(t *testing.T) {
	js, st, support := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.CreateIncident(ctx, &model.Incident{ID: "inc1", BountyID: "b1", CreatedAt: time.Now()}))
	require.NoError(t, st.ResolveIncident(ctx, "inc1", "refunded by hand", time.Now()))

	require.NoError(t, js.handleIncidentEscalation(ctx, asynq.NewTask(TypeIncidentEscalate, []byte("inc1"))))
	assert.Empty(t, support.events)
}

func TestIncidentEscalationMissingIncidentIsNotRetried(t *testing.T) {
	js, _, _ := newTestServer(t)

	err := js.handleIncidentEscalation(context.Background(), asynq.NewTask(TypeIncidentEscalate, []byte("nope")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestIncidentEscalationPublishFailureIsRetried(t *testing.T) {
	js, st, support := newTestServer(t)
	ctx := context.Background()
	support.err = errors.New("redis down")
	require.NoError(t, st.CreateIncident(ctx, &model.Incident{ID: "inc1", BountyID: "b1", CreatedAt: time.Now()}))

	err := js.handleIncidentEscalation(ctx, asynq.NewTask(TypeIncidentEscalate, []byte("inc1")))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestNotificationDelivery(t *testing.T) {
	js, _, _ := newTestServer(t)
	d := &fakeDeliverer{}
	js.SetDeliverer(d)

	payload, err := json.Marshal(notificationPayload{UserID: "u1", Event: map[string]interface{}{"type": "request.accepted"}})
	require.NoError(t, err)

	require.NoError(t, js.handleNotification(context.Background(), asynq.NewTask(TypeNotificationSend, payload)))
	assert.Equal(t, []string{"notify:u1"}, d.channels)
	assert.Equal(t, "request.accepted", d.events[0]["type"])
}

func TestNotificationWithoutDelivererIsDropped(t *testing.T) {
	js, _, _ := newTestServer(t)
	payload, _ := json.Marshal(notificationPayload{UserID: "u1"})

	assert.NoError(t, js.handleNotification(context.Background(), asynq.NewTask(TypeNotificationSend, payload)))
}

func TestNotificationInvalidPayload(t *testing.T) {
	js, _, _ := newTestServer(t)

	err := js.handleNotification(context.Background(), asynq.NewTask(TypeNotificationSend, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	err := s.Add("audit", "not a schedule", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerRunsJob(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	var runs atomic.Int32
	require.NoError(t, s.Add("audit", "@every 1s", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		if hasDeadline {
			runs.Add(1)
		}
		return nil
	}))
	assert.Equal(t, 1, s.Len())

	s.Start()
	defer s.Stop()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
