package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bountyexpo/internal/store"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeIncidentEscalate = "incident:escalate"
	TypeNotificationSend = "notification:send"
)

// SupportPublisher announces incidents on the support channel.
type SupportPublisher interface {
	PublishSupport(event map[string]interface{}) error
}

// Deliverer hands a user notification to the push pipeline.
type Deliverer interface {
	Forward(ctx context.Context, channel string, event map[string]interface{}) error
}

type notificationPayload struct {
	UserID string                 `json:"userId"`
	Event  map[string]interface{} `json:"event"`
}

type JobServer struct {
	server    *asynq.Server
	client    *asynq.Client
	store     store.Store
	support   SupportPublisher
	deliverer Deliverer
	log       *zap.Logger
}

func NewJobServer(redisAddr string, st store.Store, support SupportPublisher, log *zap.Logger) (*JobServer, *asynq.Client) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	client := asynq.NewClient(redisOpt)

	return &JobServer{
		server:  server,
		client:  client,
		store:   st,
		support: support,
		log:     log,
	}, client
}

// SetDeliverer sets where user notifications are pushed. Without one they are dropped.
func (js *JobServer) SetDeliverer(d Deliverer) {
	js.deliverer = d
}

func (js *JobServer) Start() error {
	return js.server.Start(js.mux())
}

func (js *JobServer) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeIncidentEscalate, js.handleIncidentEscalation)
	mux.HandleFunc(TypeNotificationSend, js.handleNotification)
	return mux
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
	js.client.Close()
}

func (js *JobServer) handleIncidentEscalation(ctx context.Context, t *asynq.Task) error {
	incidentID := string(t.Payload())

	incident, err := js.store.GetIncident(ctx, incidentID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("incident %s: %w", incidentID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to get incident: %w", err)
	}

	// Resolved before the job ran
	if incident.ResolvedAt != nil {
		return nil
	}

	err = js.support.PublishSupport(map[string]interface{}{
		"type":       "incident.escalated",
		"incidentId": incident.ID,
		"bountyId":   incident.BountyID,
		"operation":  incident.Operation,
		"detail":     incident.Detail,
		"createdAt":  incident.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to publish incident: %w", err)
	}

	js.log.Info("Incident escalated", zap.String("incident_id", incident.ID), zap.String("bounty_id", incident.BountyID))
	return nil
}

func (js *JobServer) handleNotification(ctx context.Context, t *asynq.Task) error {
	var p notificationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("invalid notification payload: %v: %w", err, asynq.SkipRetry)
	}
	if js.deliverer == nil {
		js.log.Debug("Notification dropped, no deliverer", zap.String("user_id", p.UserID))
		return nil
	}
	if err := js.deliverer.Forward(ctx, "notify:"+p.UserID, p.Event); err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	js.log.Debug("Notification delivered", zap.String("user_id", p.UserID))
	return nil
}

// Enqueue jobs

func EnqueueIncidentEscalation(client *asynq.Client, incidentID string) error {
	task := asynq.NewTask(TypeIncidentEscalate, []byte(incidentID))
	_, err := client.Enqueue(task, asynq.Queue("critical"), asynq.MaxRetry(10))
	return err
}

func EnqueueNotification(client *asynq.Client, userID string, event map[string]interface{}) error {
	payload, err := json.Marshal(notificationPayload{UserID: userID, Event: event})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeNotificationSend, payload)
	_, err = client.Enqueue(task, asynq.Queue("low"), asynq.MaxRetry(3), asynq.Timeout(30*time.Second))
	return err
}
