package service

import (
	"bountyexpo/internal/jobs"

	"github.com/hibiken/asynq"
)

// JobClient interface for scheduling background jobs
type JobClient interface {
	EnqueueIncidentEscalation(incidentID string) error
	EnqueueNotification(userID string, event map[string]interface{}) error
}

// AsynqJobClient implements JobClient using asynq
type AsynqJobClient struct {
	client *asynq.Client
}

func NewAsynqJobClient(client *asynq.Client) *AsynqJobClient {
	return &AsynqJobClient{client: client}
}

func (c *AsynqJobClient) EnqueueIncidentEscalation(incidentID string) error {
	return jobs.EnqueueIncidentEscalation(c.client, incidentID)
}

func (c *AsynqJobClient) EnqueueNotification(userID string, event map[string]interface{}) error {
	return jobs.EnqueueNotification(c.client, userID, event)
}
