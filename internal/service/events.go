package service

// EventBus is the notification capability. Publishing is best effort and a
// failure never changes the outcome of a lifecycle operation.
type EventBus interface {
	PublishBounty(bountyID string, event map[string]interface{}) error
	PublishUser(userID string, event map[string]interface{}) error
}

type nopBus struct{}

func (nopBus) PublishBounty(string, map[string]interface{}) error { return nil }
func (nopBus) PublishUser(string, map[string]interface{}) error   { return nil }
