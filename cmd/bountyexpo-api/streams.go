package main

import (
	"bountyexpo/internal/pubsub"
	"bountyexpo/internal/ws"
)

// wsStreamsAdapter adapts pubsub.Streams to ws.StreamsProvider
type wsStreamsAdapter struct {
	streams *pubsub.Streams
}

func (a *wsStreamsAdapter) GetLastSequence(channel, connectionID string) (int64, error) {
	return a.streams.GetLastSequence(channel, connectionID)
}

func (a *wsStreamsAdapter) AcknowledgeSequence(channel, connectionID string, sequence int64) error {
	return a.streams.AcknowledgeSequence(channel, connectionID, sequence)
}

func (a *wsStreamsAdapter) ReplayEvents(channel string, sinceSeq int64, limit int64) ([]ws.StreamEvent, error) {
	events, err := a.streams.ReplayEvents(channel, sinceSeq, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ws.StreamEvent, len(events))
	for i, e := range events {
		out[i] = ws.StreamEvent(e)
	}
	return out, nil
}
