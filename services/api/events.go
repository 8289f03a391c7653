package api

import (
	"context"
	"time"
)

// Bus subjects emitted by the core. Subscribers (ops tooling, future
// notification workers) treat these as at-least-once.
const (
	topicExchangeRequested = "skillswap.exchanges.requested"
	topicExchangeAccepted  = "skillswap.exchanges.accepted"
	topicExchangeRejected  = "skillswap.exchanges.rejected"
	topicExchangeCompleted = "skillswap.exchanges.completed"
	topicExchangeCancelled = "skillswap.exchanges.cancelled"
	topicExchangeDeleted   = "skillswap.exchanges.deleted"
	topicMessageCreated    = "skillswap.messages.created"
)

func topicForStatus(status ExchangeStatus) string {
	switch status {
	case StatusAccepted:
		return topicExchangeAccepted
	case StatusRejected:
		return topicExchangeRejected
	case StatusCompleted:
		return topicExchangeCompleted
	case StatusCancelled:
		return topicExchangeCancelled
	default:
		return topicExchangeRequested
	}
}

// publishJSON emits an event without coupling request latency to the bus:
// publish failures are dropped, the durable record already committed.
func (a *API) publishJSON(subject string, payload map[string]any) {
	if a.store.Bus == nil || subject == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = a.store.Bus.Publish(ctx, subject, payload)
}
